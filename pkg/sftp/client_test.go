package sftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferOptions(t *testing.T) {
	c := &Client{config: DefaultConfig()}
	WithThreadsPerFile(4)(c)
	WithChunkSize(4096)(c)
	assert.Equal(t, TransferConfig{ThreadsPerFile: 4, ChunkSize: 4096}, c.config)

	// 非正数保持原值
	WithThreadsPerFile(0)(c)
	WithChunkSize(-1)(c)
	assert.Equal(t, TransferConfig{ThreadsPerFile: 4, ChunkSize: 4096}, c.config)
}
