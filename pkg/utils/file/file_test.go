package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, home+"/.xops/secret.key", ExpandHome("~/.xops/secret.key"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/etc/xops/config.yaml", ExpandHome("/etc/xops/config.yaml"))
	assert.Equal(t, "relative/~", ExpandHome("relative/~"))
	assert.Empty(t, ExpandHome(""))
}

func TestCreateFileRecursive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	require.NoError(t, CreateFileRecursive(path, []byte("first"), 0600))
	require.NoError(t, CreateFileRecursive(path, []byte("2"), 0600))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2", string(content))
}
