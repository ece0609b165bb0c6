package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/xops-ci/pkg/logger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

func TestScriptCommandSilent(t *testing.T) {
	script := filepath.Join(t.TempDir(), "health.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\necho healthy\n"), 0755))

	for _, tt := range []struct {
		args   []string
		logged bool
	}{
		{[]string{"none", script}, true},
		{[]string{"none", script, "--silent"}, false},
	} {
		logs := captureLog(t)
		cmd := NewCmdScript()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(tt.args)
		require.NoError(t, cmd.Execute())

		assert.Contains(t, out.String(), "healthy")
		assert.Equal(t, tt.logged, bytes.Contains(logs.Bytes(), []byte("local> "+script)), "args=%v", tt.args)
	}
}
