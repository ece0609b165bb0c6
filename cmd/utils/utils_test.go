package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/xops-ci/pkg/executor"
)

func TestParseHostsFlag(t *testing.T) {
	hosts, err := ParseHosts(" ue1, ue2 ,,ue1,gnb", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ue1", "ue2", "gnb"}, hosts)

	_, err = ParseHosts(" , ", "")
	assert.Error(t, err)
	_, err = ParseHosts("", "")
	assert.Error(t, err)
}

func TestParseHostsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("# ran\ngnb\n\n  epc  extra\nue1\ngnb\n"), 0644))

	hosts, err := ParseHosts("", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"gnb", "epc", "ue1"}, hosts)

	_, err = ParseHosts("", filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	ok := &executor.Result{Command: "true"}
	failed := &executor.Result{Command: "false", ExitCode: 1}

	assert.Equal(t, StatusOK, Classify(ok, true))
	assert.Equal(t, StatusOK, Classify(ok, false))
	assert.Equal(t, StatusKO, Classify(failed, true))
	assert.Equal(t, StatusWarning, Classify(failed, false))
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	PrintResult(&buf, "gnb", &executor.Result{Command: "uptime", ExitCode: 0, Output: "up 3 days"}, StatusOK)
	assert.Equal(t, "up 3 days\n[gnb] uptime: OK (返回码 0)\n", buf.String())

	buf.Reset()
	PrintResult(&buf, "gnb", &executor.Result{Command: "false", ExitCode: 1}, StatusWarning)
	assert.Equal(t, "[gnb] false: Warning (返回码 1)\n", buf.String())
}
