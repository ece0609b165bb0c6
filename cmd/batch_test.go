package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/xops-ci/pkg/config"
)

const tagInventory = `
identities:
  ci:
    user: root
    password: secret
    auth_type: password
hosts:
  lo:
    address: 127.0.0.1
nodes:
  localhost:
    tags: [ci]
    host_ref: lo
    identity_ref: ci
  ue1:
    tags: [ue]
    host_ref: lo
    identity_ref: ci
`

func useInventory(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tagInventory), 0600))
	old := settings
	settings = config.DefaultSettings()
	settings.Inventory = path
	t.Cleanup(func() { settings = old })
}

func TestTargetHosts(t *testing.T) {
	useInventory(t)

	hosts, err := targetHosts("a,b,a", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hosts)

	hosts, err = targetHosts("", "", "ue")
	require.NoError(t, err)
	assert.Equal(t, []string{"ue1"}, hosts)

	hosts, err = targetHosts("", "", config.TagAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost", "ue1"}, hosts)

	_, err = targetHosts("", "", "core")
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestBatchCommandByTag(t *testing.T) {
	useInventory(t)
	cmd := NewCmdBatch()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--tag", "ci", "-c", "echo tagged"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "[localhost]")
	assert.Contains(t, out.String(), "tagged")
}

func TestBatchCommandTagExclusiveWithHosts(t *testing.T) {
	cmd := NewCmdBatch()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--tag", "ci", "-H", "a", "-c", "true"})
	assert.Error(t, cmd.Execute())
}
