package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaultsWhenDefaultFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvLogLevel, "")

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsExplicitMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadSettingsYAML(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := writeFile(t, t.TempDir(), "config.yaml", `
log_level: warn
workers: 8
connect_retries: 5
retry_backoff: 250ms
exponential_backoff: true
dial_timeout: 3s
command_timeout: 1m
transfer_timeout: 2m
transfer_threads: 4
transfer_chunk_size: 65536
`)
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, 5, s.ConnectRetries)
	assert.Equal(t, 250*time.Millisecond, s.RetryBackoff)
	assert.True(t, s.ExponentialBackoff)
	assert.Equal(t, 3*time.Second, s.DialTimeout)
	assert.Equal(t, time.Minute, s.CommandTimeout)
	assert.Equal(t, 2*time.Minute, s.TransferTimeout)
	assert.Equal(t, 4, s.TransferThreads)
	assert.Equal(t, int64(65536), s.TransferChunkSize)
	// 未配置的字段保持默认值
	assert.Equal(t, 100*time.Millisecond, s.DetachWait)
	assert.Equal(t, "/bin/bash", s.Shell)
}

func TestLoadSettingsTOMLAndEnvOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
log_level = "info"
ssh_config = "/etc/xops/ssh_config"
detach_wait = "50ms"
`)
	t.Setenv(EnvLogLevel, "debug")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "/etc/xops/ssh_config", s.SSHConfig)
	assert.Equal(t, 50*time.Millisecond, s.DetachWait)
}

func TestLoadSettingsFromEnvPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "xops.yaml", "workers: 2\n")
	t.Setenv(EnvConfig, path)

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Workers)
}

func TestSettingsNewResolver(t *testing.T) {
	s := DefaultSettings()
	r, err := s.NewResolver()
	require.NoError(t, err)
	assert.IsType(t, &SSHConfigResolver{}, r)

	s.Inventory = writeFile(t, t.TempDir(), "inventory.yaml", "nodes: {}\n")
	r, err = s.NewResolver()
	require.NoError(t, err)
	assert.IsType(t, &InventoryResolver{}, r)

	s.Inventory = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = s.NewResolver()
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSettingsHostsByTag(t *testing.T) {
	s := DefaultSettings()
	_, err := s.HostsByTag("ue")
	assert.ErrorIs(t, err, ErrConfig)

	s.Inventory = writeFile(t, t.TempDir(), "inventory.yaml", `
identities:
  ci:
    user: root
    password: secret
    auth_type: password
hosts:
  h:
    address: 10.0.0.2
nodes:
  ue2:
    tags: [ue]
    host_ref: h
    identity_ref: ci
  ue1:
    tags: [ue, attach]
    host_ref: h
    identity_ref: ci
  gnb:
    tags: [ran]
    host_ref: h
    identity_ref: ci
`)
	hosts, err := s.HostsByTag("ue")
	require.NoError(t, err)
	assert.Equal(t, []string{"ue1", "ue2"}, hosts)

	hosts, err = s.HostsByTag(TagAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"gnb", "ue1", "ue2"}, hosts)

	_, err = s.HostsByTag("core")
	assert.ErrorIs(t, err, ErrConfig)
}
