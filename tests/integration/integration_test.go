//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/executor"
	"github.com/wentf9/xops-ci/pkg/runner"
)

const alias = "ci-target"

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func setupSSHContainer(t *testing.T, ctx context.Context, authorizedKey []byte) testcontainers.Container {
	t.Helper()
	root, err := findProjectRoot()
	require.NoError(t, err)

	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    filepath.Join(root, "tests", "integration"),
			Dockerfile: "Dockerfile",
		},
		ExposedPorts: []string{"22/tcp"},
		WaitingFor:   wait.ForListeningPort("22/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start test container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	require.NoError(t, container.CopyToContainer(ctx, authorizedKey, "/root/.ssh/authorized_keys", 0600))
	return container
}

func newFactory(t *testing.T, ctx context.Context, container testcontainers.Container, keyFile string) *executor.Factory {
	t.Helper()
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "22/tcp")
	require.NoError(t, err)

	s := config.DefaultSettings()
	s.SSHConfig = writeSSHConfig(t, t.TempDir(), alias, host, port.Int(), keyFile)
	s.RetryBackoff = time.Second
	f, err := executor.NewFactory(s)
	require.NoError(t, err)
	return f
}

func TestRemoteSessionAgainstOpenSSH(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	keyFile, authorized := generateKey(t, t.TempDir())
	container := setupSSHContainer(t, ctx, authorized)
	f := newFactory(t, ctx, container, keyFile)

	s, err := f.Open(ctx, alias)
	require.NoError(t, err)
	defer s.Close()

	t.Run("run", func(t *testing.T) {
		res := s.Run(ctx, "uname -s")
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "Linux", res.Output)

		res = s.Run(ctx, "exit 7", executor.Quiet())
		assert.Equal(t, 7, res.ExitCode)
	})

	t.Run("cd", func(t *testing.T) {
		s.Cd(ctx, "/var")
		s.Cd(ctx, "log")
		assert.Equal(t, "/var/log", s.Run(ctx, "pwd").Output)
		s.Cd(ctx, "")
	})

	t.Run("detached", func(t *testing.T) {
		start := time.Now()
		res := s.Run(ctx, "sleep 30 && touch /tmp/late", executor.Detached())
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Equal(t, 0, res.ExitCode)
	})

	t.Run("exec script with redirect", func(t *testing.T) {
		script := filepath.Join(t.TempDir(), "check.sh")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\nset -x\necho \"iface=$1\"\n"), 0755))

		res, err := s.ExecScript(ctx, script, executor.WithParameters("oaitun_ue1"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Contains(t, res.Output, "+ echo iface=oaitun_ue1")

		res, err = s.ExecScript(ctx, script, executor.WithParameters("eth0"), executor.WithRedirect("/tmp/check.log"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Empty(t, res.Output)
		assertFileContains(t, ctx, container, "/tmp/check.log", "iface=eth0")
	})

	t.Run("recursive copy round trip", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "results")
		require.NoError(t, os.MkdirAll(filepath.Join(src, "logs"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(src, "logs", "gnb.log"), []byte("RRC setup complete\n"), 0644))

		require.NoError(t, s.CopyOut(ctx, src, "/opt/ci", true))
		assertFileContains(t, ctx, container, "/opt/ci/results/logs/gnb.log", "RRC setup complete")
		assertNoFile(t, ctx, container, "/tmp/xops-*.tar")

		back := filepath.Join(dir, "back")
		require.NoError(t, s.CopyIn(ctx, "/opt/ci/results", back, true))
		content, err := os.ReadFile(filepath.Join(back, "results", "logs", "gnb.log"))
		require.NoError(t, err)
		assert.Equal(t, "RRC setup complete\n", string(content))
	})
}

func TestForEachHostAgainstOpenSSH(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	keyFile, authorized := generateKey(t, t.TempDir())
	container := setupSSHContainer(t, ctx, authorized)
	f := newFactory(t, ctx, container, keyFile)

	hosts := []string{alias, "localhost", alias}
	report := runner.ForEachHost(ctx, f, hosts, func(ctx context.Context, s executor.Session) (bool, string) {
		res := s.Run(ctx, "echo ready", executor.Silent())
		return res.OK(), s.Host() + ": " + res.Output
	})
	assert.True(t, report.Success)
	assert.Equal(t, []string{alias + ": ready", "localhost: ready", alias + ": ready"}, report.Messages())
}
