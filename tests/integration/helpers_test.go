//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"golang.org/x/crypto/ssh"
)

// execInContainer runs a command in the container and returns stdout
func execInContainer(ctx context.Context, container testcontainers.Container, cmd []string) (int, string, error) {
	exitCode, reader, err := container.Exec(ctx, cmd)
	if err != nil {
		return exitCode, "", err
	}

	// Docker 的 stdout/stderr 是复用在一个流里的
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, reader)

	return exitCode, stdout.String(), nil
}

// assertFileContains checks that a file in the container contains all expected substrings
func assertFileContains(t *testing.T, ctx context.Context, container testcontainers.Container, path string, expected ...string) {
	t.Helper()
	exitCode, content, err := execInContainer(ctx, container, []string{"cat", path})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode, "failed to read file %s", path)

	for _, substr := range expected {
		assert.Contains(t, content, substr, "file %s should contain %q", path, substr)
	}
}

func assertNoFile(t *testing.T, ctx context.Context, container testcontainers.Container, pattern string) {
	t.Helper()
	_, out, err := execInContainer(ctx, container, []string{"sh", "-c", "ls " + pattern + " 2>/dev/null || true"})
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out), "%s should not exist", pattern)
}

// generateKey 生成 ed25519 密钥对，返回私钥文件路径和 authorized_keys 格式的公钥
func generateKey(t *testing.T, dir string) (string, []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyFile := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(block), 0600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return keyFile, ssh.MarshalAuthorizedKey(sshPub)
}

func writeSSHConfig(t *testing.T, dir, alias, host string, port int, keyFile string) string {
	t.Helper()
	path := filepath.Join(dir, "ssh_config")
	content := fmt.Sprintf("Host %s\n  HostName %s\n  Port %d\n  User root\n  IdentityFile %s\n", alias, host, port, keyFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}
