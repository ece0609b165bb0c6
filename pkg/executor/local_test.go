package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/xops-ci/pkg/config"
)

func newLocal() *LocalSession {
	return NewLocalSession(config.DefaultSettings())
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "check.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0755))
	return path
}

func TestLocalRunExitCodes(t *testing.T) {
	ctx := context.Background()
	s := newLocal()

	res := s.Run(ctx, "true")
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.OK())

	res = s.Run(ctx, "false", Quiet())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "false", res.Command)

	res = s.Run(ctx, "echo out; echo err >&2")
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")

	res = s.Run(ctx, "echo '  padded  '")
	assert.Equal(t, "padded", res.Output)
	assert.Equal(t, "padded", s.Before())
}

func TestLocalCd(t *testing.T) {
	ctx := context.Background()
	s := newLocal()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	s.Cd(ctx, dir)
	assert.Equal(t, dir, s.Cwd())
	assert.Equal(t, dir, s.Run(ctx, "pwd").Output)

	s.Cd(ctx, "sub")
	assert.Equal(t, filepath.Join(dir, "sub"), s.Cwd())
	assert.Equal(t, filepath.Join(dir, "sub"), s.Run(ctx, "pwd").Output)

	s.Cd(ctx, "")
	assert.Empty(t, s.Cwd())
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, s.Run(ctx, "pwd").Output)

	// 未设置目录时，相对路径基于实际的当前目录
	s.Cd(ctx, "sub")
	assert.Equal(t, filepath.Join(wd, "sub"), s.Cwd())
}

func TestLocalDetachedReturnsImmediately(t *testing.T) {
	s := newLocal()
	start := time.Now()
	res := s.Run(context.Background(), "sleep 5", Detached())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Output)
	assert.Equal(t, "sleep 5", res.Command)
}

func TestLocalTimeoutIsDispatchFailure(t *testing.T) {
	s := newLocal()
	start := time.Now()
	res := s.Run(context.Background(), "sleep 10", WithTimeout(200*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, ExitDispatchFailure, res.ExitCode)
	assert.True(t, strings.HasPrefix(res.Output, "Exception:"), res.Output)
}

func TestLocalExecScript(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	script := writeScript(t, dir, `echo "param=$1"`+"\nexit 4\n")
	s := newLocal()

	res, err := s.ExecScript(ctx, script, WithParameters("foo"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "param=foo", res.Output)
	assert.Equal(t, script+" foo", res.Command)

	redirect := filepath.Join(dir, "logs", "out.log")
	res, err = s.ExecScript(ctx, script, WithParameters("bar"), WithRedirect(redirect))
	require.NoError(t, err)
	assert.Equal(t, 4, res.ExitCode)
	assert.Empty(t, res.Output)
	assert.Equal(t, script+" bar &> "+redirect, res.Command)
	content, err := os.ReadFile(redirect)
	require.NoError(t, err)
	assert.Equal(t, "param=bar\n", string(content))
}

func TestLocalExecScriptIgnoresCwd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	script := writeScript(t, dir, "pwd\n")
	s := newLocal()
	s.Cd(ctx, dir)

	wd, err := os.Getwd()
	require.NoError(t, err)
	res, err := s.ExecScript(ctx, script)
	require.NoError(t, err)
	assert.Equal(t, wd, res.Output)
	assert.Equal(t, dir, s.Cwd())
}

func TestLocalExecScriptRelativeRedirect(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "touch "+filepath.Join(dir, "ran")+"\n")
	s := newLocal()

	res, err := s.ExecScript(context.Background(), script, WithRedirect("out.log"))
	assert.ErrorIs(t, err, ErrInvalidRedirect)
	assert.Nil(t, res)
	assert.NoFileExists(t, filepath.Join(dir, "ran"))
}

func TestLocalExecScriptMissingFile(t *testing.T) {
	res, err := newLocal().ExecScript(context.Background(), filepath.Join(t.TempDir(), "absent.sh"))
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestLocalCopy(t *testing.T) {
	ctx := context.Background()
	s := newLocal()
	dir := t.TempDir()

	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	t.Run("same path is a no-op", func(t *testing.T) {
		assert.NoError(t, s.CopyOut(ctx, src, src, false))
		assert.NoError(t, s.CopyIn(ctx, src, dir+"/./a.txt", false))
	})

	t.Run("relative path rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.CopyIn(ctx, "a.txt", dir, false), ErrRelativePath)
		assert.ErrorIs(t, s.CopyOut(ctx, src, "b.txt", false), ErrRelativePath)
	})

	t.Run("single file", func(t *testing.T) {
		dst := filepath.Join(dir, "b.txt")
		require.NoError(t, s.CopyOut(ctx, src, dst, false))
		content, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(content))
	})

	t.Run("missing source", func(t *testing.T) {
		assert.Error(t, s.CopyIn(ctx, filepath.Join(dir, "absent"), filepath.Join(dir, "c.txt"), false))
	})

	t.Run("recursive keeps basename", func(t *testing.T) {
		tree := filepath.Join(dir, "tree")
		require.NoError(t, os.MkdirAll(filepath.Join(tree, "nested"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(tree, "nested", "f"), []byte("deep"), 0644))

		dst := filepath.Join(dir, "out", "copy")
		require.NoError(t, s.CopyIn(ctx, tree, dst, true))
		content, err := os.ReadFile(filepath.Join(dst, "tree", "nested", "f"))
		require.NoError(t, err)
		assert.Equal(t, "deep", string(content))
	})
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "/tmp/a-b_c.txt", shellQuote("/tmp/a-b_c.txt"))
	assert.Equal(t, "'with space'", shellQuote("with space"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, "''", shellQuote(""))
}

func TestJoinDir(t *testing.T) {
	ctx := context.Background()
	pwd := func(context.Context) (string, error) { return "/home/ci", nil }

	for _, tt := range []struct {
		cur, dir, want string
	}{
		{"", "", ""},
		{"/opt", "", ""},
		{"/opt", "/var/log/", "/var/log"},
		{"/opt", "oai", "/opt/oai"},
		{"/opt/oai", "../ran", "/opt/ran"},
		{"", "work", "/home/ci/work"},
	} {
		got, err := joinDir(ctx, tt.cur, tt.dir, pwd)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "cur=%q dir=%q", tt.cur, tt.dir)
	}
}

func TestScriptCommand(t *testing.T) {
	cfg, err := newScriptConfig(0, []ScriptOption{WithParameters("  -a 1 "), WithRedirect("/tmp/x.log")})
	require.NoError(t, err)
	assert.Equal(t, "/s.sh -a 1 &> /tmp/x.log", cfg.scriptCommand("/s.sh"))

	cfg, err = newScriptConfig(0, nil)
	require.NoError(t, err)
	assert.Equal(t, "/s.sh", cfg.scriptCommand("/s.sh"))
}
