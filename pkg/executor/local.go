package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/logger"
	"github.com/wentf9/xops-ci/pkg/utils/file"
)

const localHost = "localhost"

// 超时后进程组被杀死，等待遗留子进程释放输出管道的最长时间
const waitDelay = 2 * time.Second

// LocalSession 在本机进程中执行命令，工作目录由 Session 自己跟踪
type LocalSession struct {
	shell      string
	timeout    time.Duration
	detachWait time.Duration
	cwd        string
	before     string
}

func NewLocalSession(s config.Settings) *LocalSession {
	return &LocalSession{
		shell:      s.Shell,
		timeout:    s.CommandTimeout,
		detachWait: s.DetachWait,
	}
}

func (l *LocalSession) Host() string { return localHost }

func (l *LocalSession) Cwd() string { return l.cwd }

func (l *LocalSession) Before() string { return l.before }

// Close 本地 Session 没有需要释放的资源
func (l *LocalSession) Close() error { return nil }

func (l *LocalSession) Cd(ctx context.Context, dir string) {
	wd, err := joinDir(ctx, l.cwd, dir, l.pwd)
	if err != nil {
		logger.Logger.Warn("cd failed", "host", localHost, "dir", dir, "err", err)
		return
	}
	l.cwd = wd
	logger.Logger.Debug("working dir changed", "host", localHost, "dir", wd)
}

func (l *LocalSession) pwd(ctx context.Context) (string, error) {
	res := l.Run(ctx, "pwd", Silent())
	if !res.OK() {
		return "", fmt.Errorf("pwd: %s", res.Output)
	}
	return res.Output, nil
}

func (l *LocalSession) Run(ctx context.Context, command string, opts ...RunOption) *Result {
	cfg := newRunConfig(l.timeout, opts)
	if !cfg.silent {
		logger.Logger.Info("local> "+command, "dir", l.cwd)
	}

	var res *Result
	if cfg.detached {
		res = l.startDetached(command)
	} else {
		var out bytes.Buffer
		code, err := l.execute(ctx, command, l.cwd, cfg.timeout, &out)
		if err != nil {
			res = dispatchFailure(command, err)
		} else {
			res = &Result{Command: command, ExitCode: code, Output: strings.TrimSpace(out.String())}
		}
	}
	logResult(localHost, res, cfg.quiet)
	l.before = res.Output
	return res
}

// execute 运行命令并把输出写入 out
// 返回的 error 表示命令无法启动或超时，退出码非 0 不算 error
func (l *LocalSession) execute(ctx context.Context, command, dir string, timeout time.Duration, out io.Writer) (int, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, l.shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return -1, fmt.Errorf("command timed out after %s", timeout)
		}
		return -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// startDetached 启动后台命令，最多等待 detachWait 后返回合成结果
func (l *LocalSession) startDetached(command string) *Result {
	cmd := exec.Command(l.shell, "-c", command)
	cmd.Dir = l.cwd
	newProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return dispatchFailure(command, err)
	}
	done := make(chan struct{})
	go func() {
		// 回收子进程，避免僵尸进程
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(l.detachWait):
	}
	return &Result{Command: command}
}

func (l *LocalSession) ExecScript(ctx context.Context, scriptPath string, opts ...ScriptOption) (*Result, error) {
	cfg, err := newScriptConfig(l.timeout, opts)
	if err != nil {
		return nil, err
	}
	command := scriptPath
	if cfg.params != "" {
		command += " " + cfg.params
	}
	if cfg.redirect == "" {
		runOpts := []RunOption{WithTimeout(cfg.timeout)}
		if cfg.silent {
			runOpts = append(runOpts, Silent())
		}
		// 脚本路径相对于调用方的目录，不受 Cd 影响
		cwd := l.cwd
		l.cwd = ""
		defer func() { l.cwd = cwd }()
		return l.Run(ctx, command, runOpts...), nil
	}

	f, err := file.OpenTruncate(cfg.redirect, 0644)
	if err != nil {
		return nil, fmt.Errorf("open redirect target: %w", err)
	}
	defer f.Close()

	res := &Result{Command: cfg.scriptCommand(scriptPath)}
	if !cfg.silent {
		logger.Logger.Info("local> " + res.Command)
	}
	code, err := l.execute(ctx, command, "", cfg.timeout, f)
	if err != nil {
		res = dispatchFailure(res.Command, err)
	} else {
		res.ExitCode = code
	}
	logResult(localHost, res, false)
	l.before = res.Output
	return res, nil
}

// CopyIn 本地 Session 上等价于文件系统复制
func (l *LocalSession) CopyIn(ctx context.Context, src, dst string, recursive bool) error {
	if !path.IsAbs(src) || !path.IsAbs(dst) {
		return fmt.Errorf("%w (src %s dst %s)", ErrRelativePath, src, dst)
	}
	if path.Clean(src) == path.Clean(dst) {
		// 文件已经在目标位置
		return nil
	}
	command := fmt.Sprintf("cp %s %s", shellQuote(src), shellQuote(dst))
	if recursive {
		// 与远程打包传输得到相同的目录布局: dst/<basename(src)>
		command = fmt.Sprintf("mkdir -p %s && cp -r %s %s/", shellQuote(dst), shellQuote(src), shellQuote(dst))
	}
	if res := l.Run(ctx, command); !res.OK() {
		err := fmt.Errorf("copy %s -> %s failed: %s", src, dst, res.Output)
		logger.Logger.Error("copy failed", "host", localHost, "src", src, "dst", dst, "err", err)
		return err
	}
	return nil
}

func (l *LocalSession) CopyOut(ctx context.Context, src, dst string, recursive bool) error {
	return l.CopyIn(ctx, src, dst, recursive)
}

// shellQuote 用单引号包裹参数，供拼接到 shell 命令中
func shellQuote(s string) string {
	if s != "" && strings.Trim(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./:=@%+,") == "" {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
