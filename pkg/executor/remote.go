package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/logger"
	"github.com/wentf9/xops-ci/pkg/sftp"
	"github.com/wentf9/xops-ci/pkg/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// RemoteSession 通过 SSH 执行命令
// 每条命令都在新的 channel 中执行，工作目录通过 "cd X && " 前缀实现
type RemoteSession struct {
	client     *ssh.Client
	host       string
	timeout    time.Duration
	detachWait time.Duration
	cwd        string
	before     string

	// 单次 SFTP 传输的超时和分块参数
	transferTimeout time.Duration
	transferOpts    []sftp.Option

	// 后台命令的 channel，在 Close 时统一关闭
	detached []*gossh.Session
	progress sftp.ProgressCallback
	// 打包/解包归档时使用的本机一侧
	local *LocalSession
}

func NewRemoteSession(client *ssh.Client, host string, s config.Settings) *RemoteSession {
	return &RemoteSession{
		client:          client,
		host:            host,
		timeout:         s.CommandTimeout,
		detachWait:      s.DetachWait,
		transferTimeout: s.TransferTimeout,
		transferOpts: []sftp.Option{
			sftp.WithThreadsPerFile(s.TransferThreads),
			sftp.WithChunkSize(s.TransferChunkSize),
		},
		local: NewLocalSession(s),
	}
}

func (r *RemoteSession) Host() string { return r.host }

func (r *RemoteSession) Cwd() string { return r.cwd }

func (r *RemoteSession) Before() string { return r.before }

func (r *RemoteSession) Cd(ctx context.Context, dir string) {
	wd, err := joinDir(ctx, r.cwd, dir, r.pwd)
	if err != nil {
		logger.Logger.Warn("cd failed", "host", r.host, "dir", dir, "err", err)
		return
	}
	r.cwd = wd
	logger.Logger.Debug("working dir changed", "host", r.host, "dir", wd)
}

func (r *RemoteSession) pwd(ctx context.Context) (string, error) {
	res := r.Run(ctx, "pwd", Silent())
	if !res.OK() {
		return "", fmt.Errorf("pwd: %s", res.Output)
	}
	return res.Output, nil
}

func (r *RemoteSession) Run(ctx context.Context, command string, opts ...RunOption) *Result {
	cfg := newRunConfig(r.timeout, opts)
	if !cfg.silent {
		logger.Logger.Info(fmt.Sprintf("ssh[%s]> %s", r.host, command), "dir", r.cwd)
	}
	line := command
	if r.cwd != "" {
		line = fmt.Sprintf("cd %s && %s", shellQuote(r.cwd), command)
	}

	var res *Result
	if cfg.detached {
		res = r.startDetached(line)
	} else {
		runCtx, cancel := withTimeout(ctx, cfg.timeout)
		out, code, err := r.client.Run(runCtx, line)
		cancel()
		if err != nil {
			res = dispatchFailure(line, err)
		} else {
			res = &Result{Command: line, ExitCode: code, Output: strings.TrimSpace(out)}
		}
	}
	logResult(r.host, res, cfg.quiet)
	r.before = res.Output
	return res
}

// startDetached 远程没有进程句柄，短暂等待后返回退出码为 0 的合成结果
func (r *RemoteSession) startDetached(line string) *Result {
	session, err := r.client.Start(line)
	if err != nil {
		return dispatchFailure(line, err)
	}
	r.detached = append(r.detached, session)
	done := make(chan struct{})
	go func() {
		session.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.detachWait):
	}
	return &Result{Command: line}
}

// ExecScript 把本地脚本内容写入远程 "bash -s" 的 stdin，不需要先上传脚本
// xtrace 输出重定向到 stdout 以便一起捕获
func (r *RemoteSession) ExecScript(ctx context.Context, scriptPath string, opts ...ScriptOption) (*Result, error) {
	cfg, err := newScriptConfig(r.timeout, opts)
	if err != nil {
		return nil, err
	}
	remoteCmd := "BASH_XTRACEFD=1 bash -s"
	if cfg.params != "" {
		remoteCmd += " " + cfg.params
	}
	if cfg.redirect != "" {
		remoteCmd += fmt.Sprintf(" > %s 2>&1", shellQuote(cfg.redirect))
	}
	command := cfg.scriptCommand(scriptPath)
	if !cfg.silent {
		logger.Logger.Info(fmt.Sprintf("local> ssh %s %s < %s", r.host, remoteCmd, scriptPath))
	}

	var res *Result
	f, err := os.Open(scriptPath)
	if err != nil {
		res = dispatchFailure(command, err)
	} else {
		defer f.Close()
		runCtx, cancel := withTimeout(ctx, cfg.timeout)
		out, code, err := r.client.RunWithInput(runCtx, remoteCmd, f)
		cancel()
		if err != nil {
			res = dispatchFailure(command, err)
		} else {
			res = &Result{Command: command, ExitCode: code, Output: strings.TrimSpace(out)}
		}
	}
	logResult(r.host, res, false)
	r.before = res.Output
	return res, nil
}

func (r *RemoteSession) CopyOut(ctx context.Context, src, dst string, recursive bool) error {
	logger.Logger.Debug("copyout", "src", "local:"+src, "dst", r.host+":"+dst, "recursive", recursive)
	var err error
	if recursive {
		err = r.copyOutRecursive(ctx, src, dst)
	} else {
		err = r.putFile(ctx, src, dst)
	}
	if err != nil {
		logger.Logger.Error("copyout failed", "host", r.host, "src", src, "dst", dst, "err", err)
	}
	return err
}

func (r *RemoteSession) CopyIn(ctx context.Context, src, dst string, recursive bool) error {
	logger.Logger.Debug("copyin", "src", r.host+":"+src, "dst", "local:"+dst, "recursive", recursive)
	var err error
	if recursive {
		err = r.copyInRecursive(ctx, src, dst)
	} else {
		err = r.getFile(ctx, src, dst)
	}
	if err != nil {
		logger.Logger.Error("copyin failed", "host", r.host, "src", src, "dst", dst, "err", err)
	}
	return err
}

// putFile/getFile 每次传输单独打开 SFTP 子系统，与 shell channel 互不影响
func (r *RemoteSession) putFile(ctx context.Context, src, dst string) error {
	return r.withSFTP(ctx, func(ctx context.Context, client *sftp.Client) error {
		return client.Upload(ctx, src, dst, r.progress)
	})
}

func (r *RemoteSession) getFile(ctx context.Context, src, dst string) error {
	return r.withSFTP(ctx, func(ctx context.Context, client *sftp.Client) error {
		return client.Download(ctx, src, dst, r.progress)
	})
}

// withSFTP 在 transferTimeout 内执行 fn，超时或取消时中断阻塞中的 SFTP 请求
func (r *RemoteSession) withSFTP(ctx context.Context, fn func(context.Context, *sftp.Client) error) error {
	ctx, cancel := withTimeout(ctx, r.transferTimeout)
	defer cancel()

	client, err := sftp.NewClient(ctx, r.client, r.transferOpts...)
	if err != nil {
		return err
	}
	defer client.Close()
	stop := client.AbortOnDone(ctx)
	defer stop()

	if err := fn(ctx, client); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("transfer aborted: %w", ctxErr)
		}
		return err
	}
	return nil
}

// Close 关闭后台命令的 channel 和 SSH 连接
func (r *RemoteSession) Close() error {
	for _, s := range r.detached {
		s.Close()
	}
	r.detached = nil
	return r.client.Close()
}
