package executor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/wentf9/xops-ci/pkg/logger"
)

// ExitDispatchFailure 表示命令没有被启动或无法观察到结果 (传输异常、超时等)
// 与命令自身返回的失败码区分开
const ExitDispatchFailure = 255

var (
	ErrInvalidRedirect = errors.New("redirect must be an absolute path")
	ErrRelativePath    = errors.New("only absolute paths are supported")
)

// Session 是一个本地或远程的命令执行上下文
// 同一个 Session 同一时刻只能被一个协程使用
type Session interface {
	// Host 返回 Session 对应的主机名
	Host() string
	// Run 执行命令，执行失败体现在 Result 的退出码上，不会返回 error
	Run(ctx context.Context, command string, opts ...RunOption) *Result
	// Cd 修改工作目录: 空字符串清除，绝对路径替换，相对路径追加
	Cd(ctx context.Context, dir string)
	// Cwd 返回当前跟踪的工作目录，未设置时为空
	Cwd() string
	// ExecScript 执行本地脚本文件，redirect 不是绝对路径时在执行前返回 ErrInvalidRedirect
	ExecScript(ctx context.Context, scriptPath string, opts ...ScriptOption) (*Result, error)
	// CopyIn 将 Session 所在主机的 src 复制到本机的 dst
	CopyIn(ctx context.Context, src, dst string, recursive bool) error
	// CopyOut 将本机的 src 复制到 Session 所在主机的 dst
	CopyOut(ctx context.Context, src, dst string, recursive bool) error
	// Before 返回上一次执行结果的输出
	Before() string
	Close() error
}

// Result 是一次命令执行的结果
type Result struct {
	Command  string // 实际执行的命令 (包含 cd 前缀或重定向标注)
	ExitCode int
	Output   string // 合并后的 stdout/stderr，去除首尾空白
}

func (r *Result) OK() bool {
	return r.ExitCode == 0
}

func (r *Result) String() string {
	return fmt.Sprintf("%q exited %d", r.Command, r.ExitCode)
}

func dispatchFailure(command string, err error) *Result {
	return &Result{
		Command:  command,
		ExitCode: ExitDispatchFailure,
		Output:   "Exception: " + err.Error(),
	}
}

type runConfig struct {
	timeout  time.Duration
	detached bool
	silent   bool
	quiet    bool
}

// RunOption 定义 Run 的可选参数
type RunOption func(*runConfig)

// WithTimeout 设置命令超时，超时后命令被终止并返回 ExitDispatchFailure
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Detached 后台执行: 短暂等待后立即返回退出码为 0 的合成结果，不观察命令的最终状态
func Detached() RunOption {
	return func(c *runConfig) { c.detached = true }
}

// Silent 不记录执行的命令行
func Silent() RunOption {
	return func(c *runConfig) { c.silent = true }
}

// Quiet 退出码非 0 时不记录警告，用于预期会失败的命令
func Quiet() RunOption {
	return func(c *runConfig) { c.quiet = true }
}

func newRunConfig(timeout time.Duration, opts []RunOption) runConfig {
	cfg := runConfig{timeout: timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type scriptConfig struct {
	params   string
	redirect string
	timeout  time.Duration
	silent   bool
}

// ScriptOption 定义 ExecScript 的可选参数
type ScriptOption func(*scriptConfig)

func WithParameters(params string) ScriptOption {
	return func(c *scriptConfig) { c.params = strings.TrimSpace(params) }
}

// WithRedirect 将脚本输出写入指定文件 (必须是绝对路径)，结果中不再包含输出
func WithRedirect(target string) ScriptOption {
	return func(c *scriptConfig) { c.redirect = target }
}

func WithScriptTimeout(d time.Duration) ScriptOption {
	return func(c *scriptConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func SilentScript() ScriptOption {
	return func(c *scriptConfig) { c.silent = true }
}

func newScriptConfig(timeout time.Duration, opts []ScriptOption) (scriptConfig, error) {
	cfg := scriptConfig{timeout: timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.redirect != "" && !path.IsAbs(cfg.redirect) {
		return cfg, fmt.Errorf("%w, but is %q", ErrInvalidRedirect, cfg.redirect)
	}
	return cfg, nil
}

// scriptCommand 返回结果中记录的命令行
func (c scriptConfig) scriptCommand(scriptPath string) string {
	command := scriptPath
	if c.params != "" {
		command += " " + c.params
	}
	if c.redirect != "" {
		command += " &> " + c.redirect
	}
	return command
}

// withTimeout 在 d > 0 时为 ctx 加上超时
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// logResult 记录非 0 退出码
func logResult(host string, res *Result, quiet bool) {
	if quiet || res.ExitCode == 0 {
		return
	}
	logger.Logger.Warn("command returned non-zero returncode",
		"host", host, "cmd", res.Command, "exit", res.ExitCode, "output", res.Output)
}

// joinDir 计算 cd 之后的工作目录
// 相对路径且当前目录未知时调用 pwd 查询实际目录
func joinDir(ctx context.Context, cur, dir string, pwd func(ctx context.Context) (string, error)) (string, error) {
	if dir == "" {
		return "", nil
	}
	if path.IsAbs(dir) {
		return path.Clean(dir), nil
	}
	if cur == "" {
		wd, err := pwd(ctx)
		if err != nil {
			return "", err
		}
		cur = wd
	}
	return path.Join(cur, dir), nil
}
