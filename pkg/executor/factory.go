package executor

import (
	"context"

	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/sftp"
	"github.com/wentf9/xops-ci/pkg/ssh"
)

// Factory 根据主机名创建本地或远程 Session
type Factory struct {
	Settings  config.Settings
	Connector *ssh.Connector
}

// NewFactory 根据配置选择主机解析来源并创建 Factory
func NewFactory(s config.Settings) (*Factory, error) {
	resolver, err := s.NewResolver()
	if err != nil {
		return nil, err
	}
	return &Factory{
		Settings:  s,
		Connector: ssh.NewConnector(resolver, s),
	}, nil
}

type openConfig struct {
	dir      string
	progress sftp.ProgressCallback
}

// OpenOption 定义 Open 的可选参数
type OpenOption func(*openConfig)

// WithDir 设置 Session 的初始工作目录
func WithDir(dir string) OpenOption {
	return func(c *openConfig) { c.dir = dir }
}

// WithProgress 设置远程单文件传输的进度回调
func WithProgress(cb sftp.ProgressCallback) OpenOption {
	return func(c *openConfig) { c.progress = cb }
}

// Open 返回 host 对应的 Session，本机名返回 LocalSession
// 远程主机解析失败返回 config.ErrConfig，连接失败返回 ssh.ErrConnect，不会退回到本地执行
func (f *Factory) Open(ctx context.Context, host string, opts ...OpenOption) (Session, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var s Session
	if config.IsLocal(host) {
		s = NewLocalSession(f.Settings)
	} else {
		client, err := f.Connector.Connect(ctx, host)
		if err != nil {
			return nil, err
		}
		rs := NewRemoteSession(client, host, f.Settings)
		rs.progress = cfg.progress
		s = rs
	}
	if cfg.dir != "" {
		s.Cd(ctx, cfg.dir)
	}
	return s, nil
}

// With 打开 Session 并执行 fn，fn 返回或 panic 时都会关闭 Session
func (f *Factory) With(ctx context.Context, host string, fn func(Session) error, opts ...OpenOption) error {
	s, err := f.Open(ctx, host, opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// RunScript 打开一个临时 Session 执行脚本后关闭
func (f *Factory) RunScript(ctx context.Context, host, scriptPath string, opts ...ScriptOption) (*Result, error) {
	// 在建立连接之前校验参数
	if _, err := newScriptConfig(0, opts); err != nil {
		return nil, err
	}
	var res *Result
	err := f.With(ctx, host, func(s Session) error {
		var err error
		res, err = s.ExecScript(ctx, scriptPath, opts...)
		return err
	})
	return res, err
}
