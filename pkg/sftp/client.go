package sftp

import (
	"context"
	"fmt"

	"github.com/pkg/sftp"
	"github.com/wentf9/xops-ci/pkg/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// Option 定义配置函数的类型
type Option func(*Client)

func WithThreadsPerFile(t int) Option {
	return func(c *Client) {
		if t > 0 {
			c.config.ThreadsPerFile = t
		}
	}
}

func WithChunkSize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.config.ChunkSize = size
		}
	}
}

// Client 包装了 sftp.Client，并持有子系统所在的 channel
type Client struct {
	sftpClient *sftp.Client
	// Abort 时直接关闭该 channel
	session *gossh.Session
	config  TransferConfig
}

// NewClient 基于现有的 SSH 连接创建一个 SFTP 客户端
// 复用 pkg/ssh 中已经建立好的连接 (包括跳板机隧道)
// 打开子系统的过程受 ctx 控制
func NewClient(ctx context.Context, sshCli *ssh.Client, opts ...Option) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		client *Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := openClient(sshCli)
		ch <- result{client: c, err: err}
	}()

	var c *Client
	select {
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.client != nil {
				res.client.Close()
			}
		}()
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		c = res.client
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func openClient(sshCli *ssh.Client) (*Client, error) {
	session, err := sshCli.SSHClient().NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open sftp channel: %w", err)
	}
	pw, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	pr, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.RequestSubsystem("sftp"); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	client, err := sftp.NewClientPipe(pr, pw)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	return &Client{
		sftpClient: client,
		session:    session,
		config:     DefaultConfig(),
	}, nil
}

// AbortOnDone 在 ctx 结束时中断所有未完成的 SFTP 请求
// 返回的 stop 用于在传输正常结束后解除绑定
func (c *Client) AbortOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, c.Abort)
}

// Abort 先关闭 channel 使阻塞中的请求返回，再关闭 SFTP 会话
func (c *Client) Abort() {
	c.session.Close()
	c.sftpClient.Close()
}

// Close 关闭 SFTP 会话，不会关闭底层的 SSH 连接
func (c *Client) Close() error {
	err := c.sftpClient.Close()
	c.session.Close()
	return err
}

// JoinPath 处理远程路径拼接 (SFTP 协议强制使用 forward slash)
func (c *Client) JoinPath(elem ...string) string {
	return c.sftpClient.Join(elem...)
}
