package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wentf9/xops-ci/pkg/logger"
	"github.com/wentf9/xops-ci/pkg/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

type Client struct {
	sshClient     *ssh.Client
	endpoint      models.Endpoint
	jump          *Client
	stopKeepAlive func()
}

func NewClient(raw *ssh.Client, ep models.Endpoint) *Client {
	return &Client{
		sshClient: raw,
		endpoint:  ep,
	}
}

// Close 关闭连接，同时关闭跳板机连接
func (c *Client) Close() error {
	if c.stopKeepAlive != nil {
		c.stopKeepAlive()
	}
	err := c.sshClient.Close()
	if c.jump != nil {
		c.jump.Close()
	}
	return err
}

// SSHClient 暴露底层的 ssh.Client (供 SFTP 等高级操作使用)
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

// Endpoint 返回当前连接对应的解析结果
func (c *Client) Endpoint() models.Endpoint {
	return c.endpoint
}

// Run 在新的 channel 上执行命令，返回合并后的 stdout/stderr 和退出码
// error 只表示传输层失败 (无法打开 channel、ctx 超时、连接中断)，命令本身失败体现在退出码上
func (c *Client) Run(ctx context.Context, command string) (string, int, error) {
	return c.RunWithInput(ctx, command, nil)
}

// RunWithInput 与 Run 相同，同时把 input 流式写入远程命令的 stdin
func (c *Client) RunWithInput(ctx context.Context, command string, input io.Reader) (string, int, error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var out lockedBuffer
	session.Stdout = &out
	session.Stderr = &out

	var stdin io.WriteCloser
	if input != nil {
		if stdin, err = session.StdinPipe(); err != nil {
			return "", -1, fmt.Errorf("failed to open stdin: %w", err)
		}
	}
	if err := session.Start(command); err != nil {
		return "", -1, fmt.Errorf("failed to start command: %w", err)
	}

	var g errgroup.Group
	if stdin != nil {
		g.Go(func() error {
			defer stdin.Close()
			_, err := io.Copy(stdin, input)
			return err
		})
	}

	output, code, err := waitWithTimeout(ctx, session, &out)
	// 远端提前退出时 stdin 写入会失败，先关闭 channel 让写协程退出
	session.Close()
	if copyErr := g.Wait(); copyErr != nil && !errors.Is(copyErr, io.EOF) {
		logger.Logger.Debug("stdin stream interrupted", "host", c.endpoint.Name, "err", copyErr)
	}
	return output, code, err
}

// Start 启动命令后立即返回，不等待结束
// 返回的 session 由调用方负责关闭
func (c *Client) Start(command string) (*ssh.Session, error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	if err := session.Start(command); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	return session, nil
}

func waitWithTimeout(ctx context.Context, session *ssh.Session, out *lockedBuffer) (string, int, error) {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			return out.String(), 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Signal() != "" {
				return out.String(), -1, fmt.Errorf("command killed by signal %s", exitErr.Signal())
			}
			return out.String(), exitErr.ExitStatus(), nil
		}
		return out.String(), -1, fmt.Errorf("failed to run command: %w", err)
	case <-ctx.Done():
		// 上下文取消，尝试终止命令
		if killErr := session.Signal(ssh.SIGKILL); killErr != nil {
			logger.Logger.Debug("failed to kill command after context done", "err", killErr)
		}
		return out.String(), -1, ctx.Err()
	}
}

// lockedBuffer 同时作为 stdout 和 stderr 的写入目标
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
