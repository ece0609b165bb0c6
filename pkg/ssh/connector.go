package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/logger"
	"github.com/wentf9/xops-ci/pkg/models"
	"golang.org/x/crypto/ssh"
)

// ErrConnect 表示重试耗尽后仍无法建立 SSH 连接
var ErrConnect = errors.New("connection error")

// 跳板机链的最大深度，防止 ProxyJump 配置成环
const maxJumpDepth = 8

// Connector 负责创建 SSH 连接
// 每次 Connect 都重新解析主机并新建连接，不做缓存
type Connector struct {
	Resolver config.Resolver

	// Dialer 为直连拨号器，为空时使用 net.Dialer
	Dialer Dialer

	Retries     int
	RetryDelay  time.Duration
	Exponential bool
	DialTimeout time.Duration
	KeepAlive   time.Duration
}

// NewConnector 使用 harness 配置创建 Connector
func NewConnector(resolver config.Resolver, s config.Settings) *Connector {
	return &Connector{
		Resolver:    resolver,
		Retries:     s.ConnectRetries,
		RetryDelay:  s.RetryBackoff,
		Exponential: s.ExponentialBackoff,
		DialTimeout: s.DialTimeout,
		KeepAlive:   s.KeepAlive,
	}
}

// Connect 根据主机名建立 SSH 连接
// 解析失败返回 config.ErrConfig (不重试); 多次尝试均失败返回 ErrConnect
// 如果主机配置了 ProxyJump，会递归建立跳板机连接
func (c *Connector) Connect(ctx context.Context, host string) (*Client, error) {
	ep, err := c.Resolver.Resolve(host)
	if err != nil {
		return nil, err
	}
	return c.connectEndpoint(ctx, ep, 0)
}

func (c *Connector) connectEndpoint(ctx context.Context, ep models.Endpoint, depth int) (*Client, error) {
	sshConfig, err := c.buildSSHConfig(ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", config.ErrConfig, ep.Name, err)
	}

	var jump *Client
	dialer := c.directDialer()
	switch {
	case ep.ProxyJump != "":
		if depth >= maxJumpDepth {
			return nil, fmt.Errorf("%w: proxy jump chain too deep at '%s'", config.ErrConfig, ep.Name)
		}
		jumpEp, err := c.Resolver.Resolve(ep.ProxyJump)
		if err != nil {
			return nil, err
		}
		jump, err = c.connectEndpoint(ctx, jumpEp, depth+1)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to jump host '%s': %w", ep.ProxyJump, err)
		}
		// 使用跳板机的 SSH 通道作为 Dialer
		dialer = &SSHProxyDialer{Client: jump.sshClient}
	case ep.ProxyCommand != "":
		dialer = &ProxyCommandDialer{Command: ep.ProxyCommand}
	}

	var raw *ssh.Client
	attempts := 0
	operation := func() error {
		attempts++
		cl, err := c.dial(ctx, dialer, ep, sshConfig)
		if err != nil {
			logger.Logger.Error("could not connect", "host", ep.Name, "addr", ep.Addr(), "attempt", attempts, "err", err)
			return err
		}
		raw = cl
		return nil
	}
	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		if jump != nil {
			jump.Close()
		}
		return nil, fmt.Errorf("%w: %s: max retries (%d), did not connect: %v", ErrConnect, ep.Name, attempts, err)
	}
	logger.Logger.Debug("connected", "host", ep.Name, "addr", ep.Addr(), "attempts", attempts)

	client := NewClient(raw, ep)
	client.jump = jump
	if c.KeepAlive > 0 {
		client.stopKeepAlive = StartKeepAlive(raw, c.KeepAlive, func(err error) {
			logger.Logger.Warn("keepalive failed, connection closed", "host", ep.Name, "err", err)
		})
	}
	return client, nil
}

func (c *Connector) dial(ctx context.Context, dialer Dialer, ep models.Endpoint, sshConfig *ssh.ClientConfig) (*ssh.Client, error) {
	addr := ep.Addr()
	dialCtx := ctx
	if c.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.DialTimeout)
		defer cancel()
	}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if c.DialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.DialTimeout))
	}

	// ProxyCommand 与跳板机通道不支持 deadline，握手放到 goroutine 中以便按 ctx 中断
	type handshake struct {
		ncc   ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}
	ch := make(chan handshake, 1)
	go func() {
		ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
		ch <- handshake{ncc: ncc, chans: chans, reqs: reqs, err: err}
	}()

	select {
	case <-dialCtx.Done():
		// 关闭底层连接使握手返回
		conn.Close()
		go func() {
			if res := <-ch; res.err == nil {
				res.ncc.Close()
			}
		}()
		return nil, fmt.Errorf("ssh handshake with %s did not complete: %w", addr, dialCtx.Err())
	case res := <-ch:
		if res.err != nil {
			conn.Close()
			return nil, fmt.Errorf("ssh handshake failed for %s: %w", addr, res.err)
		}
		_ = conn.SetDeadline(time.Time{})
		return ssh.NewClient(res.ncc, res.chans, res.reqs), nil
	}
}

// retryPolicy 默认为无间隔的固定重试，开启 Exponential 后使用指数退避
func (c *Connector) retryPolicy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if c.Exponential {
		eb := backoff.NewExponentialBackOff()
		if c.RetryDelay > 0 {
			eb.InitialInterval = c.RetryDelay
		}
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(c.RetryDelay)
	}
	retries := c.Retries
	if retries <= 0 {
		retries = 1
	}
	// WithMaxRetries 计的是重试次数，不包含第一次尝试
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries-1)), ctx)
}

func (c *Connector) directDialer() Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &net.Dialer{Timeout: c.DialTimeout}
}

// buildSSHConfig 根据解析结果构建 ssh.ClientConfig
func (c *Connector) buildSSHConfig(ep models.Endpoint) (*ssh.ClientConfig, error) {
	methods, err := endpointAuth(ep)
	if err != nil {
		return nil, err
	}
	var authMethods []ssh.AuthMethod
	var lastErr error
	for _, m := range methods {
		am, err := m.GetMethod()
		if err != nil {
			lastErr = err
			continue
		}
		authMethods = append(authMethods, am)
	}
	if len(authMethods) == 0 {
		return nil, lastErr
	}

	callback, err := hostKeyCallback(ep)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            ep.User,
		Auth:            authMethods,
		HostKeyCallback: callback,
		Timeout:         c.DialTimeout,
	}, nil
}
