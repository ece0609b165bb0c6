package ssh

import (
	"context"
	"io"
	"net"
	"os/exec"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHProxyDialer 实现了 Dialer 接口，通过 SSH 隧道转发流量
type SSHProxyDialer struct {
	Client *ssh.Client
}

func (s *SSHProxyDialer) Dial(network, addr string) (net.Conn, error) {
	return s.Client.Dial(network, addr)
}

func (s *SSHProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	// ssh.Client.Dial 本身不支持 Context，异步拨号以支持取消
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		conn, err := s.Client.Dial(network, addr)
		ch <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	}
}

// ProxyCommandDialer 通过 ssh_config 的 ProxyCommand 建立连接:
// 子进程的 stdin/stdout 即为到目标主机的字节流
type ProxyCommandDialer struct {
	Command string
}

func (p *ProxyCommandDialer) Dial(network, addr string) (net.Conn, error) {
	return p.DialContext(context.Background(), network, addr)
}

func (p *ProxyCommandDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// 连接的生命周期比 ctx 长，不能用 CommandContext
	cmd := exec.Command("/bin/sh", "-c", p.Command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &proxyConn{cmd: cmd, stdin: stdin, stdout: stdout, addr: proxyAddr(addr)}, nil
}

type proxyConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	addr   proxyAddr
}

func (c *proxyConn) Read(b []byte) (int, error)  { return c.stdout.Read(b) }
func (c *proxyConn) Write(b []byte) (int, error) { return c.stdin.Write(b) }

func (c *proxyConn) Close() error {
	c.stdin.Close()
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}

func (c *proxyConn) LocalAddr() net.Addr                { return proxyAddr("proxycommand") }
func (c *proxyConn) RemoteAddr() net.Addr               { return c.addr }
func (c *proxyConn) SetDeadline(t time.Time) error      { return nil }
func (c *proxyConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *proxyConn) SetWriteDeadline(t time.Time) error { return nil }

type proxyAddr string

func (a proxyAddr) Network() string { return "proxycommand" }
func (a proxyAddr) String() string  { return string(a) }
