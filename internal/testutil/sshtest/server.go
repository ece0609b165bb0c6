// Package sshtest 提供进程内的 SSH/SFTP 服务端，用于测试远程执行和文件传输
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/xops-ci/pkg/utils/file"
	"golang.org/x/crypto/ssh"
)

const User = "tester"

// Server 是一个只接受指定私钥登录的 SSH 服务端
// exec 请求交给本机 bash -c 执行，sftp 子系统直接读写本机文件系统
type Server struct {
	Host    string
	Port    int
	KeyFile string // 客户端私钥 (OpenSSH PEM 格式)

	dir string
	ln  net.Listener
	wg  sync.WaitGroup

	mu    sync.Mutex
	conns []net.Conn
}

// Start 启动服务端，测试结束时自动关闭
func Start(t testing.TB) *Server {
	t.Helper()
	dir := t.TempDir()

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(clientPriv, "")
	require.NoError(t, err)
	keyFile := filepath.Join(dir, "id_ed25519")
	require.NoError(t, file.CreateFileRecursive(keyFile, pem.EncodeToMemory(block), 0600))
	authorized, err := ssh.NewPublicKey(clientPub)
	require.NoError(t, err)

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", meta.User())
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &Server{
		Host:    "127.0.0.1",
		Port:    ln.Addr().(*net.TCPAddr).Port,
		KeyFile: keyFile,
		dir:     dir,
		ln:      ln,
	}
	s.wg.Add(1)
	go s.serve(cfg)
	t.Cleanup(s.Close)
	return s
}

// WriteSSHConfig 生成一个 ssh_config 文件，每个别名都指向该服务端
func (s *Server) WriteSSHConfig(t testing.TB, aliases ...string) string {
	t.Helper()
	var b strings.Builder
	for _, alias := range aliases {
		fmt.Fprintf(&b, "Host %s\n  HostName %s\n  Port %d\n  User %s\n  IdentityFile %s\n\n",
			alias, s.Host, s.Port, User, s.KeyFile)
	}
	path := filepath.Join(s.dir, "ssh_config")
	require.NoError(t, file.CreateFileRecursive(path, []byte(b.String()), 0600))
	return path
}

// Close 关闭监听和所有连接
func (s *Server) Close() {
	s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve(cfg *ssh.ServerConfig) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handleConn(conn, cfg)
		}()
	}
}

func handleConn(raw net.Conn, cfg *ssh.ServerConfig) {
	sc, chans, reqs, err := ssh.NewServerConn(raw, cfg)
	if err != nil {
		raw.Close()
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		wg.Go(func() { handleSession(ch, chReqs) })
	}
	wg.Wait()
}

func handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	var cmd *exec.Cmd
	done := make(chan struct{})

	for {
		select {
		case <-done:
			return
		case req, ok := <-reqs:
			if !ok {
				// 客户端关闭了 channel
				if cmd != nil && cmd.Process != nil {
					cmd.Process.Kill()
				}
				return
			}
			switch req.Type {
			case "exec":
				var payload struct{ Command string }
				if cmd != nil || ssh.Unmarshal(req.Payload, &payload) != nil {
					req.Reply(false, nil)
					continue
				}
				c, err := startCommand(ch, payload.Command)
				if err != nil {
					req.Reply(false, nil)
					return
				}
				cmd = c
				req.Reply(true, nil)
				go func() {
					sendExitStatus(ch, c.Wait())
					close(done)
				}()
			case "subsystem":
				var payload struct{ Name string }
				if ssh.Unmarshal(req.Payload, &payload) != nil || payload.Name != "sftp" {
					req.Reply(false, nil)
					continue
				}
				server, err := sftp.NewServer(ch)
				if err != nil {
					req.Reply(false, nil)
					return
				}
				req.Reply(true, nil)
				go func() {
					server.Serve()
					server.Close()
					close(done)
				}()
			case "signal":
				if cmd != nil && cmd.Process != nil {
					cmd.Process.Kill()
				}
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}
}

func startCommand(ch ssh.Channel, command string) (*exec.Cmd, error) {
	cmd := exec.Command("bash", "-c", command)
	cmd.Stdout = ch
	cmd.Stderr = ch.Stderr()
	cmd.WaitDelay = time.Second
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go func() {
		io.Copy(stdin, ch)
		stdin.Close()
	}()
	return cmd, nil
}

func sendExitStatus(ch ssh.Channel, err error) {
	status := 0
	if err != nil {
		status = 255
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() >= 0 {
			status = exitErr.ExitCode()
		}
	}
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
}
