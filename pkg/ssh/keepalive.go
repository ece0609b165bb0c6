package ssh

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// StartKeepAlive 开启一个协程，定期向 SSH Server 发送心跳
// interval: 心跳间隔 (建议 15s - 60s)
// fallback: 可选的回调函数，心跳失败时会关闭连接并调用它
// 返回的 stop 函数可重复调用
func StartKeepAlive(client *ssh.Client, interval time.Duration, fallback func(err error)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			// "keepalive@openssh.com" 是 OpenSSH 标准的心跳请求类型
			// wantReply = true: 服务器挂了或网络断了时 SendRequest 会报错
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				// 显式关闭 Client，正在使用的 Session 也会收到错误通知
				client.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
