package models

import (
	"fmt"
	"net"
	"strconv"
)

// Identity 定义认证信息
type Identity struct {
	User       string `yaml:"user" toml:"user"`
	KeyPath    string `yaml:"key_path,omitempty" toml:"key_path"`
	Passphrase string `yaml:"passphrase,omitempty" toml:"passphrase"` // 私钥密码
	Password   string `yaml:"password,omitempty" toml:"password"`     // 登录密码
	AuthType   string `yaml:"auth_type" toml:"auth_type"`             // "key", "password"
}

// Host 定义网络连接信息
type Host struct {
	Alias   []string `yaml:"alias,omitempty" toml:"alias"`
	Address string   `yaml:"address" toml:"address"` // IP 或 域名
	Port    int      `yaml:"port" toml:"port"`
}

// Node 是用户操作的最小单元，聚合了 Host 和 Identity
type Node struct {
	Alias []string `yaml:"alias,omitempty" toml:"alias"`
	Tags  []string `yaml:"tags,omitempty" toml:"tags"` // 用于分组

	// 引用解耦
	HostRef     string `yaml:"host_ref" toml:"host_ref"`
	IdentityRef string `yaml:"identity_ref" toml:"identity_ref"`

	// 高级网络配置
	ProxyJump string `yaml:"proxy_jump,omitempty" toml:"proxy_jump"` // 指向另一个 Node 的 Name
}

// Endpoint 是一次解析得到的连接参数 (Host Descriptor)
// 每次创建 Session 时重新解析，不跨调用缓存
type Endpoint struct {
	Name    string // 调用方传入的符号名称
	Address string // 解析后的地址 (可能被配置中的 HostName 覆盖)
	Port    int
	User    string

	IdentityFiles []string
	Passphrase    string
	Password      string

	ProxyJump    string // 跳板机名称，会被递归解析
	ProxyCommand string // 已展开 %h/%p 的代理命令

	StrictHostKey  bool
	KnownHostsFile string
}

// Addr 返回 host:port 形式的拨号地址
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(e.Address, strconv.Itoa(port))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s (%s@%s)", e.Name, e.User, e.Addr())
}
