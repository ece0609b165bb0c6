package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/wentf9/xops-ci/pkg/crypto"
	"github.com/wentf9/xops-ci/pkg/models"
	"github.com/wentf9/xops-ci/pkg/utils/file"
)

// IsLocal 判断主机名是否指向本机: "", "none", "localhost" (忽略大小写)
func IsLocal(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "", "none", "localhost":
		return true
	}
	return false
}

// Resolver 将符号主机名解析为连接参数
type Resolver interface {
	Resolve(host string) (models.Endpoint, error)
}

// SSHConfigResolver 从用户级 ssh_config 文件解析主机
// 每次调用都会重新读取文件，不做缓存
type SSHConfigResolver struct {
	Path string
}

func (r *SSHConfigResolver) Resolve(host string) (models.Endpoint, error) {
	path := r.Path
	if path == "" {
		path = "~/.ssh/config"
	}
	f, err := os.Open(file.ExpandHome(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Endpoint{}, fmt.Errorf("%w: ssh config %s not found", ErrConfig, path)
		}
		return models.Endpoint{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return models.Endpoint{}, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}

	get := func(key string) string {
		v, _ := cfg.Get(host, key)
		return strings.TrimSpace(v)
	}

	user := get("User")
	identities, _ := cfg.GetAll(host, "IdentityFile")
	if user == "" || len(identities) == 0 {
		return models.Endpoint{}, fmt.Errorf("%w: no IdentityFile or User in %s for host %s", ErrConfig, path, host)
	}

	ep := models.Endpoint{
		Name:      host,
		Address:   host,
		Port:      22,
		User:      user,
		ProxyJump: get("ProxyJump"),
	}
	if hn := get("HostName"); hn != "" {
		ep.Address = expandTokens(hn, host, "", "")
	}
	if p := get("Port"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return models.Endpoint{}, fmt.Errorf("%w: invalid port %q for host %s", ErrConfig, p, host)
		}
		ep.Port = port
	}
	for _, id := range identities {
		ep.IdentityFiles = append(ep.IdentityFiles, file.ExpandHome(expandTokens(id, ep.Address, strconv.Itoa(ep.Port), user)))
	}
	if pc := get("ProxyCommand"); pc != "" && !strings.EqualFold(pc, "none") {
		ep.ProxyCommand = expandTokens(pc, ep.Address, strconv.Itoa(ep.Port), user)
	}
	if strings.EqualFold(ep.ProxyJump, "none") {
		ep.ProxyJump = ""
	}
	if strings.EqualFold(get("StrictHostKeyChecking"), "yes") {
		ep.StrictHostKey = true
		ep.KnownHostsFile = file.ExpandHome(get("UserKnownHostsFile"))
		if ep.KnownHostsFile == "" {
			ep.KnownHostsFile = file.ExpandHome("~/.ssh/known_hosts")
		}
		// UserKnownHostsFile 可以列出多个文件，只使用第一个
		ep.KnownHostsFile = strings.Fields(ep.KnownHostsFile)[0]
	}
	return ep, nil
}

// expandTokens 展开 ssh_config 中常用的 %h %p %r %d %% 记号
func expandTokens(s, host, port, user string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	home, _ := os.UserHomeDir()
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'h':
			b.WriteString(host)
		case 'p':
			b.WriteString(port)
		case 'r':
			b.WriteString(user)
		case 'd':
			b.WriteString(home)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// InventoryResolver 从 yaml/toml inventory 解析主机
// 口令和私钥密码可以是 ENC: 开头的密文，解析时用 KeyFile 中的密钥解密
type InventoryResolver struct {
	Provider ConfigProvider
	KeyFile  string
}

func (r *InventoryResolver) reveal(value string) (string, error) {
	if !crypto.IsEncrypted(value) {
		return value, nil
	}
	if r.KeyFile == "" {
		return "", fmt.Errorf("%w: encrypted secret but no secret key configured", ErrConfig)
	}
	key, err := crypto.LoadKey(file.ExpandHome(r.KeyFile))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	c, err := crypto.NewCrypter(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	plain, err := c.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return plain, nil
}

func (r *InventoryResolver) Resolve(host string) (models.Endpoint, error) {
	nodeId := r.Provider.Find(host)
	if nodeId == "" {
		return models.Endpoint{}, fmt.Errorf("%w: node not found '%s'", ErrConfig, host)
	}
	node, _ := r.Provider.GetNode(nodeId)
	h, ok := r.Provider.GetHost(nodeId)
	if !ok {
		return models.Endpoint{}, fmt.Errorf("%w: host ref '%s' not found for node '%s'", ErrConfig, node.HostRef, nodeId)
	}
	identity, ok := r.Provider.GetIdentity(nodeId)
	if !ok {
		return models.Endpoint{}, fmt.Errorf("%w: identity ref '%s' not found for node '%s'", ErrConfig, node.IdentityRef, nodeId)
	}
	if identity.User == "" {
		return models.Endpoint{}, fmt.Errorf("%w: identity '%s' has no user", ErrConfig, node.IdentityRef)
	}

	ep := models.Endpoint{
		Name:      host,
		Address:   h.Address,
		Port:      h.Port,
		User:      identity.User,
		ProxyJump: node.ProxyJump,
	}
	if ep.Port == 0 {
		ep.Port = 22
	}
	switch identity.AuthType {
	case "password":
		if identity.Password == "" {
			return models.Endpoint{}, fmt.Errorf("%w: auth type is password but password is empty for node '%s'", ErrConfig, nodeId)
		}
		password, err := r.reveal(identity.Password)
		if err != nil {
			return models.Endpoint{}, err
		}
		ep.Password = password
	case "key", "":
		if identity.KeyPath == "" {
			return models.Endpoint{}, fmt.Errorf("%w: auth type is key but key_path is empty for node '%s'", ErrConfig, nodeId)
		}
		ep.IdentityFiles = []string{file.ExpandHome(identity.KeyPath)}
		passphrase, err := r.reveal(identity.Passphrase)
		if err != nil {
			return models.Endpoint{}, err
		}
		ep.Passphrase = passphrase
	default:
		return models.Endpoint{}, fmt.Errorf("%w: unsupported auth type: %s", ErrConfig, identity.AuthType)
	}
	return ep, nil
}
