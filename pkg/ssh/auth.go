package ssh

import (
	"errors"
	"fmt"
	"os"

	"github.com/wentf9/xops-ci/pkg/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod 定义获取 SSH 认证方法的接口
type AuthMethod interface {
	GetMethod() (ssh.AuthMethod, error)
}

// PasswordAuth 实现密码认证
type PasswordAuth struct {
	Password string
}

func (p *PasswordAuth) GetMethod() (ssh.AuthMethod, error) {
	return ssh.Password(p.Password), nil
}

// KeyAuth 实现私钥认证
type KeyAuth struct {
	Path       string
	Passphrase string
}

func (k *KeyAuth) GetMethod() (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var signer ssh.Signer
	if k.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(k.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key %s is encrypted and no passphrase is configured", k.Path)
		}
		return nil, fmt.Errorf("failed to parse private key %s: %w", k.Path, err)
	}
	return ssh.PublicKeys(signer), nil
}

// endpointAuth 根据解析结果组装认证方式，不会退回到交互式输入密码
func endpointAuth(ep models.Endpoint) ([]AuthMethod, error) {
	var methods []AuthMethod
	for _, path := range ep.IdentityFiles {
		if _, err := os.Stat(path); err != nil {
			// ssh_config 中可以列出多个候选私钥，跳过不存在的
			continue
		}
		methods = append(methods, &KeyAuth{Path: path, Passphrase: ep.Passphrase})
	}
	if ep.Password != "" {
		methods = append(methods, &PasswordAuth{Password: ep.Password})
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable identity for host %s (identity files: %v)", ep.Name, ep.IdentityFiles)
	}
	return methods, nil
}

func hostKeyCallback(ep models.Endpoint) (ssh.HostKeyCallback, error) {
	if !ep.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(ep.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	return cb, nil
}
