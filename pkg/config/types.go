package config

import (
	"errors"

	"github.com/wentf9/xops-ci/pkg/models"
)

// ErrConfig 表示主机无法解析或缺少必要的身份信息
// 配置错误在创建 Session 时立即返回，不会重试
var ErrConfig = errors.New("configuration error")

// Configuration 对应 inventory 文件的顶层结构
type Configuration struct {
	Identities map[string]models.Identity `yaml:"identities" toml:"identities"`
	Hosts      map[string]models.Host     `yaml:"hosts" toml:"hosts"`
	Nodes      map[string]models.Node     `yaml:"nodes" toml:"nodes"`
}

// ConfigProvider 定义 Resolver 获取 inventory 数据的接口 (只读)
type ConfigProvider interface {
	GetNode(name string) (models.Node, bool)
	GetHost(name string) (models.Host, bool)
	GetIdentity(name string) (models.Identity, bool)
	ListNodes() map[string]models.Node
	GetNodesByTag(tag string) map[string]models.Node
	Find(input string) string
}
