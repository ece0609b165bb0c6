package config

import (
	"fmt"
	"slices"

	"github.com/wentf9/xops-ci/pkg/models"
)

// Provider 在加载后的 inventory 上建立查找索引
// 构建完成后只读，可被多个 goroutine 并发使用
type Provider struct {
	cfg         *Configuration
	lookupIndex map[string]string
}

func NewProvider(cfg *Configuration) ConfigProvider {
	provider := Provider{
		cfg:         cfg,
		lookupIndex: make(map[string]string),
	}
	provider.init()
	return provider
}

// add 将节点及其所有标识符加入索引
func (cp Provider) add(nodeId string) {
	node, ok := cp.GetNode(nodeId)
	if !ok {
		return
	}
	host, ok := cp.GetHost(nodeId)
	if !ok {
		return
	}
	cp.lookupIndex[nodeId] = nodeId
	if identity, ok := cp.GetIdentity(nodeId); ok && identity.User != "" {
		port := host.Port
		if port == 0 {
			port = 22
		}
		cp.lookupIndex[fmt.Sprintf("%s@%s:%d", identity.User, host.Address, port)] = nodeId
		for _, addr := range host.Alias {
			if addr == "" {
				continue
			}
			cp.lookupIndex[fmt.Sprintf("%s@%s:%d", identity.User, addr, port)] = nodeId
		}
	}
	for _, alias := range node.Alias {
		if alias == "" {
			continue
		}
		cp.lookupIndex[alias] = nodeId
	}
}

// Find 匹配用户输入(节点名 / 别名 / 用户名@地址:端口)，返回节点 ID
func (cp Provider) Find(input string) string {
	return cp.lookupIndex[input]
}

func (cp Provider) GetNode(nodeId string) (models.Node, bool) {
	node, ok := cp.cfg.Nodes[nodeId]
	return node, ok
}

func (cp Provider) GetHost(nodeId string) (models.Host, bool) {
	if node, ok := cp.cfg.Nodes[nodeId]; ok {
		host, ok := cp.cfg.Hosts[node.HostRef]
		return host, ok
	}
	return models.Host{}, false
}

func (cp Provider) GetIdentity(nodeId string) (models.Identity, bool) {
	if node, ok := cp.cfg.Nodes[nodeId]; ok {
		identity, ok := cp.cfg.Identities[node.IdentityRef]
		return identity, ok
	}
	return models.Identity{}, false
}

func (cp Provider) ListNodes() map[string]models.Node {
	nodes := make(map[string]models.Node, len(cp.cfg.Nodes))
	for k, v := range cp.cfg.Nodes {
		nodes[k] = v
	}
	return nodes
}

func (cp Provider) GetNodesByTag(tag string) map[string]models.Node {
	nodes := make(map[string]models.Node)
	for k, v := range cp.cfg.Nodes {
		if slices.Contains(v.Tags, tag) {
			nodes[k] = v
		}
	}
	return nodes
}

func (cp Provider) init() {
	for nodeId := range cp.cfg.Nodes {
		cp.add(nodeId)
	}
}
