package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"
	"time"
)

// TagAll 选中 inventory 中的全部节点
const TagAll = "all"

const (
	EnvLogLevel = "XOPS_LOG_LEVEL"
	EnvConfig   = "XOPS_CONFIG"
)

// Settings 是 harness 自身的配置 (不是主机配置)
type Settings struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// 主机解析来源: 默认读取 ~/.ssh/config; 配置了 inventory 时改用 inventory 文件
	SSHConfig string `yaml:"ssh_config" toml:"ssh_config"`
	Inventory string `yaml:"inventory" toml:"inventory"`
	// inventory 中 ENC: 开头的口令使用该密钥解密
	SecretKey string `yaml:"secret_key" toml:"secret_key"`

	Workers            int           `yaml:"workers" toml:"workers"`
	ConnectRetries     int           `yaml:"connect_retries" toml:"connect_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff" toml:"retry_backoff"`
	ExponentialBackoff bool          `yaml:"exponential_backoff" toml:"exponential_backoff"`
	DialTimeout        time.Duration `yaml:"dial_timeout" toml:"dial_timeout"`
	CommandTimeout     time.Duration `yaml:"command_timeout" toml:"command_timeout"`
	TransferTimeout    time.Duration `yaml:"transfer_timeout" toml:"transfer_timeout"`
	DetachWait         time.Duration `yaml:"detach_wait" toml:"detach_wait"`
	KeepAlive          time.Duration `yaml:"keepalive" toml:"keepalive"`
	Shell              string        `yaml:"shell" toml:"shell"`

	// SFTP 单文件分块传输参数，0 表示使用内置默认值
	TransferThreads   int   `yaml:"transfer_threads" toml:"transfer_threads"`
	TransferChunkSize int64 `yaml:"transfer_chunk_size" toml:"transfer_chunk_size"`
}

func DefaultSettings() Settings {
	return Settings{
		LogLevel:        "info",
		SSHConfig:       "~/.ssh/config",
		SecretKey:       "~/.xops/secret.key",
		Workers:         64,
		ConnectRetries:  3,
		DialTimeout:     7 * time.Second,
		CommandTimeout:  300 * time.Second,
		TransferTimeout: 600 * time.Second,
		DetachWait:      100 * time.Millisecond,
		Shell:           "/bin/bash",
	}
}

// LoadSettings 读取配置文件并用默认值补全缺省字段
// path 为空时使用默认路径; 默认路径下文件不存在时直接返回默认值
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultSettingsPath()
	}

	var loaded Settings
	err := decodeFile(path, &loaded)
	switch {
	case err == nil:
		s.merge(loaded)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return s, fmt.Errorf("load settings: %w", err)
	}

	if lvl := strings.TrimSpace(os.Getenv(EnvLogLevel)); lvl != "" {
		s.LogLevel = lvl
	}
	return s, nil
}

// DefaultSettingsPath 返回 ~/.xops/config.yaml
func DefaultSettingsPath() string {
	return "~/.xops/config.yaml"
}

func (s *Settings) merge(o Settings) {
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
	if o.SSHConfig != "" {
		s.SSHConfig = o.SSHConfig
	}
	if o.Inventory != "" {
		s.Inventory = o.Inventory
	}
	if o.SecretKey != "" {
		s.SecretKey = o.SecretKey
	}
	if o.Workers > 0 {
		s.Workers = o.Workers
	}
	if o.ConnectRetries > 0 {
		s.ConnectRetries = o.ConnectRetries
	}
	if o.RetryBackoff > 0 {
		s.RetryBackoff = o.RetryBackoff
	}
	s.ExponentialBackoff = s.ExponentialBackoff || o.ExponentialBackoff
	if o.DialTimeout > 0 {
		s.DialTimeout = o.DialTimeout
	}
	if o.CommandTimeout > 0 {
		s.CommandTimeout = o.CommandTimeout
	}
	if o.TransferTimeout > 0 {
		s.TransferTimeout = o.TransferTimeout
	}
	if o.TransferThreads > 0 {
		s.TransferThreads = o.TransferThreads
	}
	if o.TransferChunkSize > 0 {
		s.TransferChunkSize = o.TransferChunkSize
	}
	if o.DetachWait > 0 {
		s.DetachWait = o.DetachWait
	}
	if o.KeepAlive > 0 {
		s.KeepAlive = o.KeepAlive
	}
	if o.Shell != "" {
		s.Shell = o.Shell
	}
}

// HostsByTag 返回 inventory 中带有 tag 的节点名 (按名称排序)
// 只有配置了 inventory 时可用
func (s Settings) HostsByTag(tag string) ([]string, error) {
	if s.Inventory == "" {
		return nil, fmt.Errorf("%w: selecting hosts by tag requires an inventory", ErrConfig)
	}
	cfg, err := NewDefaultStore(s.Inventory).Load()
	if err != nil {
		return nil, fmt.Errorf("%w: load inventory %s: %v", ErrConfig, s.Inventory, err)
	}
	provider := NewProvider(cfg)
	nodes := provider.GetNodesByTag(tag)
	if tag == TagAll {
		nodes = provider.ListNodes()
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no node tagged '%s'", ErrConfig, tag)
	}
	return slices.Sorted(maps.Keys(nodes)), nil
}

// NewResolver 根据配置选择主机解析来源
func (s Settings) NewResolver() (Resolver, error) {
	if s.Inventory == "" {
		return &SSHConfigResolver{Path: s.SSHConfig}, nil
	}
	cfg, err := NewDefaultStore(s.Inventory).Load()
	if err != nil {
		return nil, fmt.Errorf("%w: load inventory %s: %v", ErrConfig, s.Inventory, err)
	}
	return &InventoryResolver{Provider: NewProvider(cfg), KeyFile: s.SecretKey}, nil
}
