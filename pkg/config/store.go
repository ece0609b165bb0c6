package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wentf9/xops-ci/pkg/utils/file"
	"gopkg.in/yaml.v3"
)

type Store interface {
	Load() (*Configuration, error)
}

type defaultStore struct {
	Path string
}

func (s *defaultStore) Load() (*Configuration, error) {
	var config Configuration
	if err := decodeFile(s.Path, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func NewDefaultStore(path string) Store {
	return &defaultStore{Path: path}
}

// decodeFile 按扩展名选择解码器: .toml 使用 toml，其余按 yaml 处理
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(file.ExpandHome(path))
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}
