package file

import (
	"os"
	"path/filepath"
	"strings"
)

// OpenTruncate 创建文件 (包括不存在的父目录) 并截断，返回可写句柄
func OpenTruncate(filePath string, perm os.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}

// CreateFileRecursive 递归创建文件并写入内容
func CreateFileRecursive(filePath string, content []byte, perm os.FileMode) error {
	file, err := OpenTruncate(filePath, perm)
	if err != nil {
		return err
	}
	defer file.Close()

	if content != nil {
		if _, err := file.Write(content); err != nil {
			return err
		}
	}
	return nil
}

// ExpandHome 将开头的 ~ 替换为当前用户的主目录
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
