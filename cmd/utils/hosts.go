package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadHostFile 读取主机列表文件，每行一个主机名，忽略空行和 # 开头的注释
func ReadHostFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("主机列表文件不存在: %v", err)
		}
		return nil, fmt.Errorf("无法打开主机列表文件: %v", err)
	}
	defer file.Close()

	var hosts []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取主机列表文件失败: %v", err)
	}
	return hosts, nil
}

// ParseHosts 从逗号分隔的主机参数或主机列表文件得到主机列表
// 保持输入顺序，去掉重复的主机
func ParseHosts(hostFlag, hostFile string) ([]string, error) {
	var raw []string
	switch {
	case hostFlag != "":
		raw = strings.Split(hostFlag, ",")
	case hostFile != "":
		var err error
		if raw, err = ReadHostFile(hostFile); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(raw))
	hosts := make([]string, 0, len(raw))
	for _, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("没有指定目标主机")
	}
	return hosts, nil
}
