package utils

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/wentf9/xops-ci/pkg/executor"
	"golang.org/x/term"
)

// 命令执行状态
const (
	StatusOK      = "OK"
	StatusWarning = "Warning"
	StatusKO      = "KO"
)

// Classify 根据退出码判断状态
// 非 0 退出码在 failOnError 为 false 时只算警告
func Classify(res *executor.Result, failOnError bool) string {
	switch {
	case res.OK():
		return StatusOK
	case failOnError:
		return StatusKO
	default:
		return StatusWarning
	}
}

// PrintResult 打印单次执行的输出和状态
func PrintResult(w io.Writer, host string, res *executor.Result, status string) {
	if res.Output != "" {
		fmt.Fprintln(w, res.Output)
	}
	fmt.Fprintf(w, "[%s] %s: %s (返回码 %d)\n", host, res.Command, status, res.ExitCode)
}

// ReadPasswordFromTerminal 从终端安全地读取密码
func ReadPasswordFromTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // ReadPassword 不会打印换行符
	if err != nil {
		return "", err
	}
	return string(password), nil
}
