//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// newProcessGroup 让命令运行在独立的进程组中
func newProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup 在 ctx 结束时杀死整个进程组，包括 shell 派生的子进程
func killProcessGroup(cmd *exec.Cmd) {
	newProcessGroup(cmd)
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
