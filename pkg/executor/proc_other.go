//go:build !unix

package executor

import "os/exec"

func newProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {}
