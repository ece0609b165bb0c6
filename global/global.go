package global

import (
	"os"

	"golang.org/x/term"
)

var (
	IsTerminal      bool = term.IsTerminal(int(os.Stdout.Fd())) // 标准输出是否是终端,false表示可能是管道或重定向
	IsStdinTerminal bool = term.IsTerminal(int(os.Stdin.Fd()))
)
