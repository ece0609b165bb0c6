package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/cmd/utils"
	"github.com/wentf9/xops-ci/pkg/executor"
)

type RunOptions struct {
	Host        string
	Command     string
	Dir         string
	Detach      bool
	Timeout     time.Duration
	FailOnError bool
	Quiet       bool
}

func NewRunOptions() *RunOptions {
	return &RunOptions{}
}

func NewCmdRun() *cobra.Command {
	o := NewRunOptions()
	cmd := &cobra.Command{
		Use:   "run <host> <command>...",
		Short: "在本机或远程主机上执行一条命令",
		Long: `在本机或远程主机上执行一条命令,并根据返回码给出状态。
主机名为 none 或 localhost 时在本机执行。
返回码非0时状态为 Warning; 指定 --fail-on-error 时状态为 KO 并以非0退出。
用法示例:
xops run none "uname -a"
xops run gnb-host --dir /opt/oai "ls -l"
xops run epc-host --detach "tcpdump -i any -w /tmp/capture.pcap"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVarP(&o.Dir, "dir", "d", "", "执行命令的工作目录")
	cmd.Flags().BoolVar(&o.Detach, "detach", false, "后台执行,不等待命令结束")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 0, "命令超时时间 (默认取配置文件中的 command_timeout)")
	cmd.Flags().BoolVar(&o.FailOnError, "fail-on-error", false, "返回码非0时视为失败")
	cmd.Flags().BoolVarP(&o.Quiet, "quiet", "q", false, "返回码非0时不输出警告日志")
	return cmd
}

func (o *RunOptions) Complete(cmd *cobra.Command, args []string) {
	o.Host = args[0]
	o.Command = strings.TrimSpace(strings.Join(args[1:], " "))
}

func (o *RunOptions) Validate() error {
	if o.Command == "" {
		return fmt.Errorf("必须指定要执行的命令")
	}
	if o.Timeout < 0 {
		return fmt.Errorf("超时时间不能为负数: %s", o.Timeout)
	}
	return nil
}

func (o *RunOptions) runOptions() []executor.RunOption {
	opts := []executor.RunOption{executor.WithTimeout(o.Timeout)}
	if o.Detach {
		opts = append(opts, executor.Detached())
	}
	if o.Quiet {
		opts = append(opts, executor.Quiet())
	}
	return opts
}

func (o *RunOptions) Run(cmd *cobra.Command) error {
	f, err := newFactory()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var res *executor.Result
	err = f.With(ctx, o.Host, func(s executor.Session) error {
		res = s.Run(ctx, o.Command, o.runOptions()...)
		return nil
	}, executor.WithDir(o.Dir))
	if err != nil {
		return err
	}

	status := utils.Classify(res, o.FailOnError)
	utils.PrintResult(cmd.OutOrStdout(), o.Host, res, status)
	if status == utils.StatusKO {
		return fmt.Errorf("命令执行失败: %s", res)
	}
	return nil
}
