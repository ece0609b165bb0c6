package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/cmd/utils"
	"github.com/wentf9/xops-ci/pkg/executor"
	"github.com/wentf9/xops-ci/pkg/runner"
)

type BatchOptions struct {
	Hosts       string
	HostFile    string
	Tag         string
	Command     string
	Dir         string
	Workers     uint
	Timeout     time.Duration
	FailOnError bool
}

func NewBatchOptions() *BatchOptions {
	return &BatchOptions{}
}

func NewCmdBatch() *cobra.Command {
	o := NewBatchOptions()
	cmd := &cobra.Command{
		Use:   "batch -H host1,host2 -c <command>",
		Short: "在多台主机上并发执行同一条命令",
		Long: `在多台主机上并发执行同一条命令,每台主机单独建立连接。
所有主机执行完成后按输入顺序打印每台主机的结果,
任意一台主机失败时整体失败,但其他主机的结果照常输出。
用法示例:
xops batch -H ue1,ue2,ue3 -c "ip addr show oaitun_ue1"
xops batch -I ues.txt -c "ping -c 4 10.0.0.1" --fail-on-error
xops batch -t ue -c "uptime"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVarP(&o.Hosts, "hosts", "H", "", "目标主机,多个主机用逗号分隔")
	cmd.Flags().StringVarP(&o.HostFile, "ifile", "I", "", "主机列表文件")
	cmd.Flags().StringVarP(&o.Tag, "tag", "t", "", "选取 inventory 中带有该标签的节点 (all 表示全部节点)")
	cmd.Flags().StringVarP(&o.Command, "cmd", "c", "", "要执行的命令")
	cmd.Flags().StringVarP(&o.Dir, "dir", "d", "", "执行命令的工作目录")
	cmd.Flags().UintVar(&o.Workers, "workers", 0, "最大并发数 (默认取配置文件中的 workers)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 0, "单台主机的命令超时时间")
	cmd.Flags().BoolVar(&o.FailOnError, "fail-on-error", false, "返回码非0时视为失败")
	cmd.MarkFlagsMutuallyExclusive("hosts", "ifile", "tag")
	cmd.MarkFlagsOneRequired("hosts", "ifile", "tag")
	cmd.MarkFlagRequired("cmd")
	return cmd
}

func (o *BatchOptions) Validate() error {
	if o.Command == "" {
		return fmt.Errorf("必须指定要执行的命令")
	}
	return nil
}

func (o *BatchOptions) Run(cmd *cobra.Command) error {
	hosts, err := targetHosts(o.Hosts, o.HostFile, o.Tag)
	if err != nil {
		return err
	}
	f, err := newFactory()
	if err != nil {
		return err
	}
	workers := o.Workers
	if workers == 0 {
		workers = uint(settings.Workers)
	}

	report := runner.ForEachHost(cmd.Context(), f, hosts, func(ctx context.Context, s executor.Session) (bool, string) {
		if o.Dir != "" {
			s.Cd(ctx, o.Dir)
		}
		res := s.Run(ctx, o.Command, executor.WithTimeout(o.Timeout), executor.Silent())
		status := utils.Classify(res, o.FailOnError)
		msg := fmt.Sprintf("[%s] %s (返回码 %d)", s.Host(), status, res.ExitCode)
		if res.Output != "" {
			msg += "\n" + res.Output
		}
		return status != utils.StatusKO, msg
	}, runner.WithWorkers(workers))

	out := cmd.OutOrStdout()
	for _, msg := range report.Messages() {
		fmt.Fprintln(out, msg)
	}
	if !report.Success {
		return fmt.Errorf("%d/%d 台主机执行失败: %v", len(report.Failed()), len(hosts), report.Failed())
	}
	return nil
}
