package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/runner"
)

type PingOptions struct {
	Hosts      string
	HostFile   string
	Tag        string
	Count      int
	Timeout    time.Duration
	Privileged bool
}

func NewPingOptions() *PingOptions {
	return &PingOptions{
		Count:   4,
		Timeout: 5 * time.Second,
	}
}

func NewCmdPing() *cobra.Command {
	o := NewPingOptions()
	cmd := &cobra.Command{
		Use:   "ping [host]...",
		Short: "通过ICMP检查主机是否可达",
		Long: `通过ICMP检查一台或多台主机是否可达。
主机名先按 ssh 配置解析为实际地址,多台主机并发检查,按输入顺序输出结果。
注意: 在 Linux 上使用 --privileged 发送 raw ICMP 需要 root 权限。
用法示例:
xops ping gnb-host epc-host
xops ping -I hosts.txt -n 2
xops ping -t ran`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && o.Hosts == "" {
				o.Hosts = strings.Join(args, ",")
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVarP(&o.Hosts, "hosts", "H", "", "目标主机,多个主机用逗号分隔")
	cmd.Flags().StringVarP(&o.HostFile, "ifile", "I", "", "主机列表文件")
	cmd.Flags().StringVarP(&o.Tag, "tag", "t", "", "选取 inventory 中带有该标签的节点 (all 表示全部节点)")
	cmd.Flags().IntVarP(&o.Count, "count", "n", 4, "发送的包数量")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 5*time.Second, "单台主机的超时时间")
	cmd.Flags().BoolVar(&o.Privileged, "privileged", false, "使用 raw socket 发送ICMP")
	return cmd
}

func (o *PingOptions) Validate() error {
	if o.Count <= 0 {
		return fmt.Errorf("包数量必须大于0")
	}
	if o.Hosts == "" && o.HostFile == "" && o.Tag == "" {
		return fmt.Errorf("没有指定目标主机")
	}
	return nil
}

// address 返回主机的实际地址，本机名直接使用回环地址
func (o *PingOptions) address(resolver config.Resolver, host string) string {
	if config.IsLocal(host) {
		return "127.0.0.1"
	}
	ep, err := resolver.Resolve(host)
	if err != nil {
		// 没有 ssh 配置的主机按地址直接处理
		return host
	}
	return ep.Address
}

func (o *PingOptions) ping(ctx context.Context, addr string) (*probing.Statistics, error) {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return nil, fmt.Errorf("创建pinger失败: %w", err)
	}
	pinger.SetPrivileged(o.Privileged)
	pinger.Count = o.Count
	pinger.Interval = 200 * time.Millisecond
	pinger.Timeout = o.Timeout
	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, err
	}
	return pinger.Statistics(), nil
}

func (o *PingOptions) Run(cmd *cobra.Command) error {
	hosts, err := targetHosts(o.Hosts, o.HostFile, o.Tag)
	if err != nil {
		return err
	}
	resolver, err := settings.NewResolver()
	if err != nil {
		return err
	}

	report := runner.Dispatch(cmd.Context(), hosts, func(ctx context.Context, host string) (bool, string) {
		addr := o.address(resolver, host)
		stats, err := o.ping(ctx, addr)
		if err != nil {
			return false, fmt.Sprintf("[%s] %s: %v", host, addr, err)
		}
		msg := fmt.Sprintf("[%s] %s: %d 个包已发送, %d 个包已接收, %v%% 包丢失, 平均往返 %v",
			host, stats.Addr, stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss, stats.AvgRtt)
		return stats.PacketsRecv > 0, msg
	}, runner.WithWorkers(uint(settings.Workers)))

	out := cmd.OutOrStdout()
	for _, msg := range report.Messages() {
		fmt.Fprintln(out, msg)
	}
	if !report.Success {
		return fmt.Errorf("不可达的主机: %v", report.Failed())
	}
	return nil
}
