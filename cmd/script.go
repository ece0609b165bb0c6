package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/cmd/utils"
	"github.com/wentf9/xops-ci/pkg/executor"
)

// 自定义脚本的默认超时时间
const defaultScriptTimeout = 90 * time.Second

type ScriptOptions struct {
	Host        string
	ScriptFile  string
	Params      string
	Redirect    string
	Timeout     time.Duration
	FailOnError bool
	Silent      bool
}

func NewScriptOptions() *ScriptOptions {
	return &ScriptOptions{
		Timeout: defaultScriptTimeout,
	}
}

func NewCmdScript() *cobra.Command {
	o := NewScriptOptions()
	cmd := &cobra.Command{
		Use:   "script <host> <script>",
		Short: "在本机或远程主机上执行本地脚本",
		Long: `在本机或远程主机上执行本地脚本。
远程执行时脚本内容通过 stdin 传给 bash -s,不需要先上传脚本,
set -x 的输出会和脚本输出一起返回。
--redirect 指定的文件必须是绝对路径,脚本输出写入该文件而不是打印到终端。
用法示例:
xops script none ./collect.sh --params "--verbose"
xops script ue-host ./attach.sh --redirect /tmp/attach.log --timeout 2m
xops script none ./health.sh --silent`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.Params, "params", "", "传给脚本的参数")
	cmd.Flags().StringVar(&o.Redirect, "redirect", "", "将脚本输出写入该文件 (绝对路径)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", defaultScriptTimeout, "脚本超时时间")
	cmd.Flags().BoolVar(&o.FailOnError, "fail-on-error", false, "返回码非0时视为失败")
	cmd.Flags().BoolVar(&o.Silent, "silent", false, "不在日志中打印执行的命令")
	return cmd
}

func (o *ScriptOptions) Complete(cmd *cobra.Command, args []string) {
	o.Host = args[0]
	o.ScriptFile = args[1]
}

func (o *ScriptOptions) Validate() error {
	info, err := os.Stat(o.ScriptFile)
	if err != nil {
		return fmt.Errorf("无法读取脚本文件: %v", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s 是目录", o.ScriptFile)
	}
	return nil
}

func (o *ScriptOptions) scriptOptions() []executor.ScriptOption {
	opts := []executor.ScriptOption{
		executor.WithParameters(o.Params),
		executor.WithRedirect(o.Redirect),
		executor.WithScriptTimeout(o.Timeout),
	}
	if o.Silent {
		opts = append(opts, executor.SilentScript())
	}
	return opts
}

func (o *ScriptOptions) Run(cmd *cobra.Command) error {
	f, err := newFactory()
	if err != nil {
		return err
	}
	res, err := f.RunScript(cmd.Context(), o.Host, o.ScriptFile, o.scriptOptions()...)
	if err != nil {
		return err
	}

	status := utils.Classify(res, o.FailOnError)
	utils.PrintResult(cmd.OutOrStdout(), o.Host, res, status)
	if status == utils.StatusKO {
		return fmt.Errorf("脚本执行失败: %s", res)
	}
	return nil
}
