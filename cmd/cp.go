package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/global"
	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/executor"
)

type CpOptions struct {
	Host      string
	Source    string
	Dest      string
	In        bool
	Recursive bool
	Progress  bool
}

func NewCpOptions() *CpOptions {
	return &CpOptions{}
}

func NewCmdCp() *cobra.Command {
	o := NewCpOptions()
	cmd := &cobra.Command{
		Use:   "cp <host> <source> <dest>",
		Short: "在本机和主机之间复制文件或目录",
		Long: `在本机和主机之间复制文件或目录。
默认将本机的 source 复制到主机的 dest (copyout),
指定 --in 时将主机的 source 复制到本机的 dest (copyin)。
-r 复制目录: dest 必须是目录,结果为 dest/<source 的最后一级目录名>。
主机为 none 或 localhost 时退化为本机复制,只支持绝对路径。
用法示例:
xops cp gnb-host ./conf /opt/oai/conf -r
xops cp --in gnb-host /tmp/gnb.log ./logs/gnb.log --progress`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().BoolVar(&o.In, "in", false, "从主机复制到本机")
	cmd.Flags().BoolVarP(&o.Recursive, "recursive", "r", false, "递归复制目录")
	cmd.Flags().BoolVar(&o.Progress, "progress", false, "显示传输进度 (仅单文件远程传输)")
	return cmd
}

func (o *CpOptions) Complete(cmd *cobra.Command, args []string) {
	o.Host, o.Source, o.Dest = args[0], args[1], args[2]
	// 本机一侧的相对路径转换为绝对路径，目标是本机时两侧都转换
	locals := []*string{&o.Source}
	if o.In {
		locals = []*string{&o.Dest}
	}
	if config.IsLocal(o.Host) {
		locals = []*string{&o.Source, &o.Dest}
	}
	for _, p := range locals {
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
}

func (o *CpOptions) Validate() error {
	if o.In {
		return nil
	}
	info, err := os.Stat(o.Source)
	if err != nil {
		return fmt.Errorf("无法读取源文件: %v", err)
	}
	if info.IsDir() && !o.Recursive {
		return fmt.Errorf("%s 是目录,请使用 -r", o.Source)
	}
	return nil
}

// progressBar 只有在终端中且是单文件远程传输时才显示进度条
func (o *CpOptions) progressBar() *progressbar.ProgressBar {
	if !o.Progress || o.Recursive || !global.IsTerminal || config.IsLocal(o.Host) {
		return nil
	}
	size := int64(-1)
	if !o.In {
		if info, err := os.Stat(o.Source); err == nil {
			size = info.Size()
		}
	}
	return progressbar.DefaultBytes(size, filepath.Base(o.Source))
}

func (o *CpOptions) Run(cmd *cobra.Command) error {
	f, err := newFactory()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var openOpts []executor.OpenOption
	bar := o.progressBar()
	if bar != nil {
		openOpts = append(openOpts, executor.WithProgress(func(n int) {
			bar.Add(n)
		}))
	}

	err = f.With(ctx, o.Host, func(s executor.Session) error {
		if o.In {
			return s.CopyIn(ctx, o.Source, o.Dest, o.Recursive)
		}
		return s.CopyOut(ctx, o.Source, o.Dest, o.Recursive)
	}, openOpts...)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("复制失败: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "复制完成: %s -> %s\n", o.Source, o.Dest)
	return nil
}
