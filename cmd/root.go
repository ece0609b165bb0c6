package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/cmd/utils"
	"github.com/wentf9/xops-ci/cmd/version"
	"github.com/wentf9/xops-ci/pkg/config"
	"github.com/wentf9/xops-ci/pkg/executor"
	"github.com/wentf9/xops-ci/pkg/logger"
)

var (
	configPath string
	logLevel   string
	debugMode  bool

	// PersistentPreRunE 中加载，子命令共用
	settings = config.DefaultSettings()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xops [command] [flags]",
	Short: "xops 是测试编排使用的命令执行与文件传输工具",
	Long: `xops 是测试编排使用的命令执行与文件传输工具,
以统一的方式在本机或远程主机上执行命令、运行脚本、传输文件和目录。
主机名为空、none 或 localhost 时在本机执行,其他主机名通过 ~/.ssh/config 解析。
支持对多台主机并发执行并按输入顺序汇总结果。`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			version.PrintFullVersion(cmd.OutOrStdout())
			return
		}
		cmd.Help() // 显示帮助信息
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			s.LogLevel = logLevel
		}
		if debugMode {
			s.LogLevel = "debug"
		}
		if !logger.SetLogLevel(s.LogLevel) {
			return fmt.Errorf("无法识别的日志级别: %s", s.LogLevel)
		}
		settings = s
		logger.Logger.Debug("settings loaded", "inventory", s.Inventory, "ssh_config", s.SSHConfig, "workers", s.Workers)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// 收到中断信号时直接退出进程，不逐个取消正在执行的操作
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Logger.Error("interrupted, exiting", "signal", sig.String())
		os.Exit(1)
	}()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newFactory() (*executor.Factory, error) {
	f, err := executor.NewFactory(settings)
	if err != nil {
		return nil, fmt.Errorf("初始化主机解析失败: %w", err)
	}
	return f, nil
}

// targetHosts 得到批量命令的目标主机，指定 tag 时从 inventory 中选取
func targetHosts(hosts, hostFile, tag string) ([]string, error) {
	if tag != "" {
		return settings.HostsByTag(tag)
	}
	return utils.ParseHosts(hosts, hostFile)
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径 (默认 ~/.xops/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "日志级别 (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "开启调试模式")

	rootCmd.AddCommand(NewCmdRun())
	rootCmd.AddCommand(NewCmdScript())
	rootCmd.AddCommand(NewCmdCp())
	rootCmd.AddCommand(NewCmdBatch())
	rootCmd.AddCommand(NewCmdPing())
	rootCmd.AddCommand(NewCmdEncrypt())
	rootCmd.AddCommand(NewCmdVersion())
}

func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintFullVersion(cmd.OutOrStdout())
		},
	}
}
