package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wentf9/xops-ci/cmd/utils"
	"github.com/wentf9/xops-ci/global"
	"github.com/wentf9/xops-ci/pkg/crypto"
	"github.com/wentf9/xops-ci/pkg/utils/file"
)

type EncryptOptions struct {
	KeyFile string
	Secret  string
}

func NewEncryptOptions() *EncryptOptions {
	return &EncryptOptions{}
}

func NewCmdEncrypt() *cobra.Command {
	o := NewEncryptOptions()
	cmd := &cobra.Command{
		Use:   "encrypt [secret]",
		Short: "加密 inventory 中使用的密码",
		Long: `使用本机密钥加密密码,输出的 ENC: 密文可以直接写入 inventory 的 password 或 passphrase 字段。
密钥文件不存在时自动生成。未提供参数时从终端读取密码,输入不会回显。
用法示例:
xops encrypt
echo -n 'secret' | xops encrypt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.KeyFile, "key", "", "密钥文件路径 (默认取配置文件中的 secret_key)")
	return cmd
}

func (o *EncryptOptions) Complete(cmd *cobra.Command, args []string) error {
	if o.KeyFile == "" {
		o.KeyFile = settings.SecretKey
	}
	o.KeyFile = file.ExpandHome(o.KeyFile)
	switch {
	case len(args) == 1:
		o.Secret = args[0]
	case global.IsStdinTerminal:
		secret, err := utils.ReadPasswordFromTerminal("请输入要加密的密码: ")
		if err != nil {
			return fmt.Errorf("读取密码失败: %w", err)
		}
		o.Secret = secret
	default:
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("读取密码失败: %w", err)
		}
		o.Secret = strings.TrimRight(line, "\r\n")
	}
	if o.Secret == "" {
		return fmt.Errorf("密码不能为空")
	}
	return nil
}

func (o *EncryptOptions) Run(cmd *cobra.Command) error {
	key, err := crypto.LoadOrGenerateKey(o.KeyFile)
	if err != nil {
		return err
	}
	c, err := crypto.NewCrypter(key)
	if err != nil {
		return err
	}
	enc, err := c.Encrypt(o.Secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), enc)
	return nil
}
