package main

import (
	"github.com/dushixiang/preview-assembler/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "写入默认配置文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// 已存在时跳过，保证幂等
			exists, err := afero.Exists(a.fs, a.configPath)
			if err != nil {
				return err
			}
			if exists {
				green(out, "配置文件 %s 已存在，跳过\n", a.configPath)
				return nil
			}

			if err := config.Default().Save(a.fs, a.configPath); err != nil {
				return err
			}
			green(out, "✓ 已写入配置文件 %s\n", a.configPath)
			return nil
		},
	}
}
