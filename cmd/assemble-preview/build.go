package main

import (
	"io"

	"github.com/dushixiang/preview-assembler/pkg/assembler"
	"github.com/spf13/cobra"
)

func (a *app) buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "生成全部预览文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd)
		},
	}
}

func (a *app) runBuild(cmd *cobra.Command) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	return a.build(cmd.OutOrStdout())
}

// build 按配置顺序逐个生成目标文件，遇到错误立即返回
func (a *app) build(out io.Writer) error {
	jobs, err := a.cfg.Jobs()
	if err != nil {
		return err
	}

	asm := assembler.New(a.fs, a.logger,
		assembler.WithMarkerFormat(a.cfg.MarkerFormat),
		assembler.WithMissingPolicy(assembler.NormalizePolicy(a.cfg.MissingMarker)),
		assembler.WithAtomicWrite(a.cfg.AtomicWrite),
	)
	for _, job := range jobs {
		result, err := asm.Assemble(job)
		if err != nil {
			return err
		}
		green(out, "✓ 已生成 %s (%d 字符)\n", result.Output, result.Length)
	}
	return nil
}
