package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dushixiang/preview-assembler/pkg/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "生成预览文件，并在输入文件变化时重新生成",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, cmd)
		},
	}
}

func (a *app) watch(ctx context.Context, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	build := func(ctx context.Context) error {
		return a.build(out)
	}

	// 首次生成失败不退出，等待用户修正输入文件
	if err := build(ctx); err != nil {
		a.reportError(cmd.ErrOrStderr(), err)
	}

	w, err := watcher.New(a.cfg.WatchPaths(), build,
		watcher.WithLogger(a.logger),
		watcher.WithDebounce(a.cfg.Watch.Debounce),
		watcher.WithMaxAttempts(a.cfg.Watch.MaxAttempts),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := w.Stop(); err != nil {
			a.logger.Warn("停止监听失败", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-w.Events():
			if event.Status == watcher.StatusFailed {
				red(cmd.ErrOrStderr(), "✗ %s 变化后重新生成失败: %s\n", event.Trigger, event.Error)
			}
		}
	}
}
