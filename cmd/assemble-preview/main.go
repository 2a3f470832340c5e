package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dushixiang/preview-assembler/internal/config"
	"github.com/dushixiang/preview-assembler/internal/logger"
	"github.com/fatih/color"
	goerrors "github.com/go-errors/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	green = color.New(color.FgGreen).FprintfFunc()
	red   = color.New(color.FgRed).FprintfFunc()
)

// app 命令共享的状态
type app struct {
	fs         afero.Fs
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newApp() *app {
	return &app{
		fs:     afero.NewOsFs(),
		logger: zap.NewNop(),
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assemble-preview",
		Short: "将 Stylesheet/JavaScript 片段内联到 Index.html，生成可本地预览的单文件页面",
		Long: `读取主文档 Index.html 以及 Stylesheet.html、JavaScript.html，
把 <?!= include('Stylesheet'); ?> 和 <?!= include('JavaScript'); ?> 替换为片段内容，
写出到配置的目标文件。不带子命令运行时等同于 build。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "配置文件路径")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "输出调试日志和错误堆栈")

	root.AddCommand(
		a.buildCmd(),
		a.watchCmd(),
		a.initCmd(),
		versionCmd(),
	)
	return root
}

// setup 加载配置并初始化日志
// 显式传入 --config 时配置文件必须存在
func (a *app) setup(cmd *cobra.Command) error {
	explicit := false
	if f := cmd.Flag("config"); f != nil {
		explicit = f.Changed
	}
	cfg, err := config.Load(a.fs, a.configPath, explicit)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.Log
	logCfg.File = cfg.Resolve(logCfg.File)
	log, err := logger.New(logCfg, a.verbose, zapcore.AddSync(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = log
	a.logger.Debug("已加载配置", zap.String("path", cfg.Path()), zap.String("dir", cfg.Dir()))
	return nil
}

func (a *app) reportError(w io.Writer, err error) {
	red(w, "✗ %v\n", err)
	if !a.verbose {
		return
	}
	var stacked *goerrors.Error
	if errors.As(err, &stacked) {
		fmt.Fprint(w, stacked.ErrorStack())
	}
}

func main() {
	a := newApp()
	if err := a.rootCmd().Execute(); err != nil {
		a.reportError(os.Stderr, err)
		os.Exit(1)
	}
}
