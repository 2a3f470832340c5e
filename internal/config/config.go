package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dushixiang/preview-assembler/pkg/assembler"
	"github.com/spf13/afero"
	"github.com/valyala/fasttemplate"
	"gopkg.in/yaml.v3"
)

// DefaultPath 默认配置文件名
const DefaultPath = "preview.yaml"

// ErrNotFound 显式指定的配置文件不存在
var ErrNotFound = errors.New("配置文件不存在")

// Config 预览组装配置
type Config struct {
	// 相对路径均以 BaseDir 为基准，BaseDir 本身相对于配置文件所在目录
	BaseDir       string           `yaml:"base_dir"`
	Document      string           `yaml:"document" validate:"required"`
	Version       string           `yaml:"version"`
	MarkerFormat  string           `yaml:"marker_format" validate:"required"`
	MissingMarker string           `yaml:"missing_marker" validate:"omitempty,oneof=warn error"`
	AtomicWrite   bool             `yaml:"atomic_write"`
	Fragments     []FragmentConfig `yaml:"fragments" validate:"required,min=1,unique=Name,dive"`
	Targets       []string         `yaml:"targets" validate:"required,min=1,dive,required"`
	Log           LogConfig        `yaml:"log"`
	Watch         WatchConfig      `yaml:"watch"`

	path string
}

// FragmentConfig 片段名称即占位符中的名称
type FragmentConfig struct {
	Name string `yaml:"name" validate:"required"`
	Path string `yaml:"path" validate:"required"`
}

// LogConfig 日志配置，File 为空时只输出到终端
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// WatchConfig 监听模式配置
type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1"`
}

// Default 与 Apps Script 项目默认布局一致的配置
func Default() *Config {
	return &Config{
		BaseDir:       ".",
		Document:      "Index.html",
		MarkerFormat:  assembler.DefaultMarkerFormat,
		MissingMarker: string(assembler.PolicyWarn),
		Fragments:     defaultFragments(),
		Targets:       []string{"PreviewIndex.html"},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Watch: WatchConfig{
			Debounce:    200 * time.Millisecond,
			MaxAttempts: 5,
		},
	}
}

func defaultFragments() []FragmentConfig {
	var fragments []FragmentConfig
	for _, f := range assembler.DefaultFragments("") {
		fragments = append(fragments, FragmentConfig{Name: f.Name, Path: f.Path})
	}
	return fragments
}

// Load 读取配置文件并覆盖默认值
// 文件不存在时：required 为 true 返回 ErrNotFound，否则返回以配置文件所在目录为基准的默认配置
func Load(fsys afero.Fs, path string, required bool) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if required {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize 忽略大小写和首尾空白，未知取值仍交给 Validate 拒绝
func (c *Config) normalize() {
	c.MissingMarker = strings.ToLower(strings.TrimSpace(c.MissingMarker))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Save 写出配置文件
func (c *Config) Save(fsys afero.Fs, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Path 配置文件路径
func (c *Config) Path() string {
	return c.path
}

// Dir 解析后的基准目录
func (c *Config) Dir() string {
	base := c.BaseDir
	if base == "" {
		base = "."
	}
	if filepath.IsAbs(base) {
		return filepath.Clean(base)
	}
	return filepath.Join(filepath.Dir(c.path), base)
}

// Resolve 将相对路径转换为基于 Dir 的路径
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// Jobs 每个输出目标对应一个组装任务，顺序与 Targets 一致
func (c *Config) Jobs() ([]assembler.Job, error) {
	fragments := make([]assembler.Fragment, 0, len(c.Fragments))
	for _, f := range c.Fragments {
		fragments = append(fragments, assembler.Fragment{Name: f.Name, Path: c.Resolve(f.Path)})
	}

	jobs := make([]assembler.Job, 0, len(c.Targets))
	for _, target := range c.Targets {
		output, err := c.renderTarget(target)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, assembler.Job{
			Document:  c.Resolve(c.Document),
			Fragments: fragments,
			Output:    c.Resolve(output),
		})
	}
	return jobs, nil
}

// WatchPaths 主文档与全部片段
func (c *Config) WatchPaths() []string {
	paths := []string{c.Resolve(c.Document)}
	for _, f := range c.Fragments {
		paths = append(paths, c.Resolve(f.Path))
	}
	return paths
}

// renderTarget 支持 {{version}} 与 {{document}}，未知标签原样保留
func (c *Config) renderTarget(target string) (string, error) {
	values := map[string]string{
		"version":  c.Version,
		"document": strings.TrimSuffix(filepath.Base(c.Document), filepath.Ext(c.Document)),
	}
	output, err := fasttemplate.ExecuteFuncStringWithErr(target, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		if v, ok := values[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{{" + tag + "}}"))
	})
	if err != nil {
		return "", fmt.Errorf("输出路径模板无效 %q: %w", target, err)
	}
	return output, nil
}
