package assembler

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Policy 主文档缺少占位符时的处理策略
type Policy string

const (
	PolicyWarn  Policy = "warn"
	PolicyError Policy = "error"
)

// NormalizePolicy 未知取值一律按 warn 处理
func NormalizePolicy(raw string) Policy {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == string(PolicyError) {
		return PolicyError
	}
	return PolicyWarn
}

// Fragment 绑定到某个占位符的片段文件
type Fragment struct {
	Name string
	Path string
}

// DefaultFragments 样式表和脚本两个片段，顺序固定；dir 为空时返回相对路径
func DefaultFragments(dir string) []Fragment {
	return []Fragment{
		{Name: "Stylesheet", Path: filepath.Join(dir, "Stylesheet.html")},
		{Name: "JavaScript", Path: filepath.Join(dir, "JavaScript.html")},
	}
}

// Job 一次组装任务
type Job struct {
	Document  string
	Fragments []Fragment
	Output    string
}

// Binding 占位符字面量与替换内容
type Binding struct {
	Name    string
	Marker  string
	Content string
}

// MarkerStatus 处理该占位符时在文档中找到的次数
type MarkerStatus struct {
	Name   string
	Marker string
	Count  int
}

// Found 是否找到
func (s MarkerStatus) Found() bool {
	return s.Count > 0
}

// Result 组装结果
type Result struct {
	RunID      string
	Output     string
	Bytes      int
	Length     int
	Markers    []MarkerStatus
	Unresolved []string
}

// Substitute 按 bindings 顺序逐个做全量字面替换
// 每个占位符只替换一遍，替换进来的内容不会被同一占位符再次展开
func Substitute(doc string, bindings []Binding) (string, []MarkerStatus) {
	statuses := make([]MarkerStatus, 0, len(bindings))
	for _, b := range bindings {
		count := 0
		if b.Marker != "" {
			count = strings.Count(doc, b.Marker)
		}
		if count > 0 {
			doc = strings.ReplaceAll(doc, b.Marker, b.Content)
		}
		statuses = append(statuses, MarkerStatus{Name: b.Name, Marker: b.Marker, Count: count})
	}
	return doc, statuses
}

// Assembler 将片段内联到主文档
type Assembler struct {
	fs           afero.Fs
	logger       *zap.Logger
	markerFormat string
	policy       Policy
	atomic       bool
}

type Option func(*Assembler)

func WithMarkerFormat(format string) Option {
	return func(a *Assembler) {
		if format != "" {
			a.markerFormat = format
		}
	}
}

func WithMissingPolicy(policy Policy) Option {
	return func(a *Assembler) {
		a.policy = policy
	}
}

// WithAtomicWrite 先写临时文件再重命名
func WithAtomicWrite(enabled bool) Option {
	return func(a *Assembler) {
		a.atomic = enabled
	}
}

// New 创建组装器
func New(fs afero.Fs, logger *zap.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		fs:           fs,
		logger:       logger,
		markerFormat: DefaultMarkerFormat,
		policy:       PolicyWarn,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble 读取全部输入，替换占位符，写出结果
// 任一输入读取失败时不会写出任何内容
func (a *Assembler) Assemble(job Job) (*Result, error) {
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run", runID))

	bindings := make([]Binding, 0, len(job.Fragments))
	for _, f := range job.Fragments {
		marker, err := RenderMarker(a.markerFormat, f.Name)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, Binding{Name: f.Name, Marker: marker})
	}

	document, err := a.read(job.Document, "主文档")
	if err != nil {
		return nil, err
	}
	for i, f := range job.Fragments {
		content, err := a.read(f.Path, f.Name)
		if err != nil {
			return nil, err
		}
		bindings[i].Content = content
	}

	// 只扫描主文档，片段内容中的 include 属于片段本身
	unresolved := unboundIncludes(document, a.markerFormat, bindings)

	output, statuses := Substitute(document, bindings)

	var missing []string
	for _, s := range statuses {
		if s.Found() {
			logger.Info("找到占位符", zap.String("name", s.Name), zap.String("marker", s.Marker), zap.Int("count", s.Count))
			continue
		}
		logger.Warn("未找到占位符", zap.String("name", s.Name), zap.String("marker", s.Marker))
		missing = append(missing, s.Marker)
	}
	if len(missing) > 0 && a.policy == PolicyError {
		return nil, wrap(ErrMarkerNotFound, nil, "%s: %s", job.Document, strings.Join(missing, ", "))
	}

	for _, name := range unresolved {
		logger.Warn("主文档中存在未绑定的 include", zap.String("name", name))
	}

	if err := a.write(job.Output, output); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:      runID,
		Output:     job.Output,
		Bytes:      len(output),
		Length:     utf8.RuneCountInString(output),
		Markers:    statuses,
		Unresolved: unresolved,
	}
	logger.Info("已生成预览文件",
		zap.String("output", result.Output),
		zap.Int("length", result.Length),
		zap.Int("bytes", result.Bytes),
	)
	return result, nil
}

// unboundIncludes 主文档中没有对应片段的 include 名称，去重并保持出现顺序
func unboundIncludes(document, format string, bindings []Binding) []string {
	bound := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		bound[b.Name] = true
	}

	var names []string
	for _, name := range ScanIncludes(document, format) {
		if bound[name] {
			continue
		}
		bound[name] = true
		names = append(names, name)
	}
	return names
}

func (a *Assembler) read(path, role string) (string, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return "", wrap(ErrInputUnreadable, err, "%s (%s)", role, path)
	}
	return string(data), nil
}
