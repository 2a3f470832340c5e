package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jpillora/backoff"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// BuildFunc 重新生成输出
type BuildFunc func(ctx context.Context) error

// Watcher 监听输入文件变化并重新生成
type Watcher struct {
	mu          sync.Mutex
	running     bool
	paths       map[string]struct{}
	dirs        []string
	build       BuildFunc
	logger      *zap.Logger
	debounce    time.Duration
	maxAttempts int
	minWait     time.Duration
	maxWait     time.Duration
	fsw         *fsnotify.Watcher
	cancel      context.CancelFunc
	wg          *conc.WaitGroup
	eventCh     chan BuildEvent
}

type Option func(*Watcher)

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce 连续变化合并为一次生成
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff 失败重试的等待区间
func WithBackoff(minWait, maxWait time.Duration) Option {
	return func(w *Watcher) {
		w.minWait, w.maxWait = minWait, maxWait
	}
}

// New 创建监听器，paths 为需要监听的文件
func New(paths []string, build BuildFunc, opts ...Option) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("没有需要监听的文件")
	}
	if build == nil {
		return nil, errors.New("未指定生成函数")
	}

	w := &Watcher{
		paths:       make(map[string]struct{}, len(paths)),
		build:       build,
		logger:      zap.NewNop(),
		debounce:    200 * time.Millisecond,
		maxAttempts: 5,
		minWait:     100 * time.Millisecond,
		maxWait:     2 * time.Second,
		eventCh:     make(chan BuildEvent, 16),
	}
	for _, opt := range opts {
		opt(w)
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("解析路径失败 %s: %w", p, err)
		}
		w.paths[abs] = struct{}{}
		// 编辑器常通过临时文件+重命名保存，因此监听所在目录
		dir := filepath.Dir(abs)
		if !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Start 开始监听
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("监听目录失败 %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.wg = conc.NewWaitGroup()
	w.wg.Go(func() {
		w.loop(ctx)
	})
	w.running = true

	w.logger.Info("开始监听输入文件", zap.Strings("dirs", w.dirs), zap.Int("files", len(w.paths)))
	return nil
}

// Stop 停止监听并等待后台循环退出
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.cancel()
	w.wg.Wait()
	err := w.fsw.Close()

	w.cancel = nil
	w.fsw = nil
	w.wg = nil
	w.running = false
	w.logger.Info("已停止监听")
	return err
}

// Events 生成结果通道
func (w *Watcher) Events() <-chan BuildEvent {
	return w.eventCh
}

func (w *Watcher) loop(ctx context.Context) {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		trigger string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("检测到输入文件变化", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			trigger = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("文件监听出错", zap.Error(err))

		case <-timerC:
			timerC = nil
			w.publish(w.rebuild(ctx, trigger))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	_, ok := w.paths[filepath.Clean(event.Name)]
	return ok
}

// rebuild 失败时按退避间隔重试，输入文件可能正处于保存过程中
func (w *Watcher) rebuild(ctx context.Context, trigger string) BuildEvent {
	b := &backoff.Backoff{
		Min:    w.minWait,
		Max:    w.maxWait,
		Factor: 2,
	}

	event := BuildEvent{Trigger: trigger}
	var err error
retry:
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		event.Attempts = attempt
		if err = w.build(ctx); err == nil {
			break
		}
		if attempt == w.maxAttempts {
			break
		}

		wait := b.Duration()
		w.logger.Warn("重新生成失败，稍后重试",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(wait):
		}
	}

	event.Timestamp = time.Now().UnixMilli()
	if err != nil {
		event.Status = StatusFailed
		event.Error = err.Error()
		w.logger.Error("重新生成失败", zap.String("trigger", trigger), zap.Int("attempts", event.Attempts), zap.Error(err))
	} else {
		event.Status = StatusSuccess
		w.logger.Info("重新生成完成", zap.String("trigger", trigger), zap.Int("attempts", event.Attempts))
	}
	return event
}

func (w *Watcher) publish(event BuildEvent) {
	select {
	case w.eventCh <- event:
	default:
		w.logger.Warn("事件队列已满，丢弃事件", zap.String("trigger", event.Trigger))
	}
}
