package assembler

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

var (
	// ErrInputUnreadable 主文档或片段文件不存在/不可读
	ErrInputUnreadable = errors.New("无法读取输入文件")
	// ErrOutputWrite 输出文件无法写入（目录不存在、权限不足、磁盘已满）
	ErrOutputWrite = errors.New("无法写入输出文件")
	// ErrMarkerNotFound 严格模式下主文档缺少占位符
	ErrMarkerNotFound = errors.New("未找到占位符")
	// ErrInvalidMarker 占位符格式无效
	ErrInvalidMarker = errors.New("占位符格式无效")
)

// wrap 将 cause 归入 kind 并附带调用栈，errors.Is 对 kind 和 cause 均成立
func wrap(kind, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return goerrors.Wrap(fmt.Errorf("%w: %s", kind, msg), 1)
	}
	return goerrors.Wrap(fmt.Errorf("%w: %s: %w", kind, msg, cause), 1)
}
