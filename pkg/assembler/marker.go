package assembler

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	// DefaultMarkerFormat Apps Script 模板的 include 写法
	DefaultMarkerFormat = "<?!= include('{{name}}'); ?>"

	nameTag = "{{name}}"
)

// RenderMarker 根据格式生成某个片段对应的占位符字面量
func RenderMarker(format, name string) (string, error) {
	if strings.Count(format, nameTag) != 1 {
		return "", wrap(ErrInvalidMarker, nil, "格式 %q 必须且只能包含一个 %s", format, nameTag)
	}
	if name == "" {
		return "", wrap(ErrInvalidMarker, nil, "片段名称为空")
	}

	rendered := false
	marker, err := fasttemplate.ExecuteFuncStringWithErr(format, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		if tag == "name" {
			rendered = true
			return w.Write([]byte(name))
		}
		// 其它标签原样保留
		return w.Write([]byte("{{" + tag + "}}"))
	})
	if err != nil {
		return "", wrap(ErrInvalidMarker, err, "格式 %q", format)
	}
	if !rendered {
		return "", wrap(ErrInvalidMarker, nil, "格式 %q 中的 %s 无法解析", format, nameTag)
	}
	return marker, nil
}

// ScanIncludes 返回文档中出现的 include 标签名称（按出现顺序，不去重）
// 末尾不完整的标签会终止扫描，不视为错误
func ScanIncludes(doc, format string) []string {
	prefix, suffix, ok := strings.Cut(format, nameTag)
	if !ok || prefix == "" || suffix == "" {
		return nil
	}

	var names []string
	_, _ = fasttemplate.ExecuteFunc(doc, prefix, suffix, io.Discard, func(w io.Writer, tag string) (int, error) {
		names = append(names, tag)
		return 0, nil
	})
	return names
}
