package assembler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/afero"
)

const outputPerm os.FileMode = 0644

// write 输出目录必须已存在，不会自动创建
func (a *Assembler) write(path, content string) error {
	dir := filepath.Dir(path)
	info, err := a.fs.Stat(dir)
	if err != nil {
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	if !info.IsDir() {
		return wrap(ErrOutputWrite, nil, "%s: %s 不是目录", path, dir)
	}

	if a.atomic {
		return a.writeAtomic(path, content)
	}

	f, err := a.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outputPerm)
	if err != nil {
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	if err := f.Close(); err != nil {
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	return nil
}

func (a *Assembler) writeAtomic(path, content string) error {
	if _, ok := a.fs.(*afero.OsFs); ok {
		_, statErr := os.Stat(path)
		if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
			return wrap(ErrOutputWrite, err, "%s", path)
		}
		// 新建文件时临时文件的权限是 0600
		if os.IsNotExist(statErr) {
			if err := os.Chmod(path, outputPerm); err != nil {
				return wrap(ErrOutputWrite, err, "%s", path)
			}
		}
		return nil
	}

	tmp, err := afero.TempFile(a.fs, filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = a.fs.Remove(tmpName)
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = a.fs.Remove(tmpName)
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	if err := a.fs.Rename(tmpName, path); err != nil {
		_ = a.fs.Remove(tmpName)
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	if err := a.fs.Chmod(path, outputPerm); err != nil {
		return wrap(ErrOutputWrite, err, "%s", path)
	}
	return nil
}
