/*
Roster - BIND配置集中管理系统

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// core/common/rotatelogger.go
// 按大小轮转的守护进程日志文件

package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dsnet/compress/bzip2"
)

const (
	// DefaultMaxSize 默认单个日志文件大小限制 (10MB)
	DefaultMaxSize = 10 * 1024 * 1024
	// DefaultMaxFiles 默认保留的历史文件数量
	DefaultMaxFiles = 10
	// DefaultLogDir 默认日志目录
	DefaultLogDir = "log"
	// DefaultLogFile 默认日志文件名
	DefaultLogFile = "rosterd.log"
)

// RotateWriter 写满 maxSize 后把 name 依次后移为 name.1、name.2 ...，
// 最多保留 maxFiles 个历史文件
type RotateWriter struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	maxFiles int
	file     *os.File
	size     int64
	stdout   bool
	compress bool
}

// NewRotateWriter 打开 dir/name，目录不存在时创建
func NewRotateWriter(dir, name string, maxSize int64, maxFiles int) (*RotateWriter, error) {
	if dir == "" {
		dir = DefaultLogDir
	}
	if name == "" {
		name = DefaultLogFile
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %v", err)
	}

	w := &RotateWriter{path: filepath.Join(dir, name), maxSize: maxSize, maxFiles: maxFiles}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// open 以追加模式打开日志文件，已超限时先轮转
func (w *RotateWriter) open() error {
	if info, err := os.Stat(w.path); err == nil && info.Size() >= w.maxSize {
		return w.rotate()
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("读取日志文件信息失败: %v", err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

func (w *RotateWriter) closeFile() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

func (w *RotateWriter) historyPath(index int) string {
	p := fmt.Sprintf("%s.%d", w.path, index)
	if w.compress {
		p += ".bz2"
	}
	return p
}

func (w *RotateWriter) rotate() error {
	w.closeFile()

	os.Remove(w.historyPath(w.maxFiles))
	for i := w.maxFiles - 1; i >= 1; i-- {
		if _, err := os.Stat(w.historyPath(i)); err == nil {
			os.Rename(w.historyPath(i), w.historyPath(i+1))
		}
	}
	if _, err := os.Stat(w.path); err == nil {
		archive := os.Rename
		if w.compress {
			archive = compressFile
		}
		if err := archive(w.path, w.historyPath(1)); err != nil {
			return fmt.Errorf("轮转日志文件失败: %v", err)
		}
	}
	return w.open()
}

// compressFile 把 src 压缩为 bzip2 格式的 dst 后删除 src
func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	bz, err := bzip2.NewWriter(out, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return err
	}
	if _, err := io.Copy(bz, in); err != nil {
		bz.Close()
		return err
	}
	if err := bz.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Write 写入日志文件，写满后先轮转
func (w *RotateWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fmt.Errorf("日志文件已关闭")
	}
	if w.size >= w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, err
	}
	if w.stdout {
		os.Stdout.Write(p)
	}
	return n, nil
}

// Reopen 重新打开日志文件，外部工具移走日志文件后由 SIGHUP 触发
func (w *RotateWriter) Reopen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeFile()
	return w.open()
}

// Close 关闭日志文件，之后的写入返回错误
func (w *RotateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Files 当前日志文件及存在的历史文件
func (w *RotateWriter) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var files []string
	if _, err := os.Stat(w.path); err == nil {
		files = append(files, w.path)
	}
	for i := 1; i <= w.maxFiles; i++ {
		if _, err := os.Stat(w.historyPath(i)); err == nil {
			files = append(files, w.historyPath(i))
		}
	}
	return files
}

// RotateLogger 写入 RotateWriter 的日志管理器
type RotateLogger struct {
	*Logger
	w *RotateWriter
}

var _ LoggerInterface = (*RotateLogger)(nil)

// NewRotateLogger 创建新的轮转日志记录器
// maxSize 为单个文件的字节上限，maxFiles 为保留的历史文件数量
func NewRotateLogger(logDir, logFile string, maxSize int64, maxFiles int) (*RotateLogger, error) {
	w, err := NewRotateWriter(logDir, logFile, maxSize, maxFiles)
	if err != nil {
		return nil, err
	}
	l := NewLogger()
	l.out = w
	return &RotateLogger{Logger: l, w: w}, nil
}

// SetStdout 设置是否同时输出到标准输出
func (r *RotateLogger) SetStdout(enable bool) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.stdout = enable
}

// SetCompress 设置轮转出的历史文件是否压缩为 <name>.N.bz2
func (r *RotateLogger) SetCompress(enable bool) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.compress = enable
}

// Reopen 重新打开日志文件
func (r *RotateLogger) Reopen() error {
	return r.w.Reopen()
}

// Write 实现 io.Writer 接口，供 gin 的访问日志使用，每行记为一条 INFO 日志
func (r *RotateLogger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			r.Info("%s", line)
		}
	}
	return len(p), nil
}

// Close 关闭日志文件
func (r *RotateLogger) Close() {
	r.w.Close()
}

// GetLogFiles 获取当前及历史日志文件列表
func (r *RotateLogger) GetLogFiles() []string {
	return r.w.Files()
}

// ParseSize 解析大小字符串，如 "10MB", "100KB", "1GB"
func ParseSize(sizeStr string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(sizeStr))
	units := []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}}

	multiplier := int64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s, multiplier = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.mult
			break
		}
	}

	var size int64
	if _, err := fmt.Sscanf(s, "%d", &size); err != nil {
		return 0, fmt.Errorf("无法解析大小 %q: %v", sizeStr, err)
	}
	return size * multiplier, nil
}
