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

// core/common/logger.go

package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// 日志级别常量
const (
	DEBUG = iota
	INFO
	WARN
	ERROR
	FATAL
)

// LogLevel 日志级别类型
type LogLevel int

var logLevelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// String 返回日志级别的字符串表示
func (level LogLevel) String() string {
	if level >= DEBUG && int(level) < len(logLevelNames) {
		return logLevelNames[level]
	}
	return "UNKNOWN"
}

// ParseLogLevel 从字符串解析日志级别，无法识别时为 INFO
func ParseLogLevel(levelStr string) LogLevel {
	levelStr = strings.ToUpper(strings.TrimSpace(levelStr))
	if levelStr == "WARNING" {
		return WARN
	}
	for i, name := range logLevelNames {
		if name == levelStr {
			return LogLevel(i)
		}
	}
	return INFO
}

// GetLogLevelFromEnv 从配置 [server] log_level 获取日志级别
func GetLogLevelFromEnv() LogLevel {
	return ParseLogLevel(GetConfig("server", "log_level"))
}

// LoggerInterface 定义日志接口
type LoggerInterface interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Fatal(format string, args ...interface{})
	LogError(format string, err error, args ...interface{})
	Printf(format string, args ...interface{})
}

// 全局日志输出目标。设置了 globalLogger 时所有 Logger 转发给它，
// 否则按 logOutput 输出，dnstool 将其设为标准错误以免混入命令输出
var (
	globalLogger   LoggerInterface
	logOutput      io.Writer = os.Stdout
	globalLoggerMu sync.RWMutex
)

// SetGlobalLogger 设置全局日志输出目标
func SetGlobalLogger(logger LoggerInterface) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = logger
}

// SetLogOutput 设置未配置全局日志时的输出位置
func SetLogOutput(w io.Writer) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	logOutput = w
}

func logTarget() (LoggerInterface, io.Writer) {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger, logOutput
}

// inheritLevel 表示使用进程级日志级别
const inheritLevel = -1

// 进程级日志级别，随 SetGlobalConfig 和 SIGHUP 重载更新
var globalLevel atomic.Int32

func init() {
	globalLevel.Store(INFO)
}

// SetGlobalLevel 设置未单独指定级别的 Logger 使用的日志级别
func SetGlobalLevel(level LogLevel) {
	globalLevel.Store(int32(level))
}

// Logger 日志管理器，component 非空时作为消息前缀；out 非空时直接写入 out
type Logger struct {
	level     atomic.Int32
	component string
	out       io.Writer
}

var _ LoggerInterface = (*Logger)(nil)

// NewLogger 创建使用进程级日志级别的日志管理器
func NewLogger() *Logger {
	l := &Logger{}
	l.level.Store(inheritLevel)
	return l
}

// NewComponentLogger 创建带组件前缀、使用进程级日志级别的日志管理器，如 [exporter]
func NewComponentLogger(component string) *Logger {
	l := NewLogger()
	l.component = component
	return l
}

// NewLoggerWithLevel 创建指定级别的日志管理器
func NewLoggerWithLevel(level LogLevel) *Logger {
	l := &Logger{}
	l.level.Store(int32(level))
	return l
}

// SetLevel 设置日志级别，可与日志输出并发调用
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// GetLevel 获取当前日志级别
func (l *Logger) GetLevel() LogLevel {
	level := l.level.Load()
	if level == inheritLevel {
		return LogLevel(globalLevel.Load())
	}
	return LogLevel(level)
}

func (l *Logger) enabled(level LogLevel) bool {
	return l.GetLevel() <= level
}

// Debug 打印DEBUG级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.enabled(DEBUG) {
		l.log(DEBUG, format, args...)
	}
}

// Info 打印INFO级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	if l.enabled(INFO) {
		l.log(INFO, format, args...)
	}
}

// Warn 打印WARN级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.enabled(WARN) {
		l.log(WARN, format, args...)
	}
}

// Error 打印ERROR级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	if l.enabled(ERROR) {
		l.log(ERROR, format, args...)
	}
}

// Fatal 打印FATAL级别日志并退出程序
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if l.component != "" {
		message = "[" + l.component + "] " + message
	}

	if l.out != nil {
		writeLine(l.out, level, message)
		return
	}
	target, out := logTarget()
	if target == nil {
		writeLine(out, level, message)
		return
	}
	switch level {
	case DEBUG:
		target.Debug("%s", message)
	case INFO:
		target.Info("%s", message)
	case WARN:
		target.Warn("%s", message)
	default:
		target.Error("%s", message)
	}
}

func writeLine(w io.Writer, level LogLevel, message string) {
	line := fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), level, message)
	if _, err := io.WriteString(w, line); err != nil {
		fmt.Fprintf(os.Stderr, "写入日志失败: %v\n", err)
	}
}

// LogError 记录错误日志，包含错误详情
func (l *Logger) LogError(format string, err error, args ...interface{}) {
	if !l.enabled(ERROR) {
		return
	}
	errorDetails := "nil"
	if err != nil {
		errorDetails = err.Error()
	}
	l.log(ERROR, "%s - Error: %s", fmt.Sprintf(format, args...), errorDetails)
}

// Printf 兼容旧的日志打印方法
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Info(format, args...)
}
