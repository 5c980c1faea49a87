package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
)

// LogConfig 日志配置
type LogConfig struct {
	LogPath  string
	LogLevel string
}

// CustomFormatter 自定义日志格式化器
type CustomFormatter struct {
	TimestampFormat string
}

// Format 实现 logrus.Formatter 接口
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	logMsg := fmt.Sprintf("[%s] [%s] (%s) %s\n",
		timestamp,
		level,
		getCaller(),
		entry.Message)

	return []byte(logMsg), nil
}

// getCaller 获取调用者信息
func getCaller() string {
	// 跳过日志框架的调用栈，找到实际的调用者
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if strings.Contains(file, "sirupsen") ||
			strings.Contains(file, "/logger/logger.go") ||
			strings.Contains(file, "/entry.go") {
			continue
		}

		funcName := runtime.FuncForPC(pc).Name()
		fileName := filepath.Base(file)

		return fmt.Sprintf("%s:%s:%d", fileName, funcName, line)
	}

	return "unknown:unknown:0"
}

// parseLogLevel 解析日志级别字符串为logrus级别
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// InitLogger 初始化日志
func InitLogger(config LogConfig) error {
	Logger = logrus.New()
	Logger.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05 MST 2006/01/02",
	})
	Logger.SetLevel(parseLogLevel(config.LogLevel))

	if config.LogPath != "" {
		logFile, err := openLogFile(config.LogPath)
		if err != nil {
			Logger.SetOutput(os.Stdout)
			Logger.Warnf("Failed to open log file %s, fallback to stdout: %v", config.LogPath, err)
		} else {
			Logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
		}
	} else {
		Logger.SetOutput(os.Stdout)
	}

	return nil
}

// openLogFile 打开日志文件
func openLogFile(logPath string) (*os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

func ensureLogger() *logrus.Logger {
	if Logger == nil {
		Logger = logrus.New()
		Logger.SetFormatter(&CustomFormatter{TimestampFormat: "15:04:05 MST 2006/01/02"})
		Logger.SetOutput(os.Stdout)
		Logger.SetLevel(logrus.InfoLevel)
	}
	return Logger
}

// Debug 记录调试日志
func Debug(args ...interface{}) {
	ensureLogger().Debug(args...)
}

// Debugf 记录格式化调试日志
func Debugf(format string, args ...interface{}) {
	ensureLogger().Debugf(format, args...)
}

// Info 记录信息日志
func Info(args ...interface{}) {
	ensureLogger().Info(args...)
}

// Infof 记录格式化信息日志
func Infof(format string, args ...interface{}) {
	ensureLogger().Infof(format, args...)
}

// Warnf 记录格式化警告日志
func Warnf(format string, args ...interface{}) {
	ensureLogger().Warnf(format, args...)
}

// Error 记录错误日志
func Error(args ...interface{}) {
	ensureLogger().Error(args...)
}

// Errorf 记录格式化错误日志
func Errorf(format string, args ...interface{}) {
	ensureLogger().Errorf(format, args...)
}
