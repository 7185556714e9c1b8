package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger().Level(zerolog.WarnLevel)
	logFile *os.File
)

// GetLogLevelFromString 将字符串转换为日志级别
func GetLogLevelFromString(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.WarnLevel // 默认级别
	}
	return lvl
}

/**
 * Initialize logging system
 * @param {string} path - Log file path, "console" or empty disables the file
 * @param {string} level - debug/info/warn/error
 * @param {bool} console - Also write human readable lines to stdout (server mode)
 * @description
 * - File output is JSON lines, console output uses zerolog.ConsoleWriter
 * - Falls back to stdout when the log file can't be opened
 */
func InitLogger(path, level string, console bool) {
	var writers []io.Writer
	if path != "" && path != "console" {
		if w := setupLogFileOutput(path); w != nil {
			writers = append(writers, w)
		} else {
			console = true
		}
	} else {
		console = true
	}
	if console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	defaultLogger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().Level(GetLogLevelFromString(level))
}

// setupLogFileOutput 设置日志文件输出
func setupLogFileOutput(logPath string) io.Writer {
	// 确保日志目录存在
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "创建日志目录失败: %v\n", err)
		return nil
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开日志文件失败: %v\n", err)
		return nil
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	return file
}

// Logger exposes the underlying zerolog logger, e.g. for the gorm bridge
func Logger() *zerolog.Logger {
	return &defaultLogger
}

// Debug 输出调试日志
func Debug(v ...interface{}) {
	defaultLogger.Debug().Msg(fmt.Sprint(v...))
}

// Debugf 输出格式化调试日志
func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug().Msgf(format, v...)
}

// Info 输出信息日志
func Info(v ...interface{}) {
	defaultLogger.Info().Msg(fmt.Sprint(v...))
}

// Infof 输出格式化信息日志
func Infof(format string, v ...interface{}) {
	defaultLogger.Info().Msgf(format, v...)
}

// Warn 输出警告日志
func Warn(v ...interface{}) {
	defaultLogger.Warn().Msg(fmt.Sprint(v...))
}

// Warnf 输出格式化警告日志
func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn().Msgf(format, v...)
}

// Error 输出错误日志
func Error(v ...interface{}) {
	defaultLogger.Error().Msg(fmt.Sprint(v...))
}

// Errorf 输出格式化错误日志
func Errorf(format string, v ...interface{}) {
	defaultLogger.Error().Msgf(format, v...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(v ...interface{}) {
	defaultLogger.Fatal().Msg(fmt.Sprint(v...))
}

// Fatalf 输出格式化致命错误日志并退出程序
func Fatalf(format string, v ...interface{}) {
	defaultLogger.Fatal().Msgf(format, v...)
}
