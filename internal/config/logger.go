package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 定义日志接口
type Logger interface {
	Debug(msg string, fields ...zapcore.Field)
	Info(msg string, fields ...zapcore.Field)
	Warn(msg string, fields ...zapcore.Field)
	Error(msg string, fields ...zapcore.Field)
	Fatal(msg string, fields ...zapcore.Field)
}

// ZapLogger 实现Logger接口
type ZapLogger struct {
	logger *zap.Logger
}

// NewLogger 根据日志配置创建并返回一个新的Logger实例
func NewLogger(level string, isDevelopment bool) (Logger, error) {
	var cfg zap.Config
	if isDevelopment {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("解析日志级别失败: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("构建日志实例失败: %w", err)
	}

	return &ZapLogger{logger: zapLogger}, nil
}

// Debug 记录Debug级别日志
func (l *ZapLogger) Debug(msg string, fields ...zapcore.Field) {
	l.logger.Debug(msg, fields...)
}

// Info 记录Info级别日志
func (l *ZapLogger) Info(msg string, fields ...zapcore.Field) {
	l.logger.Info(msg, fields...)
}

// Warn 记录Warn级别日志
func (l *ZapLogger) Warn(msg string, fields ...zapcore.Field) {
	l.logger.Warn(msg, fields...)
}

// Error 记录Error级别日志
func (l *ZapLogger) Error(msg string, fields ...zapcore.Field) {
	l.logger.Error(msg, fields...)
}

// Fatal 记录Fatal级别日志
func (l *ZapLogger) Fatal(msg string, fields ...zapcore.Field) {
	l.logger.Fatal(msg, fields...)
}

// NopLogger 丢弃所有日志，测试中使用
type NopLogger struct{}

// NewNopLogger 创建一个不输出任何内容的Logger
func NewNopLogger() Logger {
	return &NopLogger{}
}

// Debug 丢弃日志
func (l *NopLogger) Debug(msg string, fields ...zapcore.Field) {}

// Info 丢弃日志
func (l *NopLogger) Info(msg string, fields ...zapcore.Field) {}

// Warn 丢弃日志
func (l *NopLogger) Warn(msg string, fields ...zapcore.Field) {}

// Error 丢弃日志
func (l *NopLogger) Error(msg string, fields ...zapcore.Field) {}

// Fatal 丢弃日志
func (l *NopLogger) Fatal(msg string, fields ...zapcore.Field) {}
