package mlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 10
	defaultMaxAgeDays = 7
)

type zapLogger struct {
	level Level
	sugar *zap.SugaredLogger
}

func newZapLogger(level Level, ws zapcore.WriteSyncer) *zapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	// 级别由Level自己过滤, zap只做输出
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zapcore.DebugLevel)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(3))
	return &zapLogger{level: level, sugar: l.Sugar()}
}

// 文件日志, 按大小切割
func newDefaultLogger(logpath, logName string, level Level, stdOut bool) (*zapLogger, *lumberjack.Logger) {
	if len(logpath) == 0 {
		logpath = "."
	}
	if logName == "" {
		logName = "mlog"
	}
	roller := &lumberjack.Logger{
		Filename:   filepath.Join(logpath, logName+".log"),
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		LocalTime:  true,
	}
	ws := zapcore.AddSync(roller)
	if stdOut {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.Lock(os.Stdout))
	}
	return newZapLogger(level, ws), roller
}

// 关闭时刷盘并关闭文件
func (l *zapLogger) start(ctx context.Context, wg *sync.WaitGroup, roller *lumberjack.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = l.sugar.Sync()
		if roller != nil {
			_ = roller.Close()
		}
	}()
}

func (l *zapLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level
}

func (l *zapLogger) log(level Level, args []any) {
	if !l.IsLevelEnabled(level) {
		return
	}
	switch level {
	case FatalLevel:
		l.sugar.Fatal(args...)
	case ErrorLevel:
		l.sugar.Error(args...)
	case WarnLevel:
		l.sugar.Warn(args...)
	case NoticeLevel, InfoLevel:
		l.sugar.Info(args...)
	default:
		l.sugar.Debug(args...)
	}
}

func (l *zapLogger) logf(level Level, format string, args []any) {
	if !l.IsLevelEnabled(level) {
		return
	}
	switch level {
	case FatalLevel:
		l.sugar.Fatalf(format, args...)
	case ErrorLevel:
		l.sugar.Errorf(format, args...)
	case WarnLevel:
		l.sugar.Warnf(format, args...)
	case NoticeLevel, InfoLevel:
		l.sugar.Infof(format, args...)
	default:
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Trace(v ...any) { l.log(TraceLevel, v) }
func (l *zapLogger) Debug(v ...any) { l.log(DebugLevel, v) }
func (l *zapLogger) Info(v ...any) { l.log(InfoLevel, v) }
func (l *zapLogger) Notice(v ...any) { l.log(NoticeLevel, v) }
func (l *zapLogger) Warn(v ...any) { l.log(WarnLevel, v) }
func (l *zapLogger) Error(v ...any) { l.log(ErrorLevel, v) }
func (l *zapLogger) Fatal(v ...any) { l.log(FatalLevel, v) }
func (l *zapLogger) Tracef(format string, v ...any) { l.logf(TraceLevel, format, v) }
func (l *zapLogger) Debugf(format string, v ...any) { l.logf(DebugLevel, format, v) }
func (l *zapLogger) Infof(format string, v ...any) { l.logf(InfoLevel, format, v) }
func (l *zapLogger) Noticef(format string, v ...any) { l.logf(NoticeLevel, format, v) }
func (l *zapLogger) Warnf(format string, v ...any) { l.logf(WarnLevel, format, v) }
func (l *zapLogger) Errorf(format string, v ...any) { l.logf(ErrorLevel, format, v) }
func (l *zapLogger) Fatalf(format string, v ...any) { l.logf(FatalLevel, format, v) }
