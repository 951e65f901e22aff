package mlog

import (
	"io"
	"os"

	"go.uber.org/zap/zapcore"
)

func newStdoutLogger(level Level) *zapLogger {
	return newZapLogger(level, zapcore.Lock(os.Stdout))
}

func newWriterLogger(level Level, w io.Writer) *zapLogger {
	return newZapLogger(level, zapcore.AddSync(w))
}
