package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger. It writes to stderr until InitLogger
	// replaces it, so packages can log before the CLI has configured output.
	Logger  *zap.SugaredLogger
	logFile *os.File
)

func init() {
	Logger = newLogger(consoleEncoder(), zapcore.AddSync(os.Stderr))
}

// InitLogger configures console or JSON output on stderr and, when filename
// is set, tees every entry into that file as well.
func InitLogger(filename string, jsonOutput bool) error {
	encoder := consoleEncoder()
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	sink := zapcore.AddSync(os.Stderr)
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logFile = f
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(f))
	}

	Logger = newLogger(encoder, sink)
	return nil
}

// Close flushes buffered entries and releases the log file.
func Close() {
	_ = Logger.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	return zapcore.NewConsoleEncoder(cfg)
}

func newLogger(encoder zapcore.Encoder, sink zapcore.WriteSyncer) *zap.SugaredLogger {
	core := zapcore.NewCore(encoder, sink, zap.InfoLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func Info(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, keysAndValues...)
}

func Infof(format string, v ...interface{}) {
	Logger.Infof(format, v...)
}

func Warn(msg string, keysAndValues ...interface{}) {
	Logger.Warnw(msg, keysAndValues...)
}

func Warnf(format string, v ...interface{}) {
	Logger.Warnf(format, v...)
}

func Error(msg string, keysAndValues ...interface{}) {
	Logger.Errorw(msg, keysAndValues...)
}

func Errorf(format string, v ...interface{}) {
	Logger.Errorf(format, v...)
}
