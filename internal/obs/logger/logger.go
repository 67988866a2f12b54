// Package logger provides the process-wide structured logger used by every
// MasterTrade component. All packages log through here rather than
// constructing their own *logrus.Logger, so output format and destinations
// stay consistent across the ten services.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// Log is the global logger instance.
	Log *logrus.Logger
	logFile *os.File
)

// compactFormatter renders "MM-DD HH:MM:SS [LEVEL] pkg/file.go:line message".
type compactFormatter struct {
	logrus.TextFormatter
}

func (f *compactFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	timestamp := entry.Time.Format("01-02 15:04:05")

	caller := ""
	for i := 3; i < 12; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if !strings.Contains(file, "logrus") && !strings.HasSuffix(file, filepath.Join("logger", "logger.go")) {
			dir := filepath.Dir(file)
			pkg := filepath.Base(dir)
			caller = fmt.Sprintf("%s/%s:%d", pkg, filepath.Base(file), line)
			break
		}
	}

	fields := ""
	for k, v := range entry.Data {
		fields += fmt.Sprintf(" %s=%v", k, v)
	}

	msg := fmt.Sprintf("%s [%s] %s %s%s\n", timestamp, level, caller, entry.Message, fields)
	return []byte(msg), nil
}

func init() {
	Log = logrus.New()
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&compactFormatter{})
	Log.SetOutput(os.Stdout)
}

// Init initializes the global logger for a process. cfg may be nil, in which
// case console-only info-level logging is used.
func Init(cfg *Config) error {
	Log = logrus.New()

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)
	Log.SetFormatter(&compactFormatter{})
	Log.SetReportCaller(true)

	if err := os.MkdirAll(cfg.Dir, 0755); err == nil {
		name := filepath.Join(cfg.Dir, fmt.Sprintf("mastertrade_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logFile = f
			Log.SetOutput(io.MultiWriter(os.Stdout, f))
		} else {
			Log.SetOutput(os.Stdout)
		}
	} else {
		Log.SetOutput(os.Stdout)
	}

	return nil
}

// Shutdown closes the log file handle, if any.
func Shutdown() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// WithFields returns a log entry carrying structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry { return Log.WithFields(fields) }

// WithField returns a log entry carrying a single field.
func WithField(key string, value interface{}) *logrus.Entry { return Log.WithField(key, value) }

func Debug(args ...interface{})                 { Log.Debug(args...) }
func Info(args ...interface{})                  { Log.Info(args...) }
func Warn(args ...interface{})                  { Log.Warn(args...) }
func Error(args ...interface{})                 { Log.Error(args...) }
func Fatal(args ...interface{})                 { Log.Fatal(args...) }
func Debugf(format string, args ...interface{}) { Log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Log.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { Log.Fatalf(format, args...) }
