// Package logutil mirrors all logs written to stdout into an optional
// persistent log file.
package logutil

import (
	"os"
	"strings"

	joonix "github.com/joonix/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var _ = logrus.Hook(&WriterHook{})

// WriterHook forwards log entries of the configured levels to the file
// logger.
type WriterHook struct {
	LogLevels []logrus.Level
}

// Fire formats the entry and appends it to the log file.
func (hook *WriterHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	fileLogger.Println(strings.TrimSuffix(line, "\n"))
	return nil
}

// Levels defines on which log levels this hook triggers.
func (hook *WriterHook) Levels() []logrus.Level {
	return hook.LogLevels
}

var fileLogger = &logrus.Logger{
	Level: logrus.TraceLevel,
}

// ConfigurePersistentLogging appends all subsequent logs to the named file
// in the requested format.
func ConfigurePersistentLogging(logFileName, logFileFormat string) error {
	logrus.WithField("logFileName", logFileName).Info("Logs will be made persistent")
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	fileLogger.SetOutput(f)

	switch logFileFormat {
	case "text":
		formatter := new(prefixed.TextFormatter)
		formatter.TimestampFormat = "2006-01-02 15:04:05"
		formatter.FullTimestamp = true
		formatter.DisableColors = true
		fileLogger.SetFormatter(formatter)
	case "fluentd":
		fileLogger.SetFormatter(joonix.NewFormatter())
	case "json":
		fileLogger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("unknown log file format %q", logFileFormat)
	}

	logrus.AddHook(&WriterHook{
		LogLevels: logrus.AllLevels,
	})
	return nil
}
