// Package logger is a small key/value logging facade over logrus.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bombsimon/logrusr/v4"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

const badKey = "!BADKEY"

var log = newLogger(os.Stderr, logrus.InfoLevel)

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// Init configures the global logger. Unknown levels fall back to info.
func Init(level string) {
	log.SetLevel(ParseLevel(level))
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// ParseLevel maps a level name to a logrus level. "warning" and "warn" are equivalent.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Logger returns the underlying logrus logger.
func Logger() *logrus.Logger {
	return log
}

// DriverSink returns a logr sink the MongoDB driver can write its component logs to.
func DriverSink() logr.LogSink {
	return logrusr.New(log).GetSink()
}

func Debug(msg string, kv ...any) {
	log.WithFields(fields(kv)).Debug(msg)
}

func Info(msg string, kv ...any) {
	log.WithFields(fields(kv)).Info(msg)
}

func Warn(msg string, kv ...any) {
	log.WithFields(fields(kv)).Warn(msg)
}

func Error(msg string, kv ...any) {
	log.WithFields(fields(kv)).Error(msg)
}

// fields turns alternating keys and values into logrus fields.
func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 == len(kv) {
			f[badKey] = kv[i]
			break
		}
		f[key] = kv[i+1]
	}
	return f
}
