// Package klog wires up the logrus logger used across the module, with the
// level vocabulary and text formatting the kapibara CLI exposes through its
// --log flag.
package klog

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level names accepted by ParseLevel, from least to most verbose, plus the
// sentinel "off" which silences logging entirely.
const (
	LevelOff   = "off"
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"
	LevelTrace = "trace"
)

// ParseLevel maps one of the accepted level names to a logrus.Level, with
// "off" reported back via the off=true/level=logrus.PanicLevel sentinel so
// callers can special-case disabling logging entirely.
func ParseLevel(name string) (level logrus.Level, off bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LevelOff:
		return logrus.PanicLevel, true, nil
	case LevelError:
		return logrus.ErrorLevel, false, nil
	case LevelWarn, "warning":
		return logrus.WarnLevel, false, nil
	case LevelInfo, "":
		return logrus.InfoLevel, false, nil
	case LevelDebug:
		return logrus.DebugLevel, false, nil
	case LevelTrace:
		return logrus.TraceLevel, false, nil
	default:
		return 0, false, fmt.Errorf("klog: unknown log level %q", name)
	}
}

// New builds a logrus.Logger configured for the given level name, writing
// to out. Passing LevelOff makes the logger discard everything.
func New(levelName string, out io.Writer) (*logrus.Logger, error) {
	level, off, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if off {
		logger.SetOutput(io.Discard)
		logger.SetLevel(logrus.PanicLevel)
		return logger, nil
	}

	logger.SetOutput(out)
	logger.SetLevel(level)
	return logger, nil
}
