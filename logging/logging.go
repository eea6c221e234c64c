// Package logging adapts structured loggers to adm.Logger.
//
// Arguments passed to adm.Logger methods are key/value pairs:
//
//	logger.Debug("Gateway request", "method", "GET", "path", "/article/1")
//
// A trailing value without a key is recorded under the "arg" key.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/AshkanYarmoradi/go-adm"
)

// Ensure adapters implement adm.Logger.
var (
	_ adm.Logger = (*Logrus)(nil)
	_ adm.Logger = (*Zap)(nil)
)

// OddArgKey is the key used for a trailing value without a key.
const OddArgKey = "arg"

// pairs walks args as key/value pairs.
func pairs(args []interface{}, fn func(key string, value interface{})) {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fn(OddArgKey, args[i])
			return
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fn(key, args[i+1])
	}
}

// Logrus adapts a logrus logger.
type Logrus struct {
	log logrus.FieldLogger
}

// NewLogrus wraps l. A nil l uses logrus.StandardLogger().
func NewLogrus(l logrus.FieldLogger) *Logrus {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logrus{log: l}
}

func (l *Logrus) entry(args []interface{}) logrus.FieldLogger {
	if len(args) == 0 {
		return l.log
	}
	fields := make(logrus.Fields, (len(args)+1)/2)
	pairs(args, func(key string, value interface{}) {
		fields[key] = value
	})
	return l.log.WithFields(fields)
}

func (l *Logrus) Debug(msg string, args ...interface{}) { l.entry(args).Debug(msg) }
func (l *Logrus) Info(msg string, args ...interface{})  { l.entry(args).Info(msg) }
func (l *Logrus) Warn(msg string, args ...interface{})  { l.entry(args).Warn(msg) }
func (l *Logrus) Error(msg string, args ...interface{}) { l.entry(args).Error(msg) }

// Zap adapts a zap logger.
type Zap struct {
	log *zap.Logger
}

// NewZap wraps l. A nil l discards everything.
func NewZap(l *zap.Logger) *Zap {
	if l == nil {
		l = zap.NewNop()
	}
	return &Zap{log: l}
}

func fields(args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, (len(args)+1)/2)
	pairs(args, func(key string, value interface{}) {
		if err, ok := value.(error); ok {
			out = append(out, zap.NamedError(key, err))
			return
		}
		out = append(out, zap.Any(key, value))
	})
	return out
}

func (l *Zap) Debug(msg string, args ...interface{}) { l.log.Debug(msg, fields(args)...) }
func (l *Zap) Info(msg string, args ...interface{})  { l.log.Info(msg, fields(args)...) }
func (l *Zap) Warn(msg string, args ...interface{})  { l.log.Warn(msg, fields(args)...) }
func (l *Zap) Error(msg string, args ...interface{}) { l.log.Error(msg, fields(args)...) }

// Sync flushes buffered zap entries.
func (l *Zap) Sync() error {
	return l.log.Sync()
}
