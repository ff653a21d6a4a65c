// Package report carries resource and runtime failures out of the render
// loop without unwinding it.
package report

import (
	"go.uber.org/zap"
)

// Reporter receives messages, warnings and errors from pipeline components.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Message(msg string)
	Warning(msg string, err error)
	Error(msg string, err error)
	// Fatal reports an error after which the reporting component stops
	// working. It never exits the process.
	Fatal(msg string, err error)
}

// Zap reports through a zap logger.
type Zap struct {
	log *zap.Logger
}

// NewZap creates a reporter writing to log. A nil log reports nothing.
func NewZap(log *zap.Logger) *Zap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Zap{log: log.WithOptions(zap.AddCallerSkip(1))}
}

func (z *Zap) Message(msg string) { z.log.Info(msg) }

func (z *Zap) Warning(msg string, err error) { z.log.Warn(msg, errField(err)) }

func (z *Zap) Error(msg string, err error) { z.log.Error(msg, errField(err)) }

func (z *Zap) Fatal(msg string, err error) {
	z.log.Error(msg, errField(err), zap.Bool("fatal", true))
}

func errField(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

type nop struct{}

func (nop) Message(string)        {}
func (nop) Warning(string, error) {}
func (nop) Error(string, error)   {}
func (nop) Fatal(string, error)   {}

// Nop returns a reporter that drops everything.
func Nop() Reporter { return nop{} }

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop()
	}
	return r
}
