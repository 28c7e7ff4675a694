// Package zero adapts a [zerolog.Logger] to the logger.Logger interface.
package zero

import (
	"fmt"

	"github.com/rs/zerolog"
)

type Adapter struct {
	logger zerolog.Logger
}

func New(l zerolog.Logger) *Adapter {
	return &Adapter{logger: l}
}

func (a *Adapter) Debug(msg string, args ...any) {
	emit(a.logger.Debug(), msg, args)
}

func (a *Adapter) Info(msg string, args ...any) {
	emit(a.logger.Info(), msg, args)
}

func (a *Adapter) Warn(msg string, args ...any) {
	emit(a.logger.Warn(), msg, args)
}

func (a *Adapter) Error(msg string, args ...any) {
	emit(a.logger.Error(), msg, args)
}

func emit(e *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}
