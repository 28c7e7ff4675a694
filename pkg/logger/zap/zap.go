// Package zap adapts a [zap.Logger] to the logger.Logger interface.
package zap

import (
	"go.uber.org/zap"
)

type Adapter struct {
	sugar *zap.SugaredLogger
}

func New(l *zap.Logger) *Adapter {
	return &Adapter{sugar: l.Sugar()}
}

func (a *Adapter) Debug(msg string, args ...any) {
	a.sugar.Debugw(msg, args...)
}

func (a *Adapter) Info(msg string, args ...any) {
	a.sugar.Infow(msg, args...)
}

func (a *Adapter) Warn(msg string, args ...any) {
	a.sugar.Warnw(msg, args...)
}

func (a *Adapter) Error(msg string, args ...any) {
	a.sugar.Errorw(msg, args...)
}
