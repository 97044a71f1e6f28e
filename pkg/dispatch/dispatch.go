// Package dispatch delivers confirmed detections to their consumers.
// Every dispatcher implements detect.Dispatcher; Multi fans one
// pipeline callback out to several of them, so the daemon can log,
// record, publish, and run hooks for the same detection.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/koelabs/koe/pkg/detect"
)

// Multi fans out to every dispatcher in order. A failing member does
// not stop the others; the joined error carries every failure.
type Multi []detect.Dispatcher

func (m Multi) CommandDetected(ctx context.Context, d detect.Detection) error {
	var errs []error
	for _, dd := range m {
		if err := dd.CommandDetected(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) EnabledChanged(ctx context.Context, enabled bool) error {
	var errs []error
	for _, dd := range m {
		if err := dd.EnabledChanged(ctx, enabled); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logger writes detections to a slog.Logger.
type Logger struct {
	log *slog.Logger
}

func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

func (l *Logger) CommandDetected(ctx context.Context, d detect.Detection) error {
	l.log.Info("dispatch: command detected",
		"trigger", d.Command.Trigger,
		"action", string(d.Command.Action),
		"confidence", d.Confidence,
		"verified", d.IsVoiceVerified)
	return nil
}

func (l *Logger) EnabledChanged(ctx context.Context, enabled bool) error {
	l.log.Info("dispatch: pipeline enabled changed", "enabled", enabled)
	return nil
}
