package dispatch

import (
	"context"
	"fmt"

	"github.com/koelabs/koe/pkg/detect"
	"github.com/koelabs/koe/pkg/history"
)

// Recorder appends every detection to the history log.
type Recorder struct {
	log *history.Log
}

func NewRecorder(log *history.Log) *Recorder {
	return &Recorder{log: log}
}

func (r *Recorder) CommandDetected(ctx context.Context, d detect.Detection) error {
	if err := r.log.Append(ctx, d); err != nil {
		return fmt.Errorf("dispatch: record detection: %w", err)
	}
	return nil
}

func (r *Recorder) EnabledChanged(ctx context.Context, enabled bool) error {
	return nil
}
