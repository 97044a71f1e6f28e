package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/koelabs/koe/pkg/detect"
)

// Metrics counts detections and pipeline toggles through the global
// OpenTelemetry meter provider. Set the provider before calling
// NewMetrics.
type Metrics struct {
	detections metric.Int64Counter
	toggles    metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/koelabs/koe/pkg/dispatch")
	detections, err := meter.Int64Counter("koe.detections",
		metric.WithDescription("Confirmed command detections."))
	if err != nil {
		return nil, fmt.Errorf("dispatch: create detections counter: %w", err)
	}
	toggles, err := meter.Int64Counter("koe.pipeline.toggles",
		metric.WithDescription("Pipeline enable and disable transitions."))
	if err != nil {
		return nil, fmt.Errorf("dispatch: create toggles counter: %w", err)
	}
	return &Metrics{detections: detections, toggles: toggles}, nil
}

func (m *Metrics) CommandDetected(ctx context.Context, d detect.Detection) error {
	m.detections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(d.Command.Action)),
		attribute.Bool("verified", d.IsVoiceVerified),
	))
	return nil
}

func (m *Metrics) EnabledChanged(ctx context.Context, enabled bool) error {
	m.toggles.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("enabled", enabled),
	))
	return nil
}
