package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koelabs/koe/pkg/detect"
)

// Bus subjects. Detections carry the detect.Detection JSON encoding;
// enabled changes carry an enabledMessage.
const (
	SubjectDetected = "koe.command.detected"
	SubjectEnabled  = "koe.pipeline.enabled"
)

// Publisher is the slice of the NATS connection the dispatcher needs.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes detections on the message bus so other processes on
// the machine (or the network) can react to voice commands.
type NATS struct {
	pub Publisher
}

func NewNATS(pub Publisher) *NATS {
	return &NATS{pub: pub}
}

type enabledMessage struct {
	Enabled bool      `json:"enabled"`
	At      time.Time `json:"at"`
}

func (n *NATS) CommandDetected(ctx context.Context, d detect.Detection) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("dispatch: encode detection: %w", err)
	}
	if err := n.pub.Publish(SubjectDetected, data); err != nil {
		return fmt.Errorf("dispatch: publish %s: %w", SubjectDetected, err)
	}
	return nil
}

func (n *NATS) EnabledChanged(ctx context.Context, enabled bool) error {
	data, err := json.Marshal(enabledMessage{Enabled: enabled, At: time.Now()})
	if err != nil {
		return fmt.Errorf("dispatch: encode enabled change: %w", err)
	}
	if err := n.pub.Publish(SubjectEnabled, data); err != nil {
		return fmt.Errorf("dispatch: publish %s: %w", SubjectEnabled, err)
	}
	return nil
}
