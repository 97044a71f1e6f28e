// Package listener feeds the detection pipeline from outside the
// process. A speech recognizer connects to the WebSocket feed and
// streams two kinds of frames:
//
//   - binary frames carry 16 kHz mono 16-bit little-endian PCM, which
//     the feed appends to a rolling window of recent audio
//   - text frames carry JSON events, most importantly recognized text,
//     which snapshots the window and hands both to the pipeline
//
// One producer at a time: a second connection is refused with 409 so
// two recognizers cannot interleave audio into the same window. The
// feed also implements detect.Dispatcher, pushing confirmed detections
// back to the connected producer.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koelabs/koe/pkg/audio/pcm"
	"github.com/koelabs/koe/pkg/detect"
)

// DefaultWindow is how much recent audio the feed keeps for the
// verifier.
const DefaultWindow = 5 * time.Second

// Processor consumes recognized text together with the audio window it
// was recognized from. *detect.Pipeline satisfies it.
type Processor interface {
	Process(text string, samples []float32)
}

// Config configures a Feed.
type Config struct {
	// Pipeline receives every text event. Required.
	Pipeline Processor
	// Window is the length of the rolling audio window, DefaultWindow
	// when zero.
	Window time.Duration
	Logger *slog.Logger
}

// Feed is the WebSocket intake endpoint. It is an http.Handler; mount
// it wherever the recognizer expects to connect.
type Feed struct {
	pipeline Processor
	ring     *pcm.Ring
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	active bool
	busy   bool

	wmu sync.Mutex
}

// NewFeed creates a Feed over the given pipeline.
func NewFeed(cfg Config) (*Feed, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("listener: config needs a pipeline")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Feed{
		pipeline: cfg.Pipeline,
		ring:     pcm.RingFor(pcm.L16Mono16K, cfg.Window),
		log:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Client to server events. "text" carries recognized text, "reset"
// clears the audio window, "mic" toggles the contention flag.
type feedEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Busy bool   `json:"busy,omitempty"`
}

type detectionPush struct {
	Type      string           `json:"type"`
	Detection detect.Detection `json:"detection"`
}

type enabledPush struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		http.Error(w, "a feed is already connected", http.StatusConflict)
		return
	}
	f.active = true
	f.mu.Unlock()

	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.mu.Lock()
		f.active = false
		f.mu.Unlock()
		return
	}

	f.mu.Lock()
	f.conn = ws
	f.mu.Unlock()
	f.log.Info("listener: feed connected", "remote", r.RemoteAddr)

	f.readLoop(ws)

	f.mu.Lock()
	f.conn = nil
	f.active = false
	f.busy = false
	f.mu.Unlock()
	ws.Close()
	// The next producer starts with a clean window.
	f.ring.Reset()
	f.log.Info("listener: feed disconnected", "remote", r.RemoteAddr)
}

func (f *Feed) readLoop(ws *websocket.Conn) {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Warn("listener: feed read", "err", err)
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			f.ring.Write(pcm.Float32(data))
		case websocket.TextMessage:
			f.handleEvent(data)
		}
	}
}

func (f *Feed) handleEvent(data []byte) {
	var evt feedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		f.log.Warn("listener: bad feed event", "err", err)
		return
	}
	switch evt.Type {
	case "text":
		if evt.Text == "" {
			return
		}
		f.pipeline.Process(evt.Text, f.ring.Snapshot())
	case "reset":
		f.ring.Reset()
	case "mic":
		f.mu.Lock()
		f.busy = evt.Busy
		f.mu.Unlock()
	default:
		f.log.Debug("listener: unknown feed event", "type", evt.Type)
	}
}

// Busy reports whether the producer declared the microphone held by
// another consumer. Wire it to the pipeline's mic gate.
func (f *Feed) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Connected reports whether a producer is currently attached.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

// Window returns the current audio window, oldest first.
func (f *Feed) Window() []float32 {
	return f.ring.Snapshot()
}

// CommandDetected pushes a confirmed detection to the connected
// producer. Without a producer it is a no-op.
func (f *Feed) CommandDetected(ctx context.Context, d detect.Detection) error {
	f.mu.Lock()
	ws := f.conn
	f.mu.Unlock()
	if ws == nil {
		return nil
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	if err := ws.WriteJSON(detectionPush{Type: "detection", Detection: d}); err != nil {
		return fmt.Errorf("listener: push detection: %w", err)
	}
	return nil
}

// EnabledChanged pushes a pipeline enable or disable to the connected
// producer.
func (f *Feed) EnabledChanged(ctx context.Context, enabled bool) error {
	f.mu.Lock()
	ws := f.conn
	f.mu.Unlock()
	if ws == nil {
		return nil
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	if err := ws.WriteJSON(enabledPush{Type: "enabled", Enabled: enabled}); err != nil {
		return fmt.Errorf("listener: push enabled change: %w", err)
	}
	return nil
}
