package listener

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koelabs/koe/pkg/audio/pcm"
	"github.com/koelabs/koe/pkg/detect"
)

type captureProcessor struct {
	mu      sync.Mutex
	texts   []string
	samples [][]float32
}

func (c *captureProcessor) Process(text string, samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	c.samples = append(c.samples, samples)
}

func (c *captureProcessor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func (c *captureProcessor) last() (string, []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		return "", nil
	}
	return c.texts[len(c.texts)-1], c.samples[len(c.samples)-1]
}

func newTestFeed(t *testing.T, cfg Config) (*Feed, *httptest.Server) {
	t.Helper()
	if cfg.Pipeline == nil {
		cfg.Pipeline = &captureProcessor{}
	}
	f, err := NewFeed(cfg)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestFeedAudioAndText(t *testing.T) {
	proc := &captureProcessor{}
	_, srv := newTestFeed(t, Config{Pipeline: proc})
	ws := dialFeed(t, srv)

	samples := make([]float32, 3200)
	for i := range samples {
		samples[i] = 0.25
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, pcm.Int16Bytes(samples)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","text":"koe"}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}

	waitFor(t, func() bool { return proc.count() == 1 }, "pipeline never saw the text event")
	text, audio := proc.last()
	if text != "koe" {
		t.Errorf("text = %q, want koe", text)
	}
	if len(audio) != 3200 {
		t.Fatalf("window has %d samples, want 3200", len(audio))
	}
	if audio[0] < 0.24 || audio[0] > 0.26 {
		t.Errorf("sample 0 = %v, want about 0.25", audio[0])
	}
}

func TestFeedSecondProducerRefused(t *testing.T) {
	_, srv := newTestFeed(t, Config{})
	dialFeed(t, srv)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("second dial error = %v, want bad handshake", err)
	}
	if resp.StatusCode != 409 {
		t.Errorf("second dial status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFeedReconnectAfterDisconnect(t *testing.T) {
	f, srv := newTestFeed(t, Config{})

	ws := dialFeed(t, srv)
	waitFor(t, f.Connected, "feed never registered the producer")
	ws.Close()
	waitFor(t, func() bool { return !f.Connected() }, "feed kept the dead producer")

	dialFeed(t, srv)
	waitFor(t, f.Connected, "feed refused a reconnect")
}

func TestFeedMicBusy(t *testing.T) {
	f, srv := newTestFeed(t, Config{})
	ws := dialFeed(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"mic","busy":true}`)); err != nil {
		t.Fatalf("write mic event: %v", err)
	}
	waitFor(t, f.Busy, "busy flag never set")

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"mic","busy":false}`)); err != nil {
		t.Fatalf("write mic event: %v", err)
	}
	waitFor(t, func() bool { return !f.Busy() }, "busy flag never cleared")
}

func TestFeedReset(t *testing.T) {
	proc := &captureProcessor{}
	_, srv := newTestFeed(t, Config{Pipeline: proc})
	ws := dialFeed(t, srv)

	if err := ws.WriteMessage(websocket.BinaryMessage, pcm.Int16Bytes(make([]float32, 1600))); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset"}`)); err != nil {
		t.Fatalf("write reset: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","text":"koe"}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}

	waitFor(t, func() bool { return proc.count() == 1 }, "pipeline never saw the text event")
	_, audio := proc.last()
	if len(audio) != 0 {
		t.Errorf("window has %d samples after reset, want 0", len(audio))
	}
}

func TestFeedWindowCap(t *testing.T) {
	proc := &captureProcessor{}
	_, srv := newTestFeed(t, Config{Pipeline: proc, Window: 100 * time.Millisecond})
	ws := dialFeed(t, srv)

	samples := make([]float32, 3200)
	for i := range samples {
		samples[i] = float32(i) / 3200
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, pcm.Int16Bytes(samples)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","text":"koe"}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}

	waitFor(t, func() bool { return proc.count() == 1 }, "pipeline never saw the text event")
	_, audio := proc.last()
	if len(audio) != 1600 {
		t.Fatalf("window has %d samples, want the 1600 sample cap", len(audio))
	}
	// The window keeps the newest audio, so it starts midway up the ramp.
	if audio[0] < 0.49 || audio[0] > 0.51 {
		t.Errorf("sample 0 = %v, want about 0.5", audio[0])
	}
}

func TestFeedIgnoresEmptyText(t *testing.T) {
	proc := &captureProcessor{}
	_, srv := newTestFeed(t, Config{Pipeline: proc})
	ws := dialFeed(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","text":""}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","text":"real"}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}

	waitFor(t, func() bool { return proc.count() == 1 }, "pipeline never saw the text event")
	text, _ := proc.last()
	if text != "real" {
		t.Errorf("text = %q, want only the non-empty event", text)
	}
}

func TestFeedPushesDetections(t *testing.T) {
	f, srv := newTestFeed(t, Config{})
	ws := dialFeed(t, srv)
	waitFor(t, f.Connected, "feed never registered the producer")

	d := detect.Detection{
		Command:         detect.NewCommand("koe", detect.ActionNotify),
		Confidence:      0.9,
		IsVoiceVerified: true,
		At:              time.Now(),
	}
	if err := f.CommandDetected(context.Background(), d); err != nil {
		t.Fatalf("CommandDetected: %v", err)
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var push struct {
		Type      string           `json:"type"`
		Detection detect.Detection `json:"detection"`
	}
	if err := json.Unmarshal(data, &push); err != nil {
		t.Fatalf("push payload: %v", err)
	}
	if push.Type != "detection" || push.Detection.Command.Trigger != "koe" {
		t.Errorf("push = %+v, want a koe detection", push)
	}

	if err := f.EnabledChanged(context.Background(), false); err != nil {
		t.Fatalf("EnabledChanged: %v", err)
	}
	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var enabled struct {
		Type    string `json:"type"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal(data, &enabled); err != nil {
		t.Fatalf("push payload: %v", err)
	}
	if enabled.Type != "enabled" || enabled.Enabled {
		t.Errorf("push = %+v, want a disable event", enabled)
	}
}

func TestFeedPushWithoutProducer(t *testing.T) {
	f, err := NewFeed(Config{Pipeline: &captureProcessor{}})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	if err := f.CommandDetected(context.Background(), detect.Detection{}); err != nil {
		t.Errorf("CommandDetected without producer: %v", err)
	}
}

func TestNewFeedRequiresPipeline(t *testing.T) {
	if _, err := NewFeed(Config{}); err == nil {
		t.Error("NewFeed accepted a nil pipeline")
	}
}
