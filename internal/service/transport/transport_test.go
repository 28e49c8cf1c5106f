package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-workflow-recorder/internal/models"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades each connection and answers every audio_segment
// frame with a transcription frame.
func echoServer(t *testing.T, reply func(models.AudioSegmentMessage) models.TranscriptionMessage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg models.AudioSegmentMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := conn.WriteJSON(reply(msg)); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(s.URL, "http://")
}

func testClientConfig(endpoint string) Config {
	cfg := DefaultConfig(endpoint, "sess-1")
	cfg.MinSegmentBytes = 4
	cfg.ReconnectBackoff = 5 * time.Millisecond
	cfg.MaxReconnectAttempts = 2
	return cfg
}

func segment(startTime float64, size int) models.VoiceSegment {
	return models.VoiceSegment{
		StartTime: startTime,
		EndTime:   startTime + 1.2,
		Audio:     make([]byte, size),
		SessionID: "sess-1",
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateUnavailable, "UNAVAILABLE"},
		{State(99), "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	srv := echoServer(t, func(msg models.AudioSegmentMessage) models.TranscriptionMessage {
		if msg.Type != models.MessageTypeAudioSegment || !msg.IsSegment {
			t.Errorf("unexpected outbound frame: %+v", msg)
		}
		return models.TranscriptionMessage{
			Type:      models.MessageTypeTranscription,
			Text:      "filter the last ten rows",
			Timestamp: msg.VoiceStartTime,
		}
	})
	defer srv.Close()

	c := NewClient(testClientConfig(wsURL(srv)))
	defer c.Close()

	received := make(chan models.Transcription, 1)
	c.OnTranscription(func(tr models.Transcription) {
		received <- tr
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", c.State())
	}

	if err := c.Send(segment(42.5, 512)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case tr := <-received:
		if tr.Text != "filter the last ten rows" {
			t.Errorf("Text = %q", tr.Text)
		}
		if tr.Timestamp != 42.5 {
			t.Errorf("Timestamp = %v, want 42.5 (segment anchor)", tr.Timestamp)
		}
		if tr.SessionID != "sess-1" {
			t.Errorf("SessionID = %q, want sess-1", tr.SessionID)
		}
		if tr.Confidence <= 0 || tr.Confidence > 1 {
			t.Errorf("Confidence = %v, want (0,1]", tr.Confidence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcription received")
	}
}

func TestClient_AnchorFallbackWhenServerOmitsTimestamp(t *testing.T) {
	srv := echoServer(t, func(msg models.AudioSegmentMessage) models.TranscriptionMessage {
		return models.TranscriptionMessage{
			Type: models.MessageTypeTranscription,
			Text: "ok",
		}
	})
	defer srv.Close()

	c := NewClient(testClientConfig(wsURL(srv)))
	defer c.Close()

	received := make(chan models.Transcription, 1)
	c.OnTranscription(func(tr models.Transcription) { received <- tr })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Send(segment(99.25, 512)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case tr := <-received:
		if tr.Timestamp != 99.25 {
			t.Errorf("Timestamp = %v, want anchor 99.25", tr.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcription received")
	}
}

func TestClient_OutOfRangeConfidenceNormalized(t *testing.T) {
	srv := echoServer(t, func(msg models.AudioSegmentMessage) models.TranscriptionMessage {
		return models.TranscriptionMessage{
			Type:       models.MessageTypeTranscription,
			Text:       "ok",
			Timestamp:  msg.VoiceStartTime,
			Confidence: 1.2,
		}
	})
	defer srv.Close()

	c := NewClient(testClientConfig(wsURL(srv)))
	defer c.Close()

	received := make(chan models.Transcription, 1)
	c.OnTranscription(func(tr models.Transcription) { received <- tr })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Send(segment(5.0, 512)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case tr := <-received:
		if tr.Confidence != 0.8 {
			t.Errorf("Confidence = %v, want default 0.8 for out-of-range value", tr.Confidence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcription received")
	}
}

func TestClient_SendFailsFastWhenDisconnected(t *testing.T) {
	c := NewClient(testClientConfig("ws://127.0.0.1:1/voice-stream"))
	defer c.Close()

	err := c.Send(segment(1, 512))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while disconnected = %v, want ErrNotConnected", err)
	}
}

func TestClient_SendRejectsBelowSizeFloor(t *testing.T) {
	cfg := testClientConfig("ws://127.0.0.1:1/voice-stream")
	cfg.MinSegmentBytes = 8192
	c := NewClient(cfg)
	defer c.Close()

	err := c.Send(segment(1, 100))
	if !errors.Is(err, ErrSegmentTooSmall) {
		t.Errorf("Send = %v, want ErrSegmentTooSmall", err)
	}
}

func TestClient_ReconnectExhaustionSurfacesFatalOnce(t *testing.T) {
	connected := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connected <- struct{}{}
		// Drop the connection without a close handshake.
		conn.UnderlyingConn().Close()
	}))

	c := NewClient(testClientConfig(wsURL(srv)))
	defer c.Close()

	var fatalCount int32
	fatalErr := make(chan error, 4)
	c.OnFatal(func(err error) {
		atomic.AddInt32(&fatalCount, 1)
		fatalErr <- err
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-connected
	// Every reconnect attempt must now fail.
	srv.Close()

	select {
	case err := <-fatalErr:
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("fatal error = %v, want ErrUnavailable", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fatal condition never surfaced")
	}

	if c.State() != StateUnavailable {
		t.Errorf("state = %v, want UNAVAILABLE", c.State())
	}
	if n := atomic.LoadInt32(&fatalCount); n != 1 {
		t.Errorf("fatal surfaced %d times, want exactly once", n)
	}

	// Sends fail fast rather than queueing.
	if err := c.Send(segment(1, 512)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after exhaustion = %v, want ErrNotConnected", err)
	}
}

func TestClient_CloseCancelsReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	cfg := testClientConfig(wsURL(srv))
	cfg.ReconnectBackoff = time.Hour // would hang without cancellation
	c := NewClient(cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Give the read loop a moment to observe the drop, then close.
	time.Sleep(50 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on pending reconnect")
	}
}
