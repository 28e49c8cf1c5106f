// Package transport maintains the WebSocket channel to the transcription
// collaborator: voice segments out, transcription results back.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/logging"
	"voice-workflow-recorder/internal/observability/metrics"
)

// Errors surfaced to the transport's owner.
var (
	// ErrNotConnected - send attempted while the link is down. The caller
	// decides whether to drop or hold the segment; the transport never
	// buffers.
	ErrNotConnected = errors.New("transport not connected")
	// ErrUnavailable - reconnect attempts exhausted. Fatal to the voice
	// channel; browser-event capture continues independently.
	ErrUnavailable = errors.New("transport unavailable")
	// ErrSegmentTooSmall - segment below the size floor, rejected before
	// transmission.
	ErrSegmentTooSmall = errors.New("segment below size floor")
)

// State represents the connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
	StateUnavailable
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateUnavailable:
		return "UNAVAILABLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Config holds transport settings.
type Config struct {
	Endpoint             string
	SessionID            string
	MimeType             string
	Format               string
	SampleRate           int
	MinSegmentBytes      int
	ReconnectBackoff     time.Duration // base delay, multiplied by attempt count
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
}

// DefaultConfig returns production defaults for the given endpoint.
func DefaultConfig(endpoint, sessionId string) Config {
	return Config{
		Endpoint:             endpoint,
		SessionID:            sessionId,
		MimeType:             "audio/wav",
		Format:               "pcm16le",
		SampleRate:           16000,
		MinSegmentBytes:      8 * 1024,
		ReconnectBackoff:     2 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
	}
}

// Client is a reconnecting WebSocket client for one recording session.
// Sends are fire-and-forget, at-most-once per segment: a stale retried
// segment would carry a wrong timestamp relationship to current browser
// state, so failed sends are never replayed internally.
type Client struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	lastAnchor float64 // startTime of the most recently sent segment

	onTranscription func(models.Transcription)
	onFatal         func(error)
	fatalOnce       sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a transport client. Connect must be called before Send.
func NewClient(cfg Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:     cfg,
		logger:  logging.WithTransport(cfg.Endpoint).With().Str("sessionId", cfg.SessionID).Logger(),
		metrics: metrics.DefaultMetrics,
		state:   StateDisconnected,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnTranscription registers the receiver for asynchronous results.
// Results carry the originating segment's anchor timestamp; arrival order
// is not guaranteed.
func (c *Client) OnTranscription(fn func(models.Transcription)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscription = fn
}

// OnFatal registers the receiver for the terminal unavailable condition.
func (c *Client) OnFatal(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFatal = fn
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the collaborator and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info().Msg("connected to transcription collaborator")
	go c.readLoop(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		if resp != nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Err(err).
				Msg("websocket dial failed")
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// Send ships one voice segment. Fails fast with ErrNotConnected while the
// link is down and ErrSegmentTooSmall below the size floor.
func (c *Client) Send(seg models.VoiceSegment) error {
	if len(seg.Audio) < c.cfg.MinSegmentBytes {
		c.metrics.TransportSendErrors.WithLabelValues("too_small").Inc()
		return fmt.Errorf("%w: %d bytes < %d", ErrSegmentTooSmall, len(seg.Audio), c.cfg.MinSegmentBytes)
	}

	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		state := c.state
		c.mu.Unlock()
		c.metrics.TransportSendErrors.WithLabelValues("not_connected").Inc()
		return fmt.Errorf("%w (state=%s)", ErrNotConnected, state)
	}
	conn := c.conn
	c.lastAnchor = seg.StartTime
	c.mu.Unlock()

	msg := models.AudioSegmentMessage{
		Type:           models.MessageTypeAudioSegment,
		Data:           seg.Audio,
		Timestamp:      seg.StartTime,
		VoiceStartTime: seg.StartTime,
		VoiceEndTime:   seg.EndTime,
		Size:           len(seg.Audio),
		MimeType:       c.cfg.MimeType,
		Format:         c.cfg.Format,
		IsSegment:      true,
	}

	if err := conn.WriteJSON(msg); err != nil {
		c.metrics.TransportSendErrors.WithLabelValues("write").Inc()
		c.handleDisconnect(conn)
		return fmt.Errorf("send segment: %w", err)
	}

	c.metrics.TransportSends.Inc()
	c.logger.Debug().
		Float64("startTime", seg.StartTime).
		Int("bytes", len(seg.Audio)).
		Msg("voice segment sent")
	return nil
}

// readLoop consumes inbound frames until the connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Msg("connection closed")
				return
			}
			c.logger.Warn().Err(err).Msg("read error, scheduling reconnect")
			c.handleDisconnect(conn)
			return
		}

		var msg models.TranscriptionMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("unparseable frame, skipping")
			continue
		}

		switch msg.Type {
		case models.MessageTypeConnection:
			c.logger.Info().Str("status", msg.Status).Msg("collaborator greeting")

		case models.MessageTypeTranscription:
			c.deliver(msg)

		default:
			c.logger.Debug().Str("type", msg.Type).Msg("ignoring frame")
		}
	}
}

func (c *Client) deliver(msg models.TranscriptionMessage) {
	c.mu.Lock()
	fn := c.onTranscription
	anchor := c.lastAnchor
	c.mu.Unlock()

	if fn == nil {
		return
	}

	ts := msg.Timestamp
	if ts == 0 {
		// Collaborator echoed no anchor; fall back to the last segment
		// sent on this channel.
		ts = anchor
	}
	confidence := msg.Confidence
	if confidence <= 0 || confidence > 1 {
		// Absent or out-of-range confidence gets the default; downstream
		// correlation only accepts [0,1].
		confidence = 0.8
	}

	c.metrics.TranscriptionsReceived.Inc()
	fn(models.Transcription{
		Text:       msg.Text,
		Confidence: confidence,
		Timestamp:  ts,
		SessionID:  c.cfg.SessionID,
	})
}

// handleDisconnect transitions to Reconnecting and kicks off the backoff
// loop, unless one is already running or the client is shutting down.
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	c.mu.Unlock()

	go c.reconnectLoop()
}

// reconnectLoop retries with a linear-growth backoff (base delay times
// attempt count), bounded by MaxReconnectAttempts. Waits are cancellable
// through the client context.
func (c *Client) reconnectLoop() {
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * c.cfg.ReconnectBackoff

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		c.metrics.TransportReconnects.Inc()
		c.logger.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("reconnecting")

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		c.logger.Info().Int("attempt", attempt).Msg("reconnected")
		go c.readLoop(conn)
		return
	}

	c.mu.Lock()
	c.state = StateUnavailable
	fn := c.onFatal
	c.mu.Unlock()

	c.metrics.TransportUnavailable.Inc()
	c.logger.Error().
		Int("attempts", c.cfg.MaxReconnectAttempts).
		Msg("reconnect attempts exhausted, transport unavailable")

	c.fatalOnce.Do(func() {
		if fn != nil {
			fn(ErrUnavailable)
		}
	})
}

// Close tears down the connection and cancels any pending reconnect.
// No further reconnects are attempted after Close.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.state != StateUnavailable {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
