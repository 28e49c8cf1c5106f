package stt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"voice-workflow-recorder/internal/models"
)

// fakeAdapter answers every segment with one scripted final.
type fakeAdapter struct {
	cb       Callback
	started  bool
	closed   bool
	reply    string
	replyErr error
	sent     int
}

func (f *fakeAdapter) Start(ctx context.Context, cb Callback) error {
	f.cb = cb
	f.started = true
	return nil
}

func (f *fakeAdapter) SendAudio(ctx context.Context, audio []byte) error {
	f.sent++
	if f.replyErr != nil {
		f.cb.OnError(f.replyErr)
		return nil
	}
	f.cb.OnPartial(f.reply[:1])
	f.cb.OnFinal(f.reply, 0.93)
	return nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

func testBridge(adapter Adapter) *Bridge {
	return NewBridge(BridgeConfig{SessionID: "sess-1", MinSegmentBytes: 4}, adapter)
}

func segment(startTime float64, size int) models.VoiceSegment {
	return models.VoiceSegment{
		StartTime: startTime,
		EndTime:   startTime + 1.0,
		Audio:     make([]byte, size),
		SessionID: "sess-1",
	}
}

func TestBridge_AnchorsFinalToSegmentStart(t *testing.T) {
	fake := &fakeAdapter{reply: "click the export button"}
	b := testBridge(fake)

	var got []models.Transcription
	b.OnTranscription(func(tr models.Transcription) { got = append(got, tr) })

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := b.Send(segment(42.5, 512)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d transcriptions, want 1", len(got))
	}
	tr := got[0]
	if tr.Timestamp != 42.5 {
		t.Errorf("Timestamp = %v, want segment anchor 42.5", tr.Timestamp)
	}
	if tr.Text != "click the export button" {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", tr.Confidence)
	}
	if tr.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", tr.SessionID)
	}
}

func TestBridge_SendBeforeConnect(t *testing.T) {
	b := testBridge(&fakeAdapter{reply: "x"})
	if err := b.Send(segment(1, 512)); err == nil {
		t.Error("Send before Connect should fail")
	}
}

func TestBridge_SizeFloor(t *testing.T) {
	fake := &fakeAdapter{reply: "x"}
	b := NewBridge(BridgeConfig{SessionID: "sess-1", MinSegmentBytes: 8192}, fake)
	b.Connect(context.Background())

	if err := b.Send(segment(1, 100)); err == nil {
		t.Error("undersized segment should be rejected")
	}
	if fake.sent != 0 {
		t.Errorf("adapter received %d segments, want 0", fake.sent)
	}
}

func TestBridge_FatalSurfacesOnce(t *testing.T) {
	fake := &fakeAdapter{replyErr: errors.New("stream broken")}
	b := testBridge(fake)

	var fatalCount int32
	b.OnFatal(func(err error) { atomic.AddInt32(&fatalCount, 1) })
	b.Connect(context.Background())

	b.Send(segment(1, 512))
	b.Send(segment(2, 512))

	if n := atomic.LoadInt32(&fatalCount); n != 1 {
		t.Errorf("fatal surfaced %d times, want exactly once", n)
	}
}

func TestBridge_CloseStopsAdapter(t *testing.T) {
	fake := &fakeAdapter{reply: "x"}
	b := testBridge(fake)
	b.Connect(context.Background())

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.closed {
		t.Error("adapter not closed")
	}
	if err := b.Send(segment(1, 512)); err == nil {
		t.Error("Send after Close should fail")
	}
}
