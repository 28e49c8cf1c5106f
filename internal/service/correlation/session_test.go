package correlation

import (
	"errors"
	"sync"
	"testing"
)

func TestSession_RejectsMismatchedSessionID(t *testing.T) {
	s := NewSession("sess-1")

	if err := s.AddBrowserEvent(browserEvent("sess-2", 1.0)); !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("AddBrowserEvent = %v, want ErrSessionMismatch", err)
	}
	if err := s.AddTranscription(transcription("sess-2", "x", 1.0)); !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("AddTranscription = %v, want ErrSessionMismatch", err)
	}
	if b, v := s.Counts(); b != 0 || v != 0 {
		t.Errorf("Counts = (%d, %d), want (0, 0) after rejections", b, v)
	}
}

func TestSession_AppendAndSnapshot(t *testing.T) {
	s := NewSession("sess-1")

	if err := s.AddBrowserEvent(browserEvent("sess-1", 1.0)); err != nil {
		t.Fatalf("AddBrowserEvent: %v", err)
	}
	if err := s.AddTranscription(transcription("sess-1", "hello", 1.2)); err != nil {
		t.Fatalf("AddTranscription: %v", err)
	}

	events, trs := s.Snapshot()
	if len(events) != 1 || len(trs) != 1 {
		t.Fatalf("snapshot sizes = (%d, %d), want (1, 1)", len(events), len(trs))
	}

	// The snapshot is a copy: later appends do not show through.
	if err := s.AddBrowserEvent(browserEvent("sess-1", 2.0)); err != nil {
		t.Fatalf("AddBrowserEvent: %v", err)
	}
	if len(events) != 1 {
		t.Error("snapshot grew after a later append")
	}
}

func TestSession_ConcurrentAppends(t *testing.T) {
	s := NewSession("sess-1")

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = s.AddBrowserEvent(browserEvent("sess-1", float64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = s.AddTranscription(transcription("sess-1", "x", float64(i)))
		}
	}()
	wg.Wait()

	if b, v := s.Counts(); b != n || v != n {
		t.Errorf("Counts = (%d, %d), want (%d, %d)", b, v, n, n)
	}
}

func TestSession_VoiceUnavailableDegrade(t *testing.T) {
	s := NewSession("sess-1")
	if s.VoiceUnavailable() {
		t.Fatal("fresh session reports voice unavailable")
	}

	s.MarkVoiceUnavailable()
	if !s.VoiceUnavailable() {
		t.Fatal("MarkVoiceUnavailable did not stick")
	}

	// Browser-event capture continues after the voice channel is lost.
	if err := s.AddBrowserEvent(browserEvent("sess-1", 1.0)); err != nil {
		t.Errorf("AddBrowserEvent after degrade: %v", err)
	}
}

func TestSession_Correlate(t *testing.T) {
	s := NewSession("sess-1")
	if err := s.AddBrowserEvent(browserEvent("sess-1", 10.0)); err != nil {
		t.Fatalf("AddBrowserEvent: %v", err)
	}
	if err := s.AddTranscription(transcription("sess-1", "click the button", 9.2)); err != nil {
		t.Fatalf("AddTranscription: %v", err)
	}

	res, err := s.Correlate(DefaultOptions())
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if len(res.Events) != 1 || len(res.Events[0].VoiceEvents) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSession_CorrelateToleratesArrivalOrder(t *testing.T) {
	s := NewSession("sess-1")
	if err := s.AddBrowserEvent(browserEvent("sess-1", 10.0)); err != nil {
		t.Fatalf("AddBrowserEvent: %v", err)
	}
	// Transcriptions land in transport arrival order, which may trail the
	// speech order when segments resolve out of turn.
	if err := s.AddTranscription(transcription("sess-1", "later", 12.0)); err != nil {
		t.Fatalf("AddTranscription: %v", err)
	}
	if err := s.AddTranscription(transcription("sess-1", "earlier", 9.2)); err != nil {
		t.Fatalf("AddTranscription: %v", err)
	}

	res, err := s.Correlate(DefaultOptions())
	if err != nil {
		t.Fatalf("Correlate with out-of-order arrivals: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	voices := res.Events[0].VoiceEvents
	if len(voices) != 2 {
		t.Fatalf("got %d voice events, want 2", len(voices))
	}
	if voices[0].Text != "earlier" || voices[1].Text != "later" {
		t.Errorf("voice events not closest-first: %q then %q", voices[0].Text, voices[1].Text)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()

	s, err := r.Create("sess-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID() != "sess-1" {
		t.Errorf("ID = %q, want sess-1", s.ID())
	}

	if _, err := r.Create("sess-1"); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate Create = %v, want ErrSessionExists", err)
	}

	got, ok := r.Get("sess-1")
	if !ok || got != s {
		t.Error("Get did not return the created session")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	removed, ok := r.Remove("sess-1")
	if !ok || removed != s {
		t.Error("Remove did not return the created session")
	}
	if _, ok := r.Get("sess-1"); ok {
		t.Error("session still resolvable after Remove")
	}
	if _, ok := r.Remove("sess-1"); ok {
		t.Error("second Remove reported success")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}
