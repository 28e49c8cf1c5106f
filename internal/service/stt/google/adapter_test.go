package google

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("LanguageCode = %s, want en-US", cfg.LanguageCode)
	}
	if cfg.SampleRateHertz != 16000 {
		t.Errorf("SampleRateHertz = %d, want 16000", cfg.SampleRateHertz)
	}
	if !cfg.InterimResults {
		t.Error("InterimResults should default to true")
	}
}
