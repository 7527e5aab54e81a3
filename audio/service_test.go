package audio

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/sproutplay/audiokit/content"
)

// TestServiceLifecycle verifies init, start, and idempotent stop
func TestServiceLifecycle(t *testing.T) {
	s := NewService(zerolog.Nop())
	if s.Name() != "audio" {
		t.Errorf("Expected service name audio, got %q", s.Name())
	}

	if err := s.Init(DefaultConfig(), content.NewStaticLibrary()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if s.IsDisabled() {
		t.Fatal("Expected service enabled after init")
	}
	if s.Engine() == nil {
		t.Fatal("Expected engine available")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
}

// TestServiceDegradesOnBadConfig verifies a config failure disables
// audio instead of failing the app
func TestServiceDegradesOnBadConfig(t *testing.T) {
	s := NewService(zerolog.Nop())

	cfg := DefaultConfig()
	cfg.MasterVolume = 5.0
	if err := s.Init(cfg, content.NewStaticLibrary()); err != nil {
		t.Fatalf("Init returned error instead of degrading: %v", err)
	}
	if !s.IsDisabled() {
		t.Error("Expected service disabled")
	}
	if s.Engine() != nil {
		t.Error("Expected nil engine when disabled")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
