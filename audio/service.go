package audio

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sproutplay/audiokit/content"
)

// Service wraps Engine with a lifecycle suited to app embedding.
// Handles graceful degradation: when no audio backend is available the
// service stays up, reports disabled, and every accessor returns nil.
type Service struct {
	engine   *Engine
	log      zerolog.Logger
	disabled atomic.Bool
}

// NewService creates an unconfigured audio service
func NewService(logger zerolog.Logger) *Service {
	return &Service{log: logger}
}

// Name returns the service identifier
func (s *Service) Name() string {
	return "audio"
}

// Init builds the engine from config and content library.
// A backend or config failure sets the disabled flag instead of
// returning an error; the app keeps running without sound.
func (s *Service) Init(cfg *Config, lib content.Library) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	resolver := content.NewResolver(lib,
		content.ParseLanguage(cfg.SessionLanguage),
		content.ParseLanguage(cfg.FallbackLanguage))
	backend := NewBeepBackend(cfg.SampleRate, cfg.BufferDuration)

	engine, err := New(cfg, resolver, backend, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("audio unavailable, running silent")
		s.disabled.Store(true)
		return nil
	}
	s.engine = engine
	return nil
}

// Start makes the engine accept requests; a start failure degrades to
// disabled rather than propagating
func (s *Service) Start() error {
	if s.disabled.Load() || s.engine == nil {
		return nil
	}
	if err := s.engine.Start(); err != nil {
		s.log.Warn().Err(err).Msg("audio start failed, running silent")
		s.disabled.Store(true)
		s.engine = nil
		return nil
	}
	return nil
}

// Stop shuts the engine down. Idempotent.
func (s *Service) Stop() error {
	if s.engine != nil {
		s.engine.Close()
	}
	return nil
}

// IsDisabled returns true if audio is unavailable
func (s *Service) IsDisabled() bool {
	return s.disabled.Load()
}

// Engine returns the underlying engine (nil if disabled)
func (s *Service) Engine() *Engine {
	if s.disabled.Load() {
		return nil
	}
	return s.engine
}
