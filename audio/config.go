package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/parameter"
)

// Config holds engine tunables. Zero values are filled from parameter
// defaults by DefaultConfig.
type Config struct {
	Enabled bool

	MasterVolume  float64
	SafetyCeiling float64

	// CategoryVolumes keys are Category names; unlisted categories
	// play at 1.0
	CategoryVolumes map[string]float64

	CacheBudget int64

	DuckingVolume     float64
	DuckingTransition time.Duration
	DefaultFadeOut    time.Duration

	LoadTimeout time.Duration
	RetryDelay  time.Duration
	Staleness   time.Duration

	SessionLanguage  string
	FallbackLanguage string

	SampleRate     int
	BufferDuration time.Duration
	EventBuffer    int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		MasterVolume:      parameter.DefaultMasterVolume,
		SafetyCeiling:     parameter.DefaultSafetyCeiling,
		CategoryVolumes:   map[string]float64{},
		CacheBudget:       parameter.DefaultCacheBudget,
		DuckingVolume:     parameter.DuckingVolume,
		DuckingTransition: parameter.DuckingTransition,
		DefaultFadeOut:    parameter.DefaultFadeOut,
		LoadTimeout:       parameter.LoadTimeout,
		RetryDelay:        parameter.RetryDelay,
		Staleness:         parameter.CacheStaleness,
		SessionLanguage:   "en",
		FallbackLanguage:  "en",
		SampleRate:        parameter.SampleRate,
		BufferDuration:    parameter.BufferDuration,
		EventBuffer:       parameter.EventBuffer,
	}
}

// LoadConfig reads an optional YAML file plus AUDIOKIT_* environment
// overrides on top of the defaults. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("enabled", def.Enabled)
	v.SetDefault("master_volume", def.MasterVolume)
	v.SetDefault("safety_ceiling", def.SafetyCeiling)
	v.SetDefault("category_volumes", def.CategoryVolumes)
	v.SetDefault("cache_budget", def.CacheBudget)
	v.SetDefault("ducking_volume", def.DuckingVolume)
	v.SetDefault("ducking_transition", def.DuckingTransition)
	v.SetDefault("default_fade_out", def.DefaultFadeOut)
	v.SetDefault("load_timeout", def.LoadTimeout)
	v.SetDefault("retry_delay", def.RetryDelay)
	v.SetDefault("cache_staleness", def.Staleness)
	v.SetDefault("session_language", def.SessionLanguage)
	v.SetDefault("fallback_language", def.FallbackLanguage)
	v.SetDefault("sample_rate", def.SampleRate)
	v.SetDefault("buffer_duration", def.BufferDuration)
	v.SetDefault("event_buffer", def.EventBuffer)

	v.SetEnvPrefix("AUDIOKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, newError(CodeConfigurationError, "", err)
		}
	}

	catVols := map[string]float64{}
	if err := v.UnmarshalKey("category_volumes", &catVols); err != nil {
		return nil, newError(CodeConfigurationError, "", err)
	}

	cfg := &Config{
		Enabled:           v.GetBool("enabled"),
		MasterVolume:      v.GetFloat64("master_volume"),
		SafetyCeiling:     v.GetFloat64("safety_ceiling"),
		CategoryVolumes:   catVols,
		CacheBudget:       v.GetInt64("cache_budget"),
		DuckingVolume:     v.GetFloat64("ducking_volume"),
		DuckingTransition: v.GetDuration("ducking_transition"),
		DefaultFadeOut:    v.GetDuration("default_fade_out"),
		LoadTimeout:       v.GetDuration("load_timeout"),
		RetryDelay:        v.GetDuration("retry_delay"),
		Staleness:         v.GetDuration("cache_staleness"),
		SessionLanguage:   v.GetString("session_language"),
		FallbackLanguage:  v.GetString("fallback_language"),
		SampleRate:        v.GetInt("sample_rate"),
		BufferDuration:    v.GetDuration("buffer_duration"),
		EventBuffer:       v.GetInt("event_buffer"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run under
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return newError(CodeConfigurationError, "", fmt.Errorf(format, args...))
	}

	if c.MasterVolume < 0 || c.MasterVolume > 1 {
		return fail("master volume %v outside [0,1]", c.MasterVolume)
	}
	if c.SafetyCeiling <= 0 || c.SafetyCeiling > 1 {
		return fail("safety ceiling %v outside (0,1]", c.SafetyCeiling)
	}
	for name, vol := range c.CategoryVolumes {
		if vol < 0 || vol > 1 {
			return fail("category %q volume %v outside [0,1]", name, vol)
		}
	}
	if c.CacheBudget <= 0 {
		return fail("cache budget %d not positive", c.CacheBudget)
	}
	if c.DuckingVolume < 0 || c.DuckingVolume > 1 {
		return fail("ducking volume %v outside [0,1]", c.DuckingVolume)
	}
	if c.DuckingTransition < 0 || c.DefaultFadeOut < 0 {
		return fail("negative transition duration")
	}
	if c.LoadTimeout <= 0 {
		return fail("load timeout %v not positive", c.LoadTimeout)
	}
	if c.SampleRate <= 0 {
		return fail("sample rate %d not positive", c.SampleRate)
	}
	if content.ParseLanguage(c.FallbackLanguage) == content.LanguageUnknown {
		return fail("unknown fallback language %q", c.FallbackLanguage)
	}
	return nil
}
