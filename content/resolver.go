package content

import (
	"os"
	"sync"
)

// Outcome tags a resolution result
type Outcome int

const (
	// OutcomeFound means the requested language was available
	OutcomeFound Outcome = iota

	// OutcomeFallback means the fallback language was substituted
	OutcomeFallback

	// OutcomeNotFound means no language variant exists for the key
	OutcomeNotFound
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeFallback:
		return "fallback"
	case OutcomeNotFound:
		return "not-found"
	default:
		return "invalid"
	}
}

// Ref is a logical audio reference: an explicit path, or a content key
// with optional language override and age hint
type Ref struct {
	Path     string
	Key      string
	Override Language
	AgeGroup AgeGroup
}

// Resolution is the tagged result of resolving a Ref
type Resolution struct {
	Outcome    Outcome
	Path       string
	Language   Language
	Transcript string
	Info       Info
}

// Resolver maps logical audio references to concrete file sources.
// Resolution is a pure lookup; it never retries and never mutates the
// library it reads from.
type Resolver struct {
	lib   Library
	probe *ProbeRegistry

	mu       sync.RWMutex
	session  Language
	fallback Language
}

// NewResolver creates a resolver over lib with the given session and
// fallback languages
func NewResolver(lib Library, session, fallback Language) *Resolver {
	return &Resolver{
		lib:      lib,
		probe:    NewProbeRegistry(),
		session:  session,
		fallback: fallback,
	}
}

// SetSessionLanguage updates the current session language
func (r *Resolver) SetSessionLanguage(lang Language) {
	r.mu.Lock()
	r.session = lang
	r.mu.Unlock()
}

// SessionLanguage returns the current session language
func (r *Resolver) SessionLanguage() Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

// Resolve maps ref to a concrete source. Direct paths bypass
// localization and are checked for existence only. Key lookups walk
// override, session language, then fallback language before giving up.
func (r *Resolver) Resolve(ref Ref) Resolution {
	if ref.Path != "" {
		return r.resolvePath(ref.Path)
	}

	c, ok := r.lib.Lookup(ref.Key)
	if !ok {
		return Resolution{Outcome: OutcomeNotFound}
	}

	r.mu.RLock()
	session, fallback := r.session, r.fallback
	r.mu.RUnlock()

	requested := ref.Override
	if requested == LanguageUnknown {
		requested = session
	}

	if path, ok := c.PathFor(requested, ref.AgeGroup); ok {
		return r.finish(Resolution{
			Outcome:    OutcomeFound,
			Path:       path,
			Language:   requested,
			Transcript: c.Transcripts[requested],
		}, c)
	}

	if fallback != LanguageUnknown && fallback != requested {
		if path, ok := c.PathFor(fallback, ref.AgeGroup); ok {
			return r.finish(Resolution{
				Outcome:    OutcomeFallback,
				Path:       path,
				Language:   fallback,
				Transcript: c.Transcripts[fallback],
			}, c)
		}
	}

	return Resolution{Outcome: OutcomeNotFound}
}

func (r *Resolver) resolvePath(path string) Resolution {
	if _, err := os.Stat(path); err != nil {
		return Resolution{Outcome: OutcomeNotFound, Path: path}
	}
	res := Resolution{Outcome: OutcomeFound, Path: path}
	if info, err := r.probe.ProbeFile(path); err == nil {
		res.Info = info
	}
	return res
}

// finish fills metadata from the probe, falling back to the declared
// content duration when the file cannot be probed
func (r *Resolver) finish(res Resolution, c *Content) Resolution {
	if info, err := r.probe.ProbeFile(res.Path); err == nil {
		res.Info = info
	} else {
		res.Info = Info{Duration: c.Duration}
	}
	return res
}
