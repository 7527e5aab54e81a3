package content

import (
	"strings"
	"time"
)

// Language identifies a supported narration language
type Language int

const (
	LanguageUnknown Language = iota
	LanguageEnglish
	LanguageFrench
	LanguageSpanish
	languageCount
)

// String returns the BCP 47 primary subtag for the language
func (l Language) String() string {
	switch l {
	case LanguageEnglish:
		return "en"
	case LanguageFrench:
		return "fr"
	case LanguageSpanish:
		return "es"
	default:
		return "und"
	}
}

// ParseLanguage maps a language tag to a Language, LanguageUnknown if
// unrecognized
func ParseLanguage(tag string) Language {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "en", "english":
		return LanguageEnglish
	case "fr", "french":
		return LanguageFrench
	case "es", "spanish":
		return LanguageSpanish
	default:
		return LanguageUnknown
	}
}

// AgeGroup buckets listeners for speech-rate variant selection
type AgeGroup int

const (
	AgeGroupUnknown AgeGroup = iota
	AgeGroupToddler          // 2-3
	AgeGroupPreschool        // 4-5
	AgeGroupPrimary          // 6-8
)

// Variant is a language-tagged recording of the same content at a
// different speech rate
type Variant struct {
	Path       string
	AgeGroup   AgeGroup
	SpeechRate float64 // Relative to the base recording, 1.0 = normal
}

// Content describes one bilingual audio asset ahead of playback.
// Constructed by the content layer; the audio engine only reads it.
type Content struct {
	ID          string
	AgeGroup    AgeGroup
	Paths       map[Language]string
	Transcripts map[Language]string
	Variants    map[Language][]Variant
	Duration    time.Duration
	Subject     string
	Tags        []string
}

// PathFor returns the base recording for lang, or the age-matched
// variant when one exists. Never substitutes across content IDs.
func (c *Content) PathFor(lang Language, age AgeGroup) (string, bool) {
	base, ok := c.Paths[lang]
	if !ok {
		return "", false
	}
	if age == AgeGroupUnknown {
		return base, true
	}
	for _, v := range c.Variants[lang] {
		if v.AgeGroup == age {
			return v.Path, true
		}
	}
	return base, true
}
