package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// catalogEntry is the file representation of one content item
type catalogEntry struct {
	ID          string                      `mapstructure:"id"`
	AgeGroup    string                      `mapstructure:"age_group"`
	Subject     string                      `mapstructure:"subject"`
	Duration    time.Duration               `mapstructure:"duration"`
	Tags        []string                    `mapstructure:"tags"`
	Paths       map[string]string           `mapstructure:"paths"`
	Transcripts map[string]string           `mapstructure:"transcripts"`
	Variants    map[string][]catalogVariant `mapstructure:"variants"`
}

type catalogVariant struct {
	Path       string  `mapstructure:"path"`
	AgeGroup   string  `mapstructure:"age_group"`
	SpeechRate float64 `mapstructure:"speech_rate"`
}

// LoadCatalog reads a YAML content catalog into a library. Entries
// must carry an id and at least one language path; anything else is a
// load error, not a silent skip.
func LoadCatalog(path string) (*StaticLibrary, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var entries []catalogEntry
	if err := v.UnmarshalKey("content", &entries); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	lib := NewStaticLibrary()
	for i, e := range entries {
		c, err := e.toContent()
		if err != nil {
			return nil, fmt.Errorf("catalog %s entry %d: %w", path, i, err)
		}
		lib.Register(c)
	}
	return lib, nil
}

func (e catalogEntry) toContent() (*Content, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if len(e.Paths) == 0 {
		return nil, fmt.Errorf("%s: no language paths", e.ID)
	}

	age, err := parseAgeGroup(e.AgeGroup)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.ID, err)
	}

	c := &Content{
		ID:          e.ID,
		AgeGroup:    age,
		Subject:     e.Subject,
		Duration:    e.Duration,
		Tags:        e.Tags,
		Paths:       make(map[Language]string, len(e.Paths)),
		Transcripts: make(map[Language]string, len(e.Transcripts)),
	}

	for tag, p := range e.Paths {
		lang := ParseLanguage(tag)
		if lang == LanguageUnknown {
			return nil, fmt.Errorf("%s: unknown language %q", e.ID, tag)
		}
		c.Paths[lang] = p
	}
	for tag, tr := range e.Transcripts {
		lang := ParseLanguage(tag)
		if lang == LanguageUnknown {
			return nil, fmt.Errorf("%s: unknown transcript language %q", e.ID, tag)
		}
		c.Transcripts[lang] = tr
	}

	if len(e.Variants) > 0 {
		c.Variants = make(map[Language][]Variant, len(e.Variants))
		for tag, vars := range e.Variants {
			lang := ParseLanguage(tag)
			if lang == LanguageUnknown {
				return nil, fmt.Errorf("%s: unknown variant language %q", e.ID, tag)
			}
			for _, cv := range vars {
				age, err := parseAgeGroup(cv.AgeGroup)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", e.ID, err)
				}
				rate := cv.SpeechRate
				if rate == 0 {
					rate = 1.0
				}
				c.Variants[lang] = append(c.Variants[lang], Variant{
					Path:       cv.Path,
					AgeGroup:   age,
					SpeechRate: rate,
				})
			}
		}
	}
	return c, nil
}

func parseAgeGroup(s string) (AgeGroup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return AgeGroupUnknown, nil
	case "toddler":
		return AgeGroupToddler, nil
	case "preschool":
		return AgeGroupPreschool, nil
	case "primary":
		return AgeGroupPrimary, nil
	default:
		return AgeGroupUnknown, fmt.Errorf("unknown age group %q", s)
	}
}
