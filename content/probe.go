package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Sentinel errors
var (
	ErrUnknownFormat = errors.New("no prober registered for format")
	ErrInvalidAudio  = errors.New("not a valid audio stream")
)

// Info describes a probed audio source without decoding it fully
type Info struct {
	Duration time.Duration
	Format   *audio.Format
	PCMBytes int64 // Decoded size estimate at 16-bit depth
	FileSize int64
}

// Prober extracts Info from the head of an audio stream
type Prober interface {
	Probe(r io.ReadSeeker) (Info, error)
}

// ProbeRegistry maps file extensions to probers
type ProbeRegistry struct {
	mu      sync.Mutex
	probers map[string]Prober
}

// NewProbeRegistry creates a registry with wav, mp3, and ogg probers
// pre-registered
func NewProbeRegistry() *ProbeRegistry {
	pr := &ProbeRegistry{
		probers: make(map[string]Prober),
	}
	pr.Register("wav", wavProber{})
	pr.Register("mp3", mp3Prober{})
	pr.Register("ogg", oggProber{})
	return pr
}

// Register adds a prober for the given extension (without dot)
func (pr *ProbeRegistry) Register(ext string, p Prober) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.probers[ext] = p
}

// Get returns the prober for an extension
func (pr *ProbeRegistry) Get(ext string) (Prober, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	p, ok := pr.probers[ext]
	return p, ok
}

// ProbeFile probes path using the prober matching its extension
func (pr *ProbeRegistry) ProbeFile(path string) (Info, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	p, ok := pr.Get(ext)
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	info, err := p.Probe(f)
	if err != nil {
		return Info{}, err
	}
	if st, err := f.Stat(); err == nil {
		info.FileSize = st.Size()
	}
	return info, nil
}

type wavProber struct{}

func (wavProber) Probe(r io.ReadSeeker) (Info, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%w: bad wav header", ErrInvalidAudio)
	}
	dur, err := d.Duration()
	if err != nil {
		return Info{}, err
	}
	format := d.Format()
	return Info{
		Duration: dur,
		Format:   format,
		PCMBytes: pcmBytes(dur, format.SampleRate, format.NumChannels),
	}, nil
}

type mp3Prober struct{}

func (mp3Prober) Probe(r io.ReadSeeker) (Info, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	// go-mp3 always outputs 16-bit stereo
	format := &audio.Format{NumChannels: 2, SampleRate: d.SampleRate()}
	samples := d.Length() / 4
	return Info{
		Duration: time.Duration(samples) * time.Second / time.Duration(d.SampleRate()),
		Format:   format,
		PCMBytes: d.Length(),
	}, nil
}

type oggProber struct{}

func (oggProber) Probe(r io.ReadSeeker) (Info, error) {
	length, f, err := oggvorbis.GetLength(r)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	format := &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate}
	return Info{
		Duration: time.Duration(length) * time.Second / time.Duration(f.SampleRate),
		Format:   format,
		PCMBytes: length * int64(f.Channels) * 2,
	}, nil
}

// pcmBytes estimates decoded size at 16-bit depth
func pcmBytes(dur time.Duration, rate, channels int) int64 {
	frames := int64(dur.Seconds() * float64(rate))
	return frames * int64(channels) * 2
}
