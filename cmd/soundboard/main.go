// Command soundboard is an interactive terminal exerciser for the audio
// engine: number keys fire requests on each category, letter keys drive
// the facade (pause, resume, mute, interruptions), and the screen shows
// channel states, volumes, and cache usage live.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"github.com/sproutplay/audiokit/audio"
	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/event"
)

const eventLogDepth = 12

type board struct {
	screen tcell.Screen
	engine *audio.Engine

	clips map[audio.Category]string

	eventLog []string
	events   <-chan event.Event
	unsub    func()
}

func main() {
	soundDir := flag.String("sounds", "sounds", "directory of audio clips (wav/mp3/ogg)")
	configPath := flag.String("config", "", "optional engine config file")
	catalogPath := flag.String("catalog", "", "optional content catalog for localized keys")
	flag.Parse()

	logFile, err := os.OpenFile("soundboard.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer logFile.Close()
	logger := zerolog.New(logFile).With().Timestamp().Logger()

	cfg, err := audio.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	clips, err := scanClips(*soundDir)
	if err != nil {
		log.Fatalf("scan %s: %v", *soundDir, err)
	}
	if len(clips) == 0 {
		log.Fatalf("no audio clips under %s", *soundDir)
	}

	var lib content.Library = content.NewStaticLibrary()
	if *catalogPath != "" {
		catalog, err := content.LoadCatalog(*catalogPath)
		if err != nil {
			log.Fatalf("catalog: %v", err)
		}
		lib = catalog
	}
	resolver := content.NewResolver(lib,
		content.ParseLanguage(cfg.SessionLanguage),
		content.ParseLanguage(cfg.FallbackLanguage))
	backend := audio.NewBeepBackend(cfg.SampleRate, cfg.BufferDuration)

	engine, err := audio.New(cfg, resolver, backend, logger)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	if err := engine.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}
	defer engine.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()

	events, unsub := engine.Events().Subscribe(cfg.EventBuffer)
	b := &board{
		screen: screen,
		engine: engine,
		clips:  clips,
		events: events,
		unsub:  unsub,
	}
	defer unsub()

	b.run()
}

// scanClips assigns the first clips found in dir to categories in
// declaration order, cycling when the directory holds fewer files
func scanClips(dir string) (map[audio.Category]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".wav", ".mp3", ".ogg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	clips := make(map[audio.Category]string)
	if len(paths) == 0 {
		return clips, nil
	}
	for i, cat := range audio.Categories() {
		clips[cat] = paths[i%len(paths)]
	}
	return clips, nil
}

func (b *board) run() {
	keyEvents := make(chan tcell.Event, 8)
	go func() {
		for {
			keyEvents <- b.screen.PollEvent()
		}
	}()

	redraw := time.NewTicker(100 * time.Millisecond)
	defer redraw.Stop()

	for {
		b.draw()
		select {
		case ev := <-keyEvents:
			switch tev := ev.(type) {
			case *tcell.EventResize:
				b.screen.Sync()
			case *tcell.EventKey:
				if !b.handleKey(tev) {
					return
				}
			}
		case ev := <-b.events:
			b.logEvent(ev)
		case <-redraw.C:
		}
	}
}

func (b *board) handleKey(ev *tcell.EventKey) bool {
	if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
		return false
	}

	r := ev.Rune()
	if r >= '1' && r <= '9' {
		b.play(audio.Category(r - '1'))
		return true
	}

	switch r {
	case 'q':
		return false
	case 'm':
		b.engine.ToggleMute()
	case 'p':
		b.engine.Pause()
	case 'r':
		b.engine.Resume()
	case 's':
		b.engine.Stop(200 * time.Millisecond)
	case 'i':
		b.engine.OnInterruption(audio.InterruptPhoneCall)
	case 'o':
		b.engine.OnInterruptionEnded()
	case 'h':
		b.engine.OnInterruption(audio.InterruptHardwareChange)
	case 'c':
		b.engine.ClearCache(false)
	case '+', '=':
		b.engine.SetMasterVolume(b.engine.MasterVolume() + 0.1)
	case '-':
		b.engine.SetMasterVolume(b.engine.MasterVolume() - 0.1)
	}
	return true
}

func (b *board) play(cat audio.Category) {
	path, ok := b.clips[cat]
	if !ok {
		return
	}
	b.engine.Play(context.Background(), audio.Request{
		Path:      path,
		Category:  cat,
		Loop:      cat == audio.CategoryBackgroundMusic,
		Cacheable: true,
		FadeIn:    fadeFor(cat),
	})
}

// Background music eases in; everything else starts cold
func fadeFor(cat audio.Category) time.Duration {
	if cat == audio.CategoryBackgroundMusic {
		return 300 * time.Millisecond
	}
	return 0
}

func (b *board) logEvent(ev event.Event) {
	line := fmt.Sprintf("%s  %-14s %-16s seq=%d", ev.Time.Format("15:04:05"),
		ev.Type, ev.Channel, ev.Seq)
	if ev.Err != nil {
		line += "  " + ev.Err.Error()
	}
	b.eventLog = append(b.eventLog, line)
	if len(b.eventLog) > eventLogDepth {
		b.eventLog = b.eventLog[len(b.eventLog)-eventLogDepth:]
	}
}

func (b *board) draw() {
	b.screen.Clear()
	row := 0

	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	b.print(0, row, title, "audiokit soundboard")
	row++
	b.print(0, row, tcell.StyleDefault,
		"1-9 play | p pause | r resume | s stop | m mute | i/o interrupt | h hw-change | +/- volume | c clear cache | q quit")
	row += 2

	muted := ""
	if b.engine.IsMuted() {
		muted = "  [MUTED]"
	}
	b.print(0, row, tcell.StyleDefault,
		fmt.Sprintf("master %.2f%s", b.engine.MasterVolume(), muted))
	row += 2

	for i, cat := range audio.Categories() {
		state := b.engine.GetState(cat)
		style := tcell.StyleDefault
		switch state {
		case audio.StatePlaying:
			style = style.Foreground(tcell.ColorGreen)
		case audio.StatePaused:
			style = style.Foreground(tcell.ColorBlue)
		case audio.StateLoading:
			style = style.Foreground(tcell.ColorYellow)
		case audio.StateError:
			style = style.Foreground(tcell.ColorRed)
		}
		line := fmt.Sprintf("[%d] %-18s %-8s vol %.2f  %s",
			i+1, cat, state, b.engine.GetVolume(cat), filepath.Base(b.clips[cat]))
		b.print(0, row, style, line)
		row++
	}
	row++

	st := b.engine.CacheStats()
	b.print(0, row, tcell.StyleDefault,
		fmt.Sprintf("cache %d items / %d KB  hit %.0f%%  dropped events %d",
			st.ItemCount, st.SizeBytes/1024, st.HitRatio()*100, b.engine.Events().Dropped()))
	row += 2

	dim := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for _, line := range b.eventLog {
		b.print(0, row, dim, line)
		row++
	}

	b.screen.Show()
}

func (b *board) print(x, y int, style tcell.Style, s string) {
	for i, r := range s {
		b.screen.SetContent(x+i, y, r, nil, style)
	}
}
