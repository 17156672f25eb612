package lyricscanvas

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ---- Editor ----

// PreviewLayout is the on-screen canvas as last computed.
type PreviewLayout struct {
	Mode   LayoutMode    `json:"mode"`
	Zoom   float64       `json:"zoom"`
	Ratio  string        `json:"ratio"`
	Target *RenderTarget `json:"target"`
}

// EditorConfig wires an Editor. Every field is optional.
type EditorConfig struct {
	Store  KeyValueStore
	Fonts  FontSource
	Logger *zap.Logger
	Now    func() time.Time
}

// previewKey is everything the preview layout depends on.
type previewKey struct {
	title, body, author string
	settings            CanvasSettings
	mode                LayoutMode
	dims                Dimensions
}

// Editor owns the current lyrics, settings and mode. It persists changes,
// keeps the preview layout current and is the exporter's content source.
type Editor struct {
	mu       sync.Mutex
	lyrics   Lyrics
	settings CanvasSettings
	mode     LayoutMode
	surface  *Surface
	avail    Dimensions
	preview  PreviewLayout
	lastKey  previewKey
	computed bool

	subs    map[int]func(PreviewLayout)
	nextSub int

	store  KeyValueStore
	fonts  FontSource
	logger *zap.Logger
	now    func() time.Time
}

// NewEditor restores lyrics and settings from the store. Unreadable or
// invalid records are logged and replaced by defaults.
func NewEditor(ctx context.Context, cfg EditorConfig) *Editor {
	e := &Editor{
		settings: DefaultSettings(),
		mode:     Portrait,
		subs:     map[int]func(PreviewLayout){},
		store:    cfg.Store,
		fonts:    cfg.Fonts,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if e.store == nil {
		e.store = nopStore{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.surface = NewSurface(0, 0, MarkerClass, ModeClass(e.mode))

	if !e.store.Load(ctx, KeyLyrics, &e.lyrics) {
		e.lyrics = NewLyrics("", "", "", e.now())
	}
	e.lyrics.ensureID()

	var raw json.RawMessage
	if e.store.Load(ctx, KeySettings, &raw) {
		s, err := MigrateSettings(raw)
		if err == nil {
			err = s.Validate()
		}
		if err != nil {
			e.logger.Warn("stored settings unusable, using defaults", zap.Error(err))
		} else {
			e.settings = s
		}
	}
	return e
}

func (e *Editor) Lyrics() Lyrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lyrics
}

func (e *Editor) Settings() CanvasSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

func (e *Editor) Mode() LayoutMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetLyrics replaces the text while keeping the lyrics' identity.
func (e *Editor) SetLyrics(ctx context.Context, title, body, author string) {
	e.mu.Lock()
	e.lyrics.Title, e.lyrics.Body, e.lyrics.Author = title, body, author
	e.lyrics.Touch(e.now())
	l := e.lyrics
	e.mu.Unlock()

	if err := e.store.Save(ctx, KeyLyrics, l); err != nil {
		e.logger.Warn("persist lyrics", zap.Error(err))
	}
	e.refresh()
}

// UpdateSettings validates and stores s.
func (e *Editor) UpdateSettings(ctx context.Context, s CanvasSettings) error {
	s.Version = SettingsVersion
	if err := s.Validate(); err != nil {
		return &ConfigError{Op: "update settings", Err: err}
	}
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()

	if err := e.store.Save(ctx, KeySettings, s); err != nil {
		e.logger.Warn("persist settings", zap.Error(err))
	}
	e.refresh()
	return nil
}

// SetMode switches the layout mode and relabels the preview surface.
func (e *Editor) SetMode(mode LayoutMode) error {
	if mode != Portrait && mode != Landscape {
		return &ConfigError{Op: "set mode", Err: fmt.Errorf("unknown layout mode %q", mode)}
	}
	e.mu.Lock()
	e.mode = mode
	e.surface.SetClasses(MarkerClass, ModeClass(mode))
	e.mu.Unlock()
	e.refresh()
	return nil
}

// Reset drops the stored lyrics and settings and starts over.
func (e *Editor) Reset(ctx context.Context) {
	for _, k := range []string{KeyLyrics, KeySettings} {
		if err := e.store.Remove(ctx, k); err != nil {
			e.logger.Warn("remove stored value", zap.String("key", k), zap.Error(err))
		}
	}
	e.mu.Lock()
	e.lyrics = NewLyrics("", "", "", e.now())
	e.settings = DefaultSettings()
	e.mu.Unlock()
	e.refresh()
}

// Resize reports the space available to the preview. Repeating the same size
// changes nothing.
func (e *Editor) Resize(width, height float64) {
	e.mu.Lock()
	e.avail = Dimensions{Width: int(width), Height: int(height)}
	e.mu.Unlock()
	e.refresh()
}

// Surface is the live preview canvas handle.
func (e *Editor) Surface() *Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface
}

// QuerySurfaces finds the preview surface by class.
func (e *Editor) QuerySurfaces(class string) []*Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface.HasClass(class) {
		return []*Surface{e.surface}
	}
	return nil
}

// Preview returns the current preview layout.
func (e *Editor) Preview() PreviewLayout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview
}

// Subscribe registers fn for preview changes and returns its cancel func.
func (e *Editor) Subscribe(fn func(PreviewLayout)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// previewDims is the largest rectangle of the mode's ratio inside avail.
func previewDims(avail Dimensions, mode LayoutMode) Dimensions {
	if avail.Width <= 0 {
		return Dimensions{}
	}
	ratio := ExpectedRatio(mode)
	w := float64(avail.Width)
	h := w / ratio
	if avail.Height > 0 && h > float64(avail.Height) {
		h = float64(avail.Height)
		w = h * ratio
	}
	return Dimensions{Width: int(w), Height: int(h)}
}

// refresh recomputes the preview when its inputs changed and notifies
// subscribers.
func (e *Editor) refresh() {
	e.mu.Lock()
	dims := previewDims(e.avail, e.mode)
	key := previewKey{
		title: e.lyrics.Title, body: e.lyrics.Body, author: e.lyrics.Author,
		settings: e.settings, mode: e.mode, dims: dims,
	}
	if e.computed && key == e.lastKey {
		e.mu.Unlock()
		return
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		e.mu.Unlock()
		return
	}
	target, err := BuildTarget(TargetInput{
		Lyrics:     e.lyrics,
		Settings:   e.settings,
		Mode:       e.mode,
		Dimensions: dims,
		Measure:    measureWith(e.fonts),
	})
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("preview layout", zap.Error(err))
		return
	}
	e.surface.SetSize(float64(dims.Width), float64(dims.Height))
	e.preview = PreviewLayout{
		Mode:   e.mode,
		Zoom:   e.settings.Zoom,
		Ratio:  ExactRatio(float64(dims.Width), float64(dims.Height)),
		Target: target,
	}
	e.lastKey, e.computed = key, true
	p := e.preview
	subs := make([]func(PreviewLayout), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// ExportSnapshot implements Source. Font sizes are scaled from the width the
// preview has in mode to the export width of mode, and zoom is reset, so the
// export keeps the preview's proportions. An empty mode is the editor's.
func (e *Editor) ExportSnapshot(mode LayoutMode) ExportSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lyrics.Touch(e.now())
	if mode == "" {
		mode = e.mode
	}

	s := e.settings
	job := Job{Settings: s}
	preview := previewDims(e.avail, mode)
	scale := ExportScale(float64(job.ExportDimensions(mode).Width), float64(preview.Width))
	s.TitleFontSize *= scale
	s.ContentFontSize *= scale
	s.Zoom = 1
	return ExportSnapshot{Lyrics: e.lyrics.Snapshot(), Settings: s, Mode: mode}
}
