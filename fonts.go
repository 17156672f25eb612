package lyricscanvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// ErrUnsupportedFont is returned for uploads that are not ttf/otf/woff/woff2.
var ErrUnsupportedFont = errors.New("unsupported font file")

// Font is a registry entry. Custom fonts keep their bytes in memory only;
// a custom entry restored from the store has NeedsReupload set until the
// file is supplied again.
type Font struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SourceURL     string `json:"sourceUrl,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	IsCustom      bool   `json:"isCustom"`
	NeedsReupload bool   `json:"needsReupload,omitempty"`
}

// Usable reports whether a renderer can load the font's bytes or URL.
func (f Font) Usable() bool { return !f.NeedsReupload }

var defaultFonts = []Font{
	{ID: "noto-sans-kr", Name: "Noto Sans KR", SourceURL: "https://fonts.googleapis.com/css2?family=Noto+Sans+KR:wght@400;700&display=swap"},
	{ID: "nanum-gothic", Name: "Nanum Gothic", SourceURL: "https://fonts.googleapis.com/css2?family=Nanum+Gothic:wght@400;700&display=swap"},
	{ID: "nanum-myeongjo", Name: "Nanum Myeongjo", SourceURL: "https://fonts.googleapis.com/css2?family=Nanum+Myeongjo:wght@400;700&display=swap"},
}

// fontFormats maps accepted extensions to their MIME type and CSS format().
var fontFormats = map[string]struct{ mime, css string }{
	".ttf":   {"font/ttf", "truetype"},
	".otf":   {"font/otf", "opentype"},
	".woff":  {"font/woff", "woff"},
	".woff2": {"font/woff2", "woff2"},
}

// FontResource is what the snapshot document needs to load a family: either
// a stylesheet URL or the raw bytes for an @font-face rule.
type FontResource struct {
	Family    string
	SourceURL string
	Data      []byte
	MIMEType  string
	Format    string
}

// Typeface is a parsed font. TrueType is nil for CFF-flavoured OpenType,
// which only x/image/font/opentype can read.
type Typeface struct {
	Family   string
	TrueType *truetype.Font
	OpenType *opentype.Font
}

// NewFace returns a face where size is in pixels.
func (t *Typeface) NewFace(size float64) (font.Face, error) {
	if t.TrueType != nil {
		return truetype.NewFace(t.TrueType, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull}), nil
	}
	if t.OpenType != nil {
		return opentype.NewFace(t.OpenType, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	}
	return nil, fmt.Errorf("typeface %q has no font data", t.Family)
}

// Missing lists the runes of s, other than whitespace, that t has no glyph
// for. Each rune is reported once.
func (t *Typeface) Missing(s string) []rune {
	var (
		out  []rune
		seen = map[rune]bool{}
		buf  sfnt.Buffer
	)
	for _, r := range s {
		if unicode.IsSpace(r) || seen[r] {
			continue
		}
		seen[r] = true
		if !t.has(&buf, r) {
			out = append(out, r)
		}
	}
	return out
}

func (t *Typeface) has(buf *sfnt.Buffer, r rune) bool {
	switch {
	case t.TrueType != nil:
		return t.TrueType.Index(r) != 0
	case t.OpenType != nil:
		i, err := t.OpenType.GlyphIndex(buf, r)
		return err == nil && i != 0
	}
	return false
}

// FontSource resolves family names to typefaces for the raster renderers.
// It never fails: unknown families fall back to the bundled Go fonts.
// Typefaces may be shared; faces returned by Face belong to the caller and
// must not be used from more than one goroutine.
type FontSource interface {
	Typeface(family string, bold bool) *Typeface
	Face(family string, size float64, bold bool) font.Face
	Resource(family string) (FontResource, bool)
}

// FontRegistry lists built-in and uploaded fonts and doubles as the
// renderers' FontSource. Built-in families are resolved to font files on
// first use: installed system fonts first, then a download from the
// family's SourceURL when downloads are enabled.
type FontRegistry struct {
	mu     sync.Mutex
	fonts  []Font
	data   map[string][]byte
	parsed map[string]*Typeface
	warned map[string]bool
	store  KeyValueStore
	logger *zap.Logger

	dirs      []string
	dirsSet   bool
	client    *http.Client
	filesOnce sync.Once
	files     []string

	goRegular *Typeface
	goBold    *Typeface
}

// FontOption customises a FontRegistry.
type FontOption func(*FontRegistry)

// WithFontDirs replaces the directories searched for installed fonts.
// Calling it with no directories disables the search.
func WithFontDirs(dirs ...string) FontOption {
	return func(r *FontRegistry) {
		r.dirs = append([]string(nil), dirs...)
		r.dirsSet = true
	}
}

// WithFontDownload lets built-in families be downloaded from their
// SourceURL with client when no installed font matches.
func WithFontDownload(client *http.Client) FontOption {
	return func(r *FontRegistry) {
		if client == nil {
			client = &http.Client{Timeout: fontFetchTimeout}
		}
		r.client = client
	}
}

// NewFontRegistry seeds the default fonts and restores custom font metadata
// from store. Restored custom fonts have no bytes and are flagged for
// re-upload.
func NewFontRegistry(ctx context.Context, store KeyValueStore, logger *zap.Logger, opts ...FontOption) *FontRegistry {
	if store == nil {
		store = nopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FontRegistry{
		fonts:  append([]Font(nil), defaultFonts...),
		data:   map[string][]byte{},
		parsed: map[string]*Typeface{},
		warned: map[string]bool{},
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.dirsSet {
		r.dirs = DefaultFontDirs()
	}
	r.goRegular = mustGoTypeface("Go Regular", goregular.TTF)
	r.goBold = mustGoTypeface("Go Bold", gobold.TTF)

	var saved []Font
	if store.Load(ctx, KeyFonts, &saved) {
		for _, f := range saved {
			if !f.IsCustom || f.ID == "" {
				continue
			}
			f.NeedsReupload = true
			r.fonts = append(r.fonts, f)
		}
	}
	return r
}

func mustGoTypeface(name string, ttf []byte) *Typeface {
	ft, err := truetype.Parse(ttf)
	if err != nil {
		panic(fmt.Sprintf("bundled font %s: %v", name, err))
	}
	return &Typeface{Family: name, TrueType: ft}
}

// List returns every font, defaults first.
func (r *FontRegistry) List() []Font {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Font(nil), r.fonts...)
}

// Get looks a font up by ID.
func (r *FontRegistry) Get(id string) (Font, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return Font{}, false
	}
	return r.fonts[i], true
}

// AddCustomFont registers an uploaded font file. The family name is the file
// name without extension.
func (r *FontRegistry) AddCustomFont(ctx context.Context, data []byte, fileName string) (Font, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := fontFormats[ext]; !ok {
		return Font{}, fmt.Errorf("%w: %q (want ttf, otf, woff or woff2)", ErrUnsupportedFont, fileName)
	}
	if len(data) == 0 {
		return Font{}, fmt.Errorf("%w: %q is empty", ErrUnsupportedFont, fileName)
	}
	f := Font{
		ID:       "custom-" + uuid.NewString(),
		Name:     strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)),
		FileName: filepath.Base(fileName),
		IsCustom: true,
	}

	r.mu.Lock()
	r.fonts = append(r.fonts, f)
	r.data[f.ID] = append([]byte(nil), data...)
	r.mu.Unlock()

	r.persist(ctx)
	r.logger.Info("custom font added", zap.String("id", f.ID), zap.String("name", f.Name))
	return f, nil
}

// ReuploadFont supplies the bytes for a custom font restored from the store.
func (r *FontRegistry) ReuploadFont(id string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 || !r.fonts[i].IsCustom {
		return fmt.Errorf("no custom font %q", id)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty upload", ErrUnsupportedFont)
	}
	r.data[id] = append([]byte(nil), data...)
	r.fonts[i].NeedsReupload = false
	r.dropCachedLocked(r.fonts[i].Name)
	return nil
}

// RemoveFont deletes a custom font. Built-in fonts cannot be removed.
func (r *FontRegistry) RemoveFont(ctx context.Context, id string) bool {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 || !r.fonts[i].IsCustom {
		r.mu.Unlock()
		return false
	}
	name := r.fonts[i].Name
	r.fonts = append(r.fonts[:i], r.fonts[i+1:]...)
	delete(r.data, id)
	r.dropCachedLocked(name)
	r.mu.Unlock()

	r.persist(ctx)
	return true
}

func (r *FontRegistry) persist(ctx context.Context) {
	r.mu.Lock()
	var custom []Font
	for _, f := range r.fonts {
		if f.IsCustom {
			f.NeedsReupload = false
			custom = append(custom, f)
		}
	}
	r.mu.Unlock()
	if err := r.store.Save(ctx, KeyFonts, custom); err != nil {
		r.logger.Warn("persist custom fonts", zap.Error(err))
	}
}

func (r *FontRegistry) indexOf(id string) int {
	for i, f := range r.fonts {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// lookupLocked matches a family against names first, then IDs.
func (r *FontRegistry) lookupLocked(family string) (Font, bool) {
	for _, f := range r.fonts {
		if strings.EqualFold(f.Name, family) {
			return f, true
		}
	}
	for _, f := range r.fonts {
		if f.ID == family {
			return f, true
		}
	}
	return Font{}, false
}

func parsedKey(family string, bold bool) string {
	if bold {
		return strings.ToLower(family) + "|bold"
	}
	return strings.ToLower(family)
}

func (r *FontRegistry) dropCachedLocked(family string) {
	delete(r.parsed, parsedKey(family, false))
	delete(r.parsed, parsedKey(family, true))
}

// Typeface parses the custom font registered under family or resolves a
// built-in family to an installed or downloaded font file. Without usable
// bytes it returns the bundled Go font, which has no Hangul glyphs.
func (r *FontRegistry) Typeface(family string, bold bool) *Typeface {
	r.mu.Lock()
	tf, f, load := r.typefaceLocked(family, bold)
	r.mu.Unlock()
	if !load {
		return tf
	}

	// Disk and network work happens outside the lock; a concurrent caller
	// may resolve the same family and the first result wins.
	loaded := r.resolveBuiltin(f, bold)

	r.mu.Lock()
	defer r.mu.Unlock()
	key := parsedKey(f.Name, bold)
	if cached, ok := r.parsed[key]; ok {
		return cached
	}
	if loaded == nil {
		loaded = r.fallbackLocked(f.Name, bold)
	}
	r.parsed[key] = loaded
	return loaded
}

// typefaceLocked returns a cached or custom typeface. load is set when f is
// a built-in family that still has to be resolved.
func (r *FontRegistry) typefaceLocked(family string, bold bool) (tf *Typeface, f Font, load bool) {
	f, ok := r.lookupLocked(family)
	if !ok {
		return r.fallbackLocked(family, bold), f, false
	}
	key := parsedKey(f.Name, bold)
	if tf, ok := r.parsed[key]; ok {
		return tf, f, false
	}
	if !f.IsCustom {
		return nil, f, true
	}
	data, ok := r.data[f.ID]
	if !ok {
		return r.fallbackLocked(f.Name, bold), f, false
	}
	tf, err := parseTypeface(f.Name, data)
	if err != nil {
		r.logger.Warn("parse custom font, using bundled font", zap.String("family", f.Name), zap.Error(err))
		tf = r.fallbackLocked(f.Name, bold)
	}
	r.parsed[key] = tf
	return tf, f, false
}

// fallbackLocked returns the bundled Go font and warns once per family that
// text outside Latin scripts will not render.
func (r *FontRegistry) fallbackLocked(family string, bold bool) *Typeface {
	if k := strings.ToLower(family); !r.warned[k] {
		r.warned[k] = true
		r.logger.Warn("no font data for family, using bundled Go font without Hangul glyphs",
			zap.String("family", family))
	}
	if bold {
		return r.goBold
	}
	return r.goRegular
}

func parseTypeface(family string, data []byte) (*Typeface, error) {
	if ft, err := truetype.Parse(data); err == nil {
		return &Typeface{Family: family, TrueType: ft}, nil
	}
	ot, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return &Typeface{Family: family, OpenType: ot}, nil
}

// Face returns a new face for family at size pixels. Faces keep glyph and
// hinting state, so every caller gets its own.
func (r *FontRegistry) Face(family string, size float64, bold bool) font.Face {
	tf := r.Typeface(family, bold)
	face, err := tf.NewFace(size)
	if err != nil {
		r.logger.Warn("create face, using bundled font", zap.String("family", family), zap.Error(err))
		face = truetype.NewFace(r.goRegular.TrueType, &truetype.Options{Size: size, DPI: 72})
	}
	return face
}

// Resource describes how the snapshot document should load family.
func (r *FontRegistry) Resource(family string) (FontResource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.lookupLocked(family)
	if !ok || !f.Usable() {
		return FontResource{}, false
	}
	if !f.IsCustom {
		return FontResource{Family: f.Name, SourceURL: f.SourceURL}, f.SourceURL != ""
	}
	data, ok := r.data[f.ID]
	if !ok {
		return FontResource{}, false
	}
	ff := fontFormats[strings.ToLower(filepath.Ext(f.FileName))]
	return FontResource{Family: f.Name, Data: data, MIMEType: ff.mime, Format: ff.css}, true
}
