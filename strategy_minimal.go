package lyricscanvas

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ---- Strategy 3: minimal fallback ----

const (
	minimalBodyRunes = 30
	minimalTitle     = "Untitled"
	minimalFontSize  = 16
)

// MinimalStrategy draws a truncated summary with the built-in bitmap face.
// It needs no external programs and is the last resort. Text the bitmap
// face cannot show, such as Hangul, is drawn with the body font when fonts
// has one that covers it.
type MinimalStrategy struct {
	fonts  FontSource
	logger *zap.Logger
}

// NewMinimalStrategy accepts a nil fonts; the strategy then only has the
// bitmap face.
func NewMinimalStrategy(fonts FontSource, logger *zap.Logger) *MinimalStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinimalStrategy{fonts: fonts, logger: logger}
}

func (s *MinimalStrategy) Name() string { return "minimal" }

func (s *MinimalStrategy) Attempt(_ context.Context, job *Job, format Format) (*Encoded, error) {
	mode := job.ResolveMode()
	dims := MinimalDimensions(mode)

	img := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	bg := mustColor(job.Settings.BackgroundColor, color.RGBA{A: 0xFF})
	fg := mustColor(job.Settings.TextColor, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	lines := minimalLines(job.Lyrics)
	d := font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: s.face(job.Settings.BodyFontFamily, strings.Join(lines, ""))}
	y := 50
	for _, ln := range lines {
		w := d.MeasureString(ln).Round()
		d.Dot = fixed.P((dims.Width-w)/2, y)
		d.DrawString(ln)
		y += 50
	}
	return encodeImage(img, format, s.logger)
}

// face is the bitmap face unless text needs glyphs it lacks and the body
// font has them.
func (s *MinimalStrategy) face(family, text string) font.Face {
	missing := bitmapMissing(text)
	if len(missing) == 0 {
		return basicfont.Face7x13
	}
	if s.fonts != nil {
		if tf := s.fonts.Typeface(family, false); len(tf.Missing(text)) == 0 {
			return s.fonts.Face(family, minimalFontSize, false)
		}
	}
	s.logger.Warn("no font has glyphs for some text, it will draw as boxes",
		zap.String("family", family), zap.String("missing", string(missing)))
	return basicfont.Face7x13
}

// bitmapMissing lists the runes of text the bitmap face has no glyph for.
func bitmapMissing(text string) []rune {
	var out []rune
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if _, ok := basicfont.Face7x13.GlyphAdvance(r); !ok {
			out = append(out, r)
		}
	}
	return out
}

// minimalLines is the title, the start of the body and the author. With
// nothing at all to show it falls back to a placeholder title.
func minimalLines(l Lyrics) []string {
	var out []string
	title := strings.TrimSpace(l.Title)
	if title != "" {
		out = append(out, title)
	}
	if body := strings.Join(strings.Fields(l.Body), " "); body != "" {
		if utf8.RuneCountInString(body) > minimalBodyRunes {
			body = string([]rune(body)[:minimalBodyRunes]) + "..."
		}
		out = append(out, body)
	}
	if author := strings.TrimSpace(l.Author); author != "" {
		out = append(out, "- "+author)
	}
	if len(out) == 0 {
		out = append(out, minimalTitle)
	}
	return out
}
