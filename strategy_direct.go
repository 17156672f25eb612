package lyricscanvas

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/golang/freetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// ---- Strategy 2: direct draw ----

// DirectDrawStrategy paints the target with freetype onto an RGBA canvas at
// reduced resolution.
type DirectDrawStrategy struct {
	fonts  FontSource
	logger *zap.Logger
}

func NewDirectDrawStrategy(fonts FontSource, logger *zap.Logger) *DirectDrawStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fonts == nil {
		fonts = NewFontRegistry(context.Background(), nil, logger)
	}
	return &DirectDrawStrategy{fonts: fonts, logger: logger}
}

func (s *DirectDrawStrategy) Name() string { return "direct-draw" }

func (s *DirectDrawStrategy) Attempt(ctx context.Context, job *Job, format Format) (*Encoded, error) {
	mode := job.ResolveMode()
	dims := DirectDrawDimensions(mode)

	target, err := buildTarget(TargetInput{
		Lyrics:     job.Lyrics,
		Settings:   job.Settings,
		Mode:       mode,
		Dimensions: dims,
		Scale:      downscale(job.ExportDimensions(mode), dims),
		Measure:    measureWith(s.fonts),
	})
	if err != nil {
		return nil, err
	}
	defer target.Release()

	c, err := newCanvas(dims, mustColor(target.Background, color.RGBA{A: 0xFF}))
	if err != nil {
		return nil, err
	}
	for _, b := range target.Blocks() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if missing := s.fonts.Typeface(b.Family, b.Bold).Missing(strings.Join(b.Lines, "")); len(missing) > 0 {
			s.logger.Warn("font has no glyphs for some text, it will draw as boxes",
				zap.String("family", b.Family), zap.String("missing", string(missing)))
		}
		if err := c.drawBlock(s.fonts, b); err != nil {
			return nil, err
		}
	}
	return encodeImage(c.img, format, s.logger)
}

// canvas is a freetype context bound to an RGBA image.
type canvas struct {
	img *image.RGBA
	dc  *freetype.Context
}

func newCanvas(dims Dimensions, bg color.Color) (*canvas, error) {
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, fmt.Errorf("2d surface unavailable for %s", dims)
	}
	img := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	dc := freetype.NewContext()
	dc.SetDPI(72)
	dc.SetClip(img.Bounds())
	dc.SetDst(img)
	dc.SetHinting(font.HintingFull)
	return &canvas{img: img, dc: dc}, nil
}

func (c *canvas) drawBlock(fonts FontSource, b *TextBlock) error {
	tf := fonts.Typeface(b.Family, b.Bold)
	face := fonts.Face(b.Family, b.Size, b.Bold)
	measure := FaceMeasure(face)
	src := image.NewUniform(withOpacity(mustColor(b.Color, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}), b.Opacity))

	if tf.TrueType != nil {
		c.dc.SetFont(tf.TrueType)
		c.dc.SetFontSize(b.Size)
		c.dc.SetSrc(src)
	}
	for i, ln := range b.Lines {
		if ln == "" {
			continue
		}
		x := int(math.Round(b.LineX(measure(ln))))
		y := int(math.Round(b.Baseline(i)))
		if tf.TrueType != nil {
			if _, err := c.dc.DrawString(ln, freetype.Pt(x, y)); err != nil {
				return fmt.Errorf("draw %q: %w", ln, err)
			}
			continue
		}
		// CFF-flavoured OpenType has no freetype glyph loader.
		d := font.Drawer{Dst: c.img, Src: src, Face: face, Dot: fixed.P(x, y)}
		d.DrawString(ln)
	}
	return nil
}

func withOpacity(c color.RGBA, opacity float64) color.NRGBA {
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(float64(c.A) * opacity))}
}
