package lyricscanvas

import (
	"bytes"
	"fmt"
	"html/template"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/vincent-petithory/dataurl"
)

// ---- Render target ----

// MarkerClass tags the element holding the canvas in both the preview and
// the snapshot document.
const MarkerClass = "lyrics-canvas-container"

const (
	titleLineHeight = 1.2
	authorScale     = 0.8
	authorOpacity   = 0.8
	// baselineShare places the baseline this far below a line box's centre,
	// in units of font size.
	baselineShare = 0.35
)

// ModeClass is the CSS class naming the layout mode of a surface.
func ModeClass(mode LayoutMode) string {
	if mode == Landscape {
		return "landscape-canvas"
	}
	return "portrait-canvas"
}

// Surface is a handle on a mounted canvas element: its classes and measured
// size. The preview owns one; recovery looks them up by MarkerClass. The
// owner relabels and resizes it while exports read it, so all access goes
// through its methods.
type Surface struct {
	mu      sync.RWMutex
	classes []string
	width   float64
	height  float64
}

// NewSurface returns a surface carrying classes at width x height.
func NewSurface(width, height float64, classes ...string) *Surface {
	return &Surface{classes: append([]string(nil), classes...), width: width, height: height}
}

// Classes returns a copy of the surface's classes.
func (s *Surface) Classes() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.classes...)
}

// SetClasses replaces the surface's classes.
func (s *Surface) SetClasses(classes ...string) {
	s.mu.Lock()
	s.classes = append([]string(nil), classes...)
	s.mu.Unlock()
}

// Size is the surface's measured width and height.
func (s *Surface) Size() (width, height float64) {
	if s == nil {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// SetSize records a new measured size.
func (s *Surface) SetSize(width, height float64) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

// HasClass reports whether class is among the surface's classes.
func (s *Surface) HasClass(class string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.classes {
		if c == class {
			return true
		}
	}
	return false
}

// InspectMode reads the layout mode from the surface's classes. It is a
// recovery path for callers that did not say which mode they want.
func (s *Surface) InspectMode() (LayoutMode, bool) {
	classes := s.Classes()
	for _, mode := range []LayoutMode{Landscape, Portrait} {
		for _, c := range classes {
			if c == ModeClass(mode) {
				return mode, true
			}
		}
	}
	return "", false
}

// TextBlock is one positioned run of lines.
type TextBlock struct {
	Lines      []string  `json:"lines"`
	Family     string    `json:"family"`
	Size       float64   `json:"size"`
	LineHeight float64   `json:"lineHeight"`
	Bold       bool      `json:"bold"`
	Color      string    `json:"color"`
	Opacity    float64   `json:"opacity"`
	Align      Alignment `json:"align"`
	AnchorX    float64   `json:"anchorX"`
	Top        float64   `json:"top"`
}

// Height is the block's total line-box height.
func (b *TextBlock) Height() float64 {
	if b == nil {
		return 0
	}
	return float64(len(b.Lines)) * b.LineHeight
}

// Baseline is the y of line i's baseline.
func (b *TextBlock) Baseline(i int) float64 {
	return b.Top + float64(i)*b.LineHeight + b.LineHeight/2 + b.Size*baselineShare
}

// LineX returns where a line of width w starts so that it honours the
// block's alignment around AnchorX.
func (b *TextBlock) LineX(w float64) float64 {
	switch b.Align {
	case AlignLeft:
		return b.AnchorX
	case AlignRight:
		return b.AnchorX - w
	default:
		return b.AnchorX - w/2
	}
}

// MeasureFor returns a width measure for a face. Nil means the heuristic.
type MeasureFor func(family string, size float64, bold bool) MeasureFunc

// TargetInput describes one render target.
type TargetInput struct {
	Lyrics     Lyrics
	Settings   CanvasSettings
	Mode       LayoutMode
	Dimensions Dimensions
	// Scale multiplies the settings' font sizes, e.g. 0.5 when a strategy
	// renders a full-resolution job at half size. Zero means 1.
	Scale   float64
	Measure MeasureFor
}

// RenderTarget is a detached, fully laid-out canvas. It is created per
// export attempt and must be released on every exit path.
type RenderTarget struct {
	Dimensions Dimensions  `json:"dimensions"`
	Mode       LayoutMode  `json:"mode"`
	Background string      `json:"background"`
	Padding    int         `json:"padding"`
	Sizes      Sizes       `json:"sizes"`
	Title      *TextBlock  `json:"title,omitempty"`
	Body       *TextBlock  `json:"body,omitempty"`
	Author     *TextBlock  `json:"author,omitempty"`
	Surface    *Surface    `json:"-"`
	released   bool
	mu         sync.Mutex
}

// BuildTarget lays lyrics out inside dims. The preview and every export
// strategy go through here, so they share padding, content box, font-size
// derivation and block placement.
func BuildTarget(in TargetInput) (*RenderTarget, error) {
	if in.Dimensions.Width <= 0 || in.Dimensions.Height <= 0 {
		return nil, fmt.Errorf("invalid target dimensions %s", in.Dimensions)
	}
	if in.Mode == "" {
		return nil, fmt.Errorf("render target needs a layout mode")
	}
	s := in.Settings
	scale := in.Scale
	if scale <= 0 {
		scale = 1
	}
	measure := in.Measure
	if measure == nil {
		measure = func(_ string, size float64, _ bool) MeasureFunc { return HeuristicMeasure(size) }
	}

	dims := in.Dimensions
	pad, cw, ch := ContentBox(dims)
	sizes := ResponsiveSizes(ResponsiveInput{
		Title:           in.Lyrics.Title,
		Body:            in.Lyrics.Body,
		ContainerWidth:  float64(cw),
		ContainerHeight: float64(ch),
		TitleSize:       s.TitleFontSize * scale,
		BodySize:        s.ContentFontSize * scale,
		LineSpacing:     s.LineSpacing,
		Mode:            in.Mode,
	})

	t := &RenderTarget{
		Dimensions: dims,
		Mode:       in.Mode,
		Background: s.BackgroundColor,
		Padding:    pad,
		Sizes:      sizes,
		Surface:    NewSurface(float64(dims.Width), float64(dims.Height), MarkerClass, ModeClass(in.Mode)),
	}

	if title := strings.TrimSpace(in.Lyrics.Title); title != "" {
		t.Title = &TextBlock{
			Lines:      Wrap(title, float64(cw), measure(s.TitleFontFamily, sizes.Title, true)),
			Family:     s.TitleFontFamily,
			Size:       sizes.Title,
			LineHeight: sizes.Title * titleLineHeight,
			Bold:       true,
			Color:      s.TextColor,
			Opacity:    1,
			Align:      s.TitleAlignment,
			AnchorX:    anchorX(s.TitleAlignment, dims.Width, pad),
		}
	}
	if strings.TrimSpace(in.Lyrics.Body) != "" {
		spacing := s.LineSpacing
		if spacing <= 0 {
			spacing = 1
		}
		t.Body = &TextBlock{
			Lines:      WrapPreserving(in.Lyrics.Body, float64(cw), measure(s.BodyFontFamily, sizes.Body, false)),
			Family:     s.BodyFontFamily,
			Size:       sizes.Body,
			LineHeight: sizes.Body * spacing,
			Color:      s.TextColor,
			Opacity:    1,
			Align:      s.ContentAlignment,
			AnchorX:    anchorX(s.ContentAlignment, dims.Width, pad),
		}
	}

	// Title and body form one vertically centred column with a padding-sized
	// gap between them.
	column := t.Title.Height() + t.Body.Height()
	if t.Title != nil && t.Body != nil {
		column += float64(pad)
	}
	top := float64(pad) + (float64(ch)-column)/2
	if top < float64(pad) {
		top = float64(pad)
	}
	if t.Title != nil {
		t.Title.Top = top
		top += t.Title.Height() + float64(pad)
	}
	if t.Body != nil {
		t.Body.Top = top
	}

	if author := strings.TrimSpace(in.Lyrics.Author); author != "" {
		size := sizes.Body * authorScale
		lh := size * titleLineHeight
		t.Author = &TextBlock{
			Lines:      []string{"- " + author},
			Family:     s.BodyFontFamily,
			Size:       size,
			LineHeight: lh,
			Color:      s.TextColor,
			Opacity:    authorOpacity,
			Align:      AlignRight,
			AnchorX:    float64(dims.Width - pad),
			Top:        float64(dims.Height-pad) - lh,
		}
	}
	return t, nil
}

func anchorX(a Alignment, width, pad int) float64 {
	switch a {
	case AlignLeft:
		return float64(pad)
	case AlignRight:
		return float64(width - pad)
	default:
		return float64(width) / 2
	}
}

// Blocks returns the present blocks in paint order.
func (t *RenderTarget) Blocks() []*TextBlock {
	var out []*TextBlock
	for _, b := range []*TextBlock{t.Title, t.Body, t.Author} {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Release drops the target's nodes. It is safe to call more than once.
func (t *RenderTarget) Release() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.Title, t.Body, t.Author = nil, nil, nil
	t.Surface = nil
}

// Released reports whether Release has run.
func (t *RenderTarget) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// ---- Snapshot document ----

var targetDocument = template.Must(template.New("target").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8">
{{range .Links}}<link rel="stylesheet" href="{{.}}">
{{end}}<style>
{{.FontFaces}}
html,body{margin:0;padding:0;background:transparent}
.{{.Marker}}{position:relative;overflow:hidden;box-sizing:border-box}
.line{position:absolute;margin:0;white-space:pre}
</style></head>
<body><div id="lyrics-canvas" class="{{.Classes}}" style="{{.Style}}">
{{range .Lines}}<div class="line" style="{{.Style}}">{{.Text}}</div>
{{end}}</div></body></html>
`))

type docLine struct {
	Style template.CSS
	Text  string
}

// HTML renders the target as a standalone document for the snapshot
// rasterizer. Every line is absolutely positioned from the same geometry the
// other renderers draw with.
func (t *RenderTarget) HTML(fonts FontSource) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return nil, fmt.Errorf("render target already released")
	}

	var links []string
	var faces strings.Builder
	seen := map[string]bool{}
	var lines []docLine
	for _, b := range []*TextBlock{t.Title, t.Body, t.Author} {
		if b == nil {
			continue
		}
		if fonts != nil && !seen[b.Family] {
			seen[b.Family] = true
			if res, ok := fonts.Resource(b.Family); ok {
				if len(res.Data) > 0 {
					u := dataurl.New(res.Data, res.MIMEType)
					fmt.Fprintf(&faces, "@font-face{font-family:'%s';src:url(%s) format('%s');}\n",
						cssName(res.Family), u.String(), res.Format)
				} else if res.SourceURL != "" {
					links = append(links, res.SourceURL)
				}
			}
		}
		for i, ln := range b.Lines {
			lines = append(lines, docLine{Style: lineStyle(t.Dimensions, b, i), Text: ln})
		}
	}

	var buf bytes.Buffer
	err := targetDocument.Execute(&buf, map[string]any{
		"Links":     links,
		"FontFaces": template.CSS(faces.String()),
		"Marker":    template.CSS(MarkerClass),
		"Classes":   strings.Join([]string{MarkerClass, ModeClass(t.Mode)}, " "),
		"Style": template.CSS(fmt.Sprintf("width:%dpx;height:%dpx;background:%s",
			t.Dimensions.Width, t.Dimensions.Height, cssColor(t.Background, color.RGBA{A: 0xFF}))),
		"Lines": lines,
	})
	if err != nil {
		return nil, fmt.Errorf("render snapshot document: %w", err)
	}
	return buf.Bytes(), nil
}

func lineStyle(dims Dimensions, b *TextBlock, i int) template.CSS {
	top := b.Top + float64(i)*b.LineHeight
	var pos string
	switch b.Align {
	case AlignLeft:
		pos = fmt.Sprintf("left:%.2fpx;text-align:left", b.AnchorX)
	case AlignRight:
		pos = fmt.Sprintf("right:%.2fpx;text-align:right", float64(dims.Width)-b.AnchorX)
	default:
		pos = fmt.Sprintf("left:%.2fpx;transform:translateX(-50%%);text-align:center", b.AnchorX)
	}
	weight := 400
	if b.Bold {
		weight = 700
	}
	return template.CSS(fmt.Sprintf(
		"%s;top:%.2fpx;height:%.2fpx;line-height:%.2fpx;font-size:%.2fpx;font-family:'%s',sans-serif;font-weight:%d;color:%s;opacity:%.2f",
		pos, top, b.LineHeight, b.LineHeight, b.Size, cssName(b.Family), weight,
		cssColor(b.Color, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}), b.Opacity))
}

// cssName strips characters that could end a quoted CSS string.
func cssName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '\\', ';', '{', '}', '<', '>':
			return -1
		}
		return r
	}, s)
}

// cssColor re-serializes a settings color so only validated values reach
// the stylesheet.
func cssColor(s string, fallback color.RGBA) string {
	c := mustColor(s, fallback)
	return fmt.Sprintf("rgba(%d,%d,%d,%.3f)", c.R, c.G, c.B, math.Round(float64(c.A)/255*1000)/1000)
}
