package lyricscanvas

import (
	"image"
	"image/color"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
)

// MeasureFunc returns the rendered width of s in pixels.
type MeasureFunc func(s string) float64

// heuristicCharWidth is the average advance of a glyph relative to the font
// size when no real face is available.
const heuristicCharWidth = 0.6

// HeuristicMeasure approximates width as runes × size × 0.6.
func HeuristicMeasure(size float64) MeasureFunc {
	return func(s string) float64 {
		return float64(utf8.RuneCountInString(s)) * size * heuristicCharWidth
	}
}

// FaceMeasure measures with exact glyph advances from face.
func FaceMeasure(face font.Face) MeasureFunc {
	return func(s string) float64 {
		if face == nil || s == "" {
			return 0
		}
		// font.Drawer only needs the face to measure; Dst stays nil.
		d := font.Drawer{Face: face, Src: image.NewUniform(color.Black)}
		return float64(d.MeasureString(s).Round())
	}
}

// Wrap breaks text into lines narrower than maxWidth. Words are accumulated
// while measure(line+" "+word) < maxWidth; a word that is wider than
// maxWidth on its own still gets a line of its own. Runs of whitespace
// (including newlines) collapse to single spaces.
func Wrap(text string, maxWidth float64, measure MeasureFunc) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if measure == nil {
		measure = HeuristicMeasure(16)
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if measure(candidate) < maxWidth {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
	}
	return append(lines, line)
}

// WrapPreserving keeps explicit newlines as hard breaks and only subdivides
// lines that are too wide. Blank source lines survive as empty lines.
func WrapPreserving(text string, maxWidth float64, measure MeasureFunc) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, src := range strings.Split(text, "\n") {
		wrapped := Wrap(src, maxWidth, measure)
		if len(wrapped) == 0 {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, wrapped...)
	}
	return lines
}

// countLines is the number of hard lines in s; 0 for an empty string.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.ReplaceAll(s, "\r\n", "\n"), "\n") + 1
}
