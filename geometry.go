package lyricscanvas

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// LayoutMode selects the target aspect ratio of the canvas.
type LayoutMode string

const (
	Portrait  LayoutMode = "portrait"  // 9:16
	Landscape LayoutMode = "landscape" // 16:9
)

// RatioTolerance is the absolute band inside which a measured ratio counts
// as matching the mode.
const RatioTolerance = 0.01

// Dimensions is a pixel size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Ratio returns width / height, or 0 for a degenerate size.
func (d Dimensions) Ratio() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

func (d Dimensions) String() string { return fmt.Sprintf("%dx%d", d.Width, d.Height) }

// ParseLayoutMode accepts "portrait"/"landscape" (and a few short forms).
// The empty string yields the empty mode, which means "not specified".
func ParseLayoutMode(s string) (LayoutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "portrait", "p", "9:16", "vertical":
		return Portrait, nil
	case "landscape", "l", "16:9", "horizontal":
		return Landscape, nil
	default:
		return "", errors.New("unknown layout mode: " + s)
	}
}

// DimensionsFor returns the canonical export resolution for a mode. It does
// not depend on the size of any on-screen preview.
func DimensionsFor(mode LayoutMode) Dimensions {
	if mode == Landscape {
		return Dimensions{Width: 1920, Height: 1080}
	}
	return Dimensions{Width: 1080, Height: 1920}
}

// DirectDrawDimensions is the reduced surface used when the snapshot
// rasterizer is unavailable.
func DirectDrawDimensions(mode LayoutMode) Dimensions {
	if mode == Landscape {
		return Dimensions{Width: 960, Height: 540}
	}
	return Dimensions{Width: 540, Height: 960}
}

// MinimalDimensions is the small fixed surface of the last-resort renderer.
func MinimalDimensions(mode LayoutMode) Dimensions {
	if mode == Landscape {
		return Dimensions{Width: 711, Height: 400}
	}
	return Dimensions{Width: 400, Height: 711}
}

// ExpectedRatio is width/height for the mode.
func ExpectedRatio(mode LayoutMode) float64 {
	if mode == Landscape {
		return 16.0 / 9.0
	}
	return 9.0 / 16.0
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ExactRatio reduces width:height by their greatest common divisor, e.g.
// 1080x1920 -> "9:16". Fractional inputs are rounded first. Diagnostics only.
func ExactRatio(width, height float64) string {
	w := int(math.Round(width))
	h := int(math.Round(height))
	g := gcd(w, h)
	if g == 0 {
		return "0:0"
	}
	return fmt.Sprintf("%d:%d", w/g, h/g)
}

// RatioError is the relative difference between actual and expected, in
// percent of expected.
func RatioError(actual, expected float64) float64 {
	if expected == 0 {
		return math.Inf(1)
	}
	return math.Abs(actual-expected) / expected * 100
}

// IsAcceptable reports whether the absolute difference between actual and
// the mode's expected ratio is under RatioTolerance.
func IsAcceptable(actual float64, mode LayoutMode) bool {
	return math.Abs(actual-ExpectedRatio(mode)) < RatioTolerance
}

// ContentBox returns the padded area inside dims. Preview, target builder
// and every export strategy read the box from here so their layouts agree.
func ContentBox(dims Dimensions) (padding, width, height int) {
	short := dims.Width
	if dims.Height < short {
		short = dims.Height
	}
	padding = int(math.Round(float64(short) * 0.05))
	width = dims.Width - 2*padding
	height = dims.Height - 2*padding
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return padding, width, height
}
