package lyricscanvas

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Share of the content box the body block and the title line may occupy.
const (
	bodyHeightShare = 0.7
	titleWidthShare = 0.8
	// titleCharWidth is the coarser per-glyph estimate used for the title.
	titleCharWidth = 0.5
	// shortTrailingLine is the length at or below which a wrapped title's
	// last line is considered a dangling fragment.
	shortTrailingLine = 3
)

// ResponsiveInput is everything the font-size estimator looks at.
type ResponsiveInput struct {
	Title           string
	Body            string
	ContainerWidth  float64
	ContainerHeight float64
	TitleSize       float64 // user-chosen, treated as an upper bound
	BodySize        float64 // user-chosen, treated as an upper bound
	LineSpacing     float64
	Mode            LayoutMode
}

// Sizes holds rendered font sizes in pixels.
type Sizes struct {
	Title float64 `json:"title"`
	Body  float64 `json:"body"`
}

// MinimumSizes are the legibility floors for a mode.
func MinimumSizes(mode LayoutMode) Sizes {
	if mode == Landscape {
		return Sizes{Title: 32, Body: 20}
	}
	return Sizes{Title: 24, Body: 16}
}

// ResponsiveSizes shrinks the user's title and body sizes until the content
// fits the container. It never returns a size above the user's, and it is a
// pure function of its input so preview and export derive the same numbers.
func ResponsiveSizes(in ResponsiveInput) Sizes {
	spacing := in.LineSpacing
	if spacing <= 0 {
		spacing = 1
	}

	body := in.BodySize
	if n := float64(countLines(in.Body)); n > 0 && in.ContainerHeight > 0 {
		limit := bodyHeightShare * in.ContainerHeight
		if n*body*spacing > limit {
			body = math.Floor(limit / (n * spacing))
		}
	}

	title := in.TitleSize
	trimmed := strings.TrimSpace(in.Title)
	if runes := float64(utf8.RuneCountInString(trimmed)); runes > 0 && in.ContainerWidth > 0 {
		budget := titleWidthShare * in.ContainerWidth
		if runes*titleCharWidth*title > budget {
			title = math.Floor(budget / (runes * titleCharWidth))
		}
		title = fitTitleLine(trimmed, title, budget, in.Mode)
	}

	title = math.Min(title, in.TitleSize)
	body = math.Min(body, in.BodySize)

	floor := MinimumSizes(in.Mode)
	return Sizes{
		Title: clampToFloor(title, floor.Title, in.TitleSize),
		Body:  clampToFloor(body, floor.Body, in.BodySize),
	}
}

// ExportScaledSizes scales the user sizes by exportWidth/onscreenWidth before
// deriving, so an export at a higher resolution keeps the preview's
// proportions.
func ExportScaledSizes(in ResponsiveInput, exportWidth, onscreenWidth float64) Sizes {
	scale := ExportScale(exportWidth, onscreenWidth)
	in.TitleSize *= scale
	in.BodySize *= scale
	return ResponsiveSizes(in)
}

// ExportScale is exportWidth/onscreenWidth, or 1 when there is no on-screen
// measurement yet.
func ExportScale(exportWidth, onscreenWidth float64) float64 {
	if onscreenWidth <= 0 || exportWidth <= 0 {
		return 1
	}
	return exportWidth / onscreenWidth
}

// fitTitleLine steps the title size down while the simulated wrap still
// breaks it. Portrait shrinks on any wrap; landscape only when the wrap
// leaves a short dangling last line.
func fitTitleLine(title string, size, budget float64, mode LayoutMode) float64 {
	floor := MinimumSizes(mode).Title
	for size > floor {
		lines := Wrap(title, budget, HeuristicMeasure(size))
		if len(lines) <= 1 {
			break
		}
		last := lines[len(lines)-1]
		if mode != Portrait && utf8.RuneCountInString(last) > shortTrailingLine {
			break
		}
		size--
	}
	return size
}

// clampToFloor raises v to floor, except that the floor itself is capped by
// the user's size.
func clampToFloor(v, floor, user float64) float64 {
	if floor > user {
		floor = user
	}
	if v < floor {
		return floor
	}
	return v
}
