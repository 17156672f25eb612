package lyricscanvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Alignment is the horizontal placement of a text block.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Valid reports whether a is one of left/center/right.
func (a Alignment) Valid() bool {
	return a == AlignLeft || a == AlignCenter || a == AlignRight
}

// SettingsVersion is the version written by MigrateSettings. Version 1 (or a
// missing version) is the legacy single fontFamily/fontSize record.
const SettingsVersion = 2

const (
	MinZoom = 0.5
	MaxZoom = 2.0
	// legacyTitleScale derives a title size from a legacy single font size.
	legacyTitleScale = 1.5
)

// CanvasSettings holds the user's typography and color choices. Sizes are
// CSS pixels at the on-screen preview scale.
type CanvasSettings struct {
	Version             int        `json:"version"`
	BackgroundColor     string     `json:"backgroundColor"`
	TextColor           string     `json:"textColor"`
	TitleFontFamily     string     `json:"titleFontFamily"`
	BodyFontFamily      string     `json:"bodyFontFamily"`
	TitleFontSize       float64    `json:"titleFontSize"`
	ContentFontSize     float64    `json:"contentFontSize"`
	LineSpacing         float64    `json:"lineSpacing"`
	TitleAlignment      Alignment  `json:"titleAlignment"`
	ContentAlignment    Alignment  `json:"contentAlignment"`
	Zoom                float64    `json:"zoom"`
	PortraitDimensions  Dimensions `json:"portraitDimensions"`
	LandscapeDimensions Dimensions `json:"landscapeDimensions"`
}

// DefaultSettings is white text on black, Noto Sans KR, 48/32px, centered.
func DefaultSettings() CanvasSettings {
	return CanvasSettings{
		Version:             SettingsVersion,
		BackgroundColor:     "#000000",
		TextColor:           "#ffffff",
		TitleFontFamily:     "Noto Sans KR",
		BodyFontFamily:      "Noto Sans KR",
		TitleFontSize:       48,
		ContentFontSize:     32,
		LineSpacing:         1.6,
		TitleAlignment:      AlignCenter,
		ContentAlignment:    AlignCenter,
		Zoom:                1,
		PortraitDimensions:  DimensionsFor(Portrait),
		LandscapeDimensions: DimensionsFor(Landscape),
	}
}

// Dimensions returns the configured surface size for mode.
func (s CanvasSettings) Dimensions(mode LayoutMode) Dimensions {
	if mode == Landscape {
		return s.LandscapeDimensions
	}
	return s.PortraitDimensions
}

// Validate checks the invariants every renderer relies on.
func (s CanvasSettings) Validate() error {
	var errs []error
	if s.TitleFontSize <= 0 {
		errs = append(errs, fmt.Errorf("titleFontSize must be > 0, got %g", s.TitleFontSize))
	}
	if s.ContentFontSize <= 0 {
		errs = append(errs, fmt.Errorf("contentFontSize must be > 0, got %g", s.ContentFontSize))
	}
	if s.LineSpacing <= 0 {
		errs = append(errs, fmt.Errorf("lineSpacing must be > 0, got %g", s.LineSpacing))
	}
	if s.Zoom < MinZoom || s.Zoom > MaxZoom {
		errs = append(errs, fmt.Errorf("zoom must be within [%g, %g], got %g", MinZoom, MaxZoom, s.Zoom))
	}
	if !s.TitleAlignment.Valid() {
		errs = append(errs, fmt.Errorf("invalid titleAlignment %q", s.TitleAlignment))
	}
	if !s.ContentAlignment.Valid() {
		errs = append(errs, fmt.Errorf("invalid contentAlignment %q", s.ContentAlignment))
	}
	if _, err := ParseColor(s.BackgroundColor); err != nil {
		errs = append(errs, fmt.Errorf("backgroundColor: %w", err))
	}
	if _, err := ParseColor(s.TextColor); err != nil {
		errs = append(errs, fmt.Errorf("textColor: %w", err))
	}
	return errors.Join(errs...)
}

// settingsRecord is the on-disk shape across versions. Pointers distinguish
// "absent" from zero.
type settingsRecord struct {
	Version             *int        `json:"version"`
	BackgroundColor     *string     `json:"backgroundColor"`
	TextColor           *string     `json:"textColor"`
	FontFamily          *string     `json:"fontFamily"`
	FontSize            *float64    `json:"fontSize"`
	TitleFontFamily     *string     `json:"titleFontFamily"`
	BodyFontFamily      *string     `json:"bodyFontFamily"`
	TitleFontSize       *float64    `json:"titleFontSize"`
	ContentFontSize     *float64    `json:"contentFontSize"`
	LineSpacing         *float64    `json:"lineSpacing"`
	TitleAlignment      *Alignment  `json:"titleAlignment"`
	ContentAlignment    *Alignment  `json:"contentAlignment"`
	TextAlignment       *Alignment  `json:"textAlignment"`
	Zoom                *float64    `json:"zoom"`
	PortraitDimensions  *Dimensions `json:"portraitDimensions"`
	LandscapeDimensions *Dimensions `json:"landscapeDimensions"`
}

// MigrateSettings turns a stored settings blob of any version into the
// canonical record. A legacy fontSize seeds contentFontSize and a title 1.5×
// larger, and a legacy fontFamily seeds both families, unless the split
// fields are present. Missing fields take defaults; zoom is clamped.
func MigrateSettings(data []byte) (CanvasSettings, error) {
	var rec settingsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return CanvasSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return rec.migrate(), nil
}

func (rec settingsRecord) migrate() CanvasSettings {
	s := DefaultSettings()
	setString(&s.BackgroundColor, rec.BackgroundColor)
	setString(&s.TextColor, rec.TextColor)

	if rec.FontFamily != nil && *rec.FontFamily != "" {
		s.TitleFontFamily = *rec.FontFamily
		s.BodyFontFamily = *rec.FontFamily
	}
	setString(&s.TitleFontFamily, rec.TitleFontFamily)
	setString(&s.BodyFontFamily, rec.BodyFontFamily)

	if rec.FontSize != nil && *rec.FontSize > 0 {
		s.ContentFontSize = *rec.FontSize
		s.TitleFontSize = *rec.FontSize * legacyTitleScale
	}
	setPositive(&s.TitleFontSize, rec.TitleFontSize)
	setPositive(&s.ContentFontSize, rec.ContentFontSize)
	setPositive(&s.LineSpacing, rec.LineSpacing)

	if rec.TextAlignment != nil && rec.TextAlignment.Valid() {
		s.ContentAlignment = *rec.TextAlignment
	}
	if rec.TitleAlignment != nil && rec.TitleAlignment.Valid() {
		s.TitleAlignment = *rec.TitleAlignment
	}
	if rec.ContentAlignment != nil && rec.ContentAlignment.Valid() {
		s.ContentAlignment = *rec.ContentAlignment
	}

	if rec.Zoom != nil && *rec.Zoom > 0 {
		s.Zoom = ClampZoom(*rec.Zoom)
	}
	if rec.PortraitDimensions != nil && rec.PortraitDimensions.Width > 0 && rec.PortraitDimensions.Height > 0 {
		s.PortraitDimensions = *rec.PortraitDimensions
	}
	if rec.LandscapeDimensions != nil && rec.LandscapeDimensions.Width > 0 && rec.LandscapeDimensions.Height > 0 {
		s.LandscapeDimensions = *rec.LandscapeDimensions
	}
	s.Version = SettingsVersion
	return s
}

// ClampZoom bounds z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setPositive(dst *float64, v *float64) {
	if v != nil && *v > 0 {
		*dst = *v
	}
}

// ParseColor reads #rgb, #rrggbb or #rrggbbaa, plus "black"/"white".
func ParseColor(s string) (color.RGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "black":
		return color.RGBA{0, 0, 0, 0xFF}, nil
	case "white":
		return color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, nil
	}
	if !strings.HasPrefix(v, "#") {
		return color.RGBA{}, fmt.Errorf("unsupported color %q", s)
	}
	hex := v[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("unsupported color %q", s)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unsupported color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

// mustColor parses s or returns fallback.
func mustColor(s string, fallback color.RGBA) color.RGBA {
	c, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return c
}
