package lyricscanvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
)

// ---- Export chain ----

// RemediationHint is appended to terminal export and save failures.
const RemediationHint = "try another image format or a smaller image size"

// ErrNoCanvas means no live canvas surface was registered or found.
var ErrNoCanvas = errors.New("canvas surface not found")

// ConfigError is a caller-side problem. The chain does not retry it.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// ExportError is returned once every strategy or format has failed.
type ExportError struct {
	Op       string
	Attempts []error
	Hint     string
}

func (e *ExportError) Error() string {
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Hint, strings.Join(msgs, "; "))
}

func (e *ExportError) Unwrap() []error { return e.Attempts }

// Job is an immutable snapshot of what to render. Settings are in pixels of
// the full export resolution.
type Job struct {
	Lyrics   Lyrics
	Settings CanvasSettings
	// Mode is the caller's explicit choice; empty falls back to inspecting
	// Surface.
	Mode    LayoutMode
	Surface *Surface
}

// ResolveMode returns the explicit mode, else the mode read from the
// surface's classes, else portrait.
func (j *Job) ResolveMode() LayoutMode {
	if j.Mode != "" {
		return j.Mode
	}
	if m, ok := j.Surface.InspectMode(); ok {
		return m
	}
	return Portrait
}

// ExportDimensions is the full export size for mode: the settings' size when
// it has the right ratio, otherwise the canonical one.
func (j *Job) ExportDimensions(mode LayoutMode) Dimensions {
	d := j.Settings.Dimensions(mode)
	if d.Width > 0 && d.Height > 0 && IsAcceptable(d.Ratio(), mode) {
		return d
	}
	return DimensionsFor(mode)
}

// downscale is the factor from full export resolution down to dims.
func downscale(full, dims Dimensions) float64 {
	if full.Width <= 0 {
		return 1
	}
	return float64(dims.Width) / float64(full.Width)
}

type faceKey struct {
	family string
	size   float64
	bold   bool
}

// measureWith measures with real faces when a font source is present. The
// returned MeasureFor keeps its own faces and belongs to one layout pass.
func measureWith(fonts FontSource) MeasureFor {
	if fonts == nil {
		return nil
	}
	faces := map[faceKey]font.Face{}
	return func(family string, size float64, bold bool) MeasureFunc {
		k := faceKey{family: strings.ToLower(family), size: size, bold: bold}
		face, ok := faces[k]
		if !ok {
			face = fonts.Face(family, size, bold)
			faces[k] = face
		}
		return FaceMeasure(face)
	}
}

// buildTarget is BuildTarget; strategies call it through this variable.
var buildTarget = BuildTarget

// Strategy is one rendering back-end. Attempt builds its own target,
// releases it on every path and returns encoded bytes.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, job *Job, format Format) (*Encoded, error)
}

// ExportSnapshot is what a Source hands the exporter.
type ExportSnapshot struct {
	Lyrics   Lyrics
	Settings CanvasSettings
	Mode     LayoutMode
}

// Source supplies the current lyrics and settings scaled for an export in
// mode. An empty mode means the source's own mode.
type Source interface {
	ExportSnapshot(mode LayoutMode) ExportSnapshot
}

// SurfaceLocator finds mounted canvas surfaces by class.
type SurfaceLocator interface {
	QuerySurfaces(class string) []*Surface
}

// ExporterConfig wires an Exporter. Strategies defaults to
// DefaultStrategies(Fonts, ChromePath, Logger).
type ExporterConfig struct {
	Strategies []Strategy
	Fonts      FontSource
	ChromePath string
	Source     Source
	Locator    SurfaceLocator
	Converter  *BlobConverter
	Saver      Saver
	Sharer     Sharer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Exporter runs the strategy chain and the save cycle. At most one export
// is in flight at a time.
type Exporter struct {
	mu         sync.Mutex
	surfaceMu  sync.Mutex
	surface    *Surface
	strategies []Strategy
	source     Source
	locator    SurfaceLocator
	converter  *BlobConverter
	saver      Saver
	sharer     Sharer
	logger     *zap.Logger
	now        func() time.Time
}

func NewExporter(cfg ExporterConfig) *Exporter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies(cfg.Fonts, cfg.ChromePath, logger)
	}
	converter := cfg.Converter
	if converter == nil {
		converter = NewBlobConverter(logger)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		strategies: strategies,
		source:     cfg.Source,
		locator:    cfg.Locator,
		converter:  converter,
		saver:      cfg.Saver,
		sharer:     cfg.Sharer,
		logger:     logger,
		now:        now,
	}
}

// DefaultStrategies is the fixed snapshot, direct draw, minimal order.
func DefaultStrategies(fonts FontSource, chromePath string, logger *zap.Logger) []Strategy {
	return []Strategy{
		NewSnapshotStrategy(SnapshotConfig{ExecPath: chromePath, Fonts: fonts, Logger: logger}),
		NewDirectDrawStrategy(fonts, logger),
		NewMinimalStrategy(fonts, logger),
	}
}

// SetCanvasRef registers the live canvas surface.
func (e *Exporter) SetCanvasRef(s *Surface) {
	e.surfaceMu.Lock()
	e.surface = s
	e.surfaceMu.Unlock()
}

// HasValidCanvasRef reports whether a marked canvas surface is registered.
func (e *Exporter) HasValidCanvasRef() bool {
	e.surfaceMu.Lock()
	defer e.surfaceMu.Unlock()
	return e.surface.HasClass(MarkerClass)
}

// canvasRef returns the registered surface or recovers one through the
// locator.
func (e *Exporter) canvasRef() (*Surface, error) {
	if e.HasValidCanvasRef() {
		e.surfaceMu.Lock()
		defer e.surfaceMu.Unlock()
		return e.surface, nil
	}
	if e.locator != nil {
		for _, s := range e.locator.QuerySurfaces(MarkerClass) {
			if s.HasClass(MarkerClass) {
				e.logger.Info("recovered canvas surface by marker class")
				e.SetCanvasRef(s)
				return s, nil
			}
		}
	}
	return nil, &ConfigError{Op: "export", Err: ErrNoCanvas}
}

// ExportAsImage renders the current content with the first strategy that
// succeeds. mode may be empty, in which case each strategy inspects the
// canvas surface.
func (e *Exporter) ExportAsImage(ctx context.Context, format Format, mode LayoutMode) (*Encoded, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exportLocked(ctx, format, mode)
}

func (e *Exporter) exportLocked(ctx context.Context, format Format, mode LayoutMode) (*Encoded, error) {
	surface, err := e.canvasRef()
	if err != nil {
		e.logger.Error("export precondition failed", zap.Error(err))
		return nil, err
	}
	if e.source == nil {
		return nil, &ConfigError{Op: "export", Err: errors.New("no content source")}
	}
	snap := e.source.ExportSnapshot(mode)
	if mode == "" {
		mode = snap.Mode
	}
	job := &Job{Lyrics: snap.Lyrics.Snapshot(), Settings: snap.Settings, Mode: mode, Surface: surface}
	return e.run(ctx, job, format)
}

// Render runs the chain for a job built by the caller, such as an API
// request. No canvas surface is required because the job names its mode.
func (e *Exporter) Render(ctx context.Context, job *Job, format Format) (*Encoded, error) {
	if job == nil {
		return nil, &ConfigError{Op: "render", Err: errors.New("nil job")}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(ctx, job, format)
}

// run is the one generic fallback loop over the strategies.
func (e *Exporter) run(ctx context.Context, job *Job, format Format) (*Encoded, error) {
	var attempts []error
	for i, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, err)
			break
		}
		start := time.Now()
		enc, err := attempt(ctx, s, job, format)
		if err != nil {
			e.logger.Warn("export strategy failed",
				zap.Int("step", i+1),
				zap.String("strategy", s.Name()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			attempts = append(attempts, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		enc.Strategy = s.Name()
		e.logger.Info("export succeeded",
			zap.String("strategy", s.Name()),
			zap.String("format", string(enc.Format)),
			zap.Stringer("dimensions", enc.Dimensions),
			zap.Int("bytes", len(enc.Data)))
		return enc, nil
	}
	err := &ExportError{Op: "export", Attempts: attempts, Hint: RemediationHint}
	e.logger.Error("all export strategies failed", zap.Error(err))
	return nil, err
}

// attempt turns a panicking strategy into an ordinary failure.
func attempt(ctx context.Context, s Strategy, job *Job, format Format) (enc *Encoded, err error) {
	defer func() {
		if r := recover(); r != nil {
			enc, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	enc, err = s.Attempt(ctx, job, format)
	if err == nil && (enc == nil || len(enc.Data) == 0) {
		err = errors.New("strategy returned no image")
	}
	return enc, err
}
