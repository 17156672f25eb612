package lyricscanvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

// ---- Strategy 1: snapshot rasterizer ----

// SnapshotConfig configures the headless browser snapshot.
type SnapshotConfig struct {
	// ExecPath is the Chrome binary; empty lets chromedp search the usual
	// locations.
	ExecPath   string
	Fonts      FontSource
	Logger     *zap.Logger
	Timeout    time.Duration
	PixelRatio float64
}

// SnapshotStrategy renders the target document in headless Chrome at a
// higher pixel density and scales the screenshot down to the export size.
type SnapshotStrategy struct {
	cfg SnapshotConfig
}

func NewSnapshotStrategy(cfg SnapshotConfig) *SnapshotStrategy {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PixelRatio <= 0 {
		cfg.PixelRatio = 2
	}
	return &SnapshotStrategy{cfg: cfg}
}

func (s *SnapshotStrategy) Name() string { return "snapshot" }

func (s *SnapshotStrategy) Attempt(ctx context.Context, job *Job, format Format) (*Encoded, error) {
	mode := job.ResolveMode()
	dims := job.ExportDimensions(mode)

	target, err := buildTarget(TargetInput{
		Lyrics:     job.Lyrics,
		Settings:   job.Settings,
		Mode:       mode,
		Dimensions: dims,
		Measure:    measureWith(s.cfg.Fonts),
	})
	if err != nil {
		return nil, err
	}
	defer target.Release()

	doc, err := target.HTML(s.cfg.Fonts)
	if err != nil {
		return nil, err
	}
	shot, err := s.capture(ctx, doc, dims)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return encodeImage(resample(img, dims), format, s.cfg.Logger)
}

func (s *SnapshotStrategy) capture(ctx context.Context, doc []byte, dims Dimensions) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.WindowSize(dims.Width, dims.Height),
	)
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	page := dataurl.New(doc, "text/html", "charset", "utf-8").String()
	var shot []byte
	err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(int64(dims.Width), int64(dims.Height), chromedp.EmulateScale(s.cfg.PixelRatio)),
		chromedp.Navigate(page),
		chromedp.WaitVisible("#lyrics-canvas", chromedp.ByID),
		chromedp.Screenshot("#lyrics-canvas", &shot, chromedp.ByID),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp: %w", err)
	}
	if len(shot) == 0 {
		return nil, errors.New("chromedp: empty screenshot")
	}
	s.cfg.Logger.Debug("snapshot captured", zap.Int("bytes", len(shot)), zap.Stringer("dimensions", dims))
	return shot, nil
}

// resample scales img to exactly dims.
func resample(img image.Image, dims Dimensions) image.Image {
	b := img.Bounds()
	if b.Dx() == dims.Width && b.Dy() == dims.Height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
