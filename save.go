package lyricscanvas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// ---- Saving ----

const (
	defaultFileStem = "lyrics-canvas"
	maxFileStem     = 50
	fileTimeLayout  = "20060102_1504"
)

// SanitizeFilename keeps ASCII letters, digits, underscores and Hangul
// syllables, turns whitespace runs into "_" and caps the result at 50
// runes. An empty result becomes "lyrics-canvas".
func SanitizeFilename(title string) string {
	var b strings.Builder
	space := false
	for _, r := range title {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'),
			r >= 0xAC00 && r <= 0xD7A3:
		default:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte('_')
		}
		space = false
		b.WriteRune(r)
	}
	out := []rune(b.String())
	if len(out) == 0 {
		return defaultFileStem
	}
	if len(out) > maxFileStem {
		out = out[:maxFileStem]
	}
	return string(out)
}

// FileName is "{sanitizedTitle}_{YYYYMMDD_HHMM}.{ext}".
func FileName(title string, f Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(title), now.Format(fileTimeLayout), f.Ext())
}

// Saver persists a named blob and reports where it went.
type Saver interface {
	Save(ctx context.Context, name string, blob Blob) (string, error)
}

// DirSaver writes into Dir through a temporary file and a rename so a
// partial image is never left under the final name.
type DirSaver struct {
	Dir string
}

func (s DirSaver) Save(ctx context.Context, name string, blob Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	final := filepath.Join(s.Dir, filepath.Base(name))
	tmp, err := os.CreateTemp(s.Dir, ".lyrics-*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob.Data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", err
	}
	return final, nil
}

// StreamSaver writes straight to a file in Dir, or to W when set.
type StreamSaver struct {
	Dir string
	W   io.Writer
}

func (s StreamSaver) Save(ctx context.Context, name string, blob Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.W != nil {
		if _, err := s.W.Write(blob.Data); err != nil {
			return "", err
		}
		return name, nil
	}
	final := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(final, blob.Data, 0o644); err != nil {
		return "", err
	}
	return final, nil
}

// FallbackSaver tries Primary and, when it fails, Secondary.
type FallbackSaver struct {
	Primary   Saver
	Secondary Saver
	Logger    *zap.Logger
}

func (s FallbackSaver) Save(ctx context.Context, name string, blob Blob) (string, error) {
	path, err := s.Primary.Save(ctx, name, blob)
	if err == nil {
		return path, nil
	}
	if s.Logger != nil {
		s.Logger.Warn("primary save failed, trying fallback", zap.String("file", name), zap.Error(err))
	}
	if s.Secondary == nil {
		return "", err
	}
	path, err2 := s.Secondary.Save(ctx, name, blob)
	if err2 != nil {
		return "", errors.Join(err, err2)
	}
	return path, nil
}

// NewDirSaver is the atomic saver backed by a direct write.
func NewDirSaver(dir string, logger *zap.Logger) Saver {
	return FallbackSaver{Primary: DirSaver{Dir: dir}, Secondary: StreamSaver{Dir: dir}, Logger: logger}
}

// SaveResult describes a saved export.
type SaveResult struct {
	Path        string
	Format      Format
	Strategy    string
	Dimensions  Dimensions
	Placeholder bool
}

// SaveImage exports, converts and saves. If the requested format fails end
// to end the whole cycle is retried as PNG and then JPEG. The file name is
// built from title, or from the current lyrics title when title is empty.
func (e *Exporter) SaveImage(ctx context.Context, title string, format Format, mode LayoutMode) (*SaveResult, error) {
	if e.saver == nil {
		return nil, &ConfigError{Op: "save", Err: errors.New("no saver configured")}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if title == "" && e.source != nil {
		title = e.source.ExportSnapshot(mode).Lyrics.Title
	}
	var attempts []error
	for _, f := range formatCycle(format) {
		res, err := e.saveOnce(ctx, title, f, mode)
		if err == nil {
			return res, nil
		}
		var cfg *ConfigError
		if errors.As(err, &cfg) {
			return nil, err
		}
		e.logger.Warn("save cycle failed", zap.String("format", string(f)), zap.Error(err))
		attempts = append(attempts, fmt.Errorf("%s: %w", f, err))
		if ctx.Err() != nil {
			break
		}
	}
	err := &ExportError{Op: "save image", Attempts: attempts, Hint: RemediationHint}
	e.logger.Error("save failed", zap.Error(err))
	return nil, err
}

func (e *Exporter) saveOnce(ctx context.Context, title string, f Format, mode LayoutMode) (*SaveResult, error) {
	enc, err := e.exportLocked(ctx, f, mode)
	if err != nil {
		return nil, err
	}
	blob := e.converter.Convert(ctx, enc.DataURL(), enc.Format)
	name := FileName(title, blob.Format(), e.now())
	path, err := e.saver.Save(ctx, name, blob)
	if err != nil {
		return nil, err
	}
	e.logger.Info("image saved",
		zap.String("path", path),
		zap.String("strategy", enc.Strategy),
		zap.String("technique", blob.Technique))
	return &SaveResult{
		Path:        path,
		Format:      blob.Format(),
		Strategy:    enc.Strategy,
		Dimensions:  enc.Dimensions,
		Placeholder: blob.Placeholder,
	}, nil
}

// formatCycle is requested, then PNG, then JPEG, without repeats.
func formatCycle(requested Format) []Format {
	out := []Format{requested}
	for _, f := range []Format{PNG, JPEG} {
		if f != requested {
			out = append(out, f)
		}
	}
	return out
}
