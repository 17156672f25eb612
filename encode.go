package lyricscanvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// ---- Image formats ----

// Format is an output image encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
)

// DefaultQuality is the lossy encoder quality, 0-100.
const DefaultQuality = 90

// ParseFormat accepts a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "png", "":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	default:
		return "", errors.New("unknown image format: " + s)
	}
}

// MIMEType is the media type written for f.
func (f Format) MIMEType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Ext is the file extension, without a dot.
func (f Format) Ext() string {
	if f == "" {
		return string(PNG)
	}
	return string(f)
}

// FormatFromMIME maps a media type back to a Format.
func FormatFromMIME(mime string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return PNG, true
	case "image/jpeg", "image/jpg":
		return JPEG, true
	case "image/webp":
		return WebP, true
	}
	return "", false
}

// Encode writes img as f. WebP output is lossless so quality only affects
// JPEG.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	switch f {
	case PNG, "":
		return png.Encode(w, img)
	case JPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case WebP:
		return nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("cannot encode format %q", f)
	}
}

// Encoded is an export result: the bytes, what they are, and which
// strategy produced them.
type Encoded struct {
	Format     Format
	Data       []byte
	Dimensions Dimensions
	Strategy   string
}

// MIMEType of the encoded bytes.
func (e *Encoded) MIMEType() string { return e.Format.MIMEType() }

// DataURL is the base64 data URL of the image.
func (e *Encoded) DataURL() string {
	return dataurl.New(e.Data, e.Format.MIMEType()).String()
}

// encodeImage encodes as the requested format and retries as PNG when that
// fails.
func encodeImage(img image.Image, f Format, logger *zap.Logger) (*Encoded, error) {
	var buf bytes.Buffer
	err := Encode(&buf, img, f, DefaultQuality)
	if err == nil {
		return &Encoded{Format: f, Data: buf.Bytes(), Dimensions: boundsDims(img)}, nil
	}
	if f == PNG {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	logger.Warn("encode failed, retrying as png", zap.String("format", string(f)), zap.Error(err))
	buf.Reset()
	if perr := png.Encode(&buf, img); perr != nil {
		return nil, fmt.Errorf("encode %s: %w; png fallback: %v", f, err, perr)
	}
	return &Encoded{Format: PNG, Data: buf.Bytes(), Dimensions: boundsDims(img)}, nil
}

func boundsDims(img image.Image) Dimensions {
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}
}
