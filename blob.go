package lyricscanvas

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"
)

// ---- Blob pipeline ----

// Blob is a savable binary image.
type Blob struct {
	MIMEType string
	Data     []byte
	// Technique names the conversion that produced Data.
	Technique string
	// Placeholder is set when every conversion failed and Data is the
	// stand-in image.
	Placeholder bool
}

// Format maps the blob's MIME type back to a Format, defaulting to PNG.
func (b Blob) Format() Format {
	if f, ok := FormatFromMIME(b.MIMEType); ok {
		return f
	}
	return PNG
}

var placeholderPNG = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// PlaceholderBlob is the 10x10 white PNG used when conversion fails.
func PlaceholderBlob() Blob {
	return Blob{MIMEType: "image/png", Data: append([]byte(nil), placeholderPNG...), Technique: "placeholder", Placeholder: true}
}

type conversion struct {
	name string
	fn   func(ctx context.Context, src string, format Format) (Blob, error)
}

// BlobConverter turns data URLs into blobs. It tries a fetch through an
// http.Client that understands data: URLs, a manual base64 decode and an
// image decode-and-re-encode, in that order.
type BlobConverter struct {
	client *http.Client
	logger *zap.Logger
	steps  []conversion
}

func NewBlobConverter(logger *zap.Logger) *BlobConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &http.Transport{}
	t.RegisterProtocol("data", dataTransport{})
	c := &BlobConverter{
		client: &http.Client{Transport: t, Timeout: 15 * time.Second},
		logger: logger,
	}
	c.steps = []conversion{
		{"fetch", c.fetch},
		{"base64", c.manualDecode},
		{"redraw", c.redraw},
	}
	return c
}

// Convert never fails: if every technique does, the placeholder is
// returned.
func (c *BlobConverter) Convert(ctx context.Context, src string, format Format) Blob {
	for _, step := range c.steps {
		b, err := step.fn(ctx, src, format)
		if err == nil {
			b.Technique = step.name
			return b
		}
		c.logger.Warn("blob conversion failed", zap.String("technique", step.name), zap.Error(err))
	}
	c.logger.Error("all blob conversions failed, using placeholder")
	return PlaceholderBlob()
}

func (c *BlobConverter) fetch(ctx context.Context, src string, _ Format) (Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return Blob{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Blob{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Blob{}, fmt.Errorf("fetch: status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Blob{}, err
	}
	return checkedBlob(resp.Header.Get("Content-Type"), data)
}

// manualDecode splits the header off by hand and repairs missing base64
// padding before decoding.
func (c *BlobConverter) manualDecode(_ context.Context, src string, _ Format) (Blob, error) {
	mime, payload, err := splitDataURL(src)
	if err != nil {
		return Blob{}, err
	}
	data, err := base64.StdEncoding.DecodeString(repairPadding(payload))
	if err != nil {
		return Blob{}, fmt.Errorf("base64: %w", err)
	}
	return checkedBlob(mime, data)
}

// redraw decodes whatever bytes it can recover and re-encodes them as
// format.
func (c *BlobConverter) redraw(_ context.Context, src string, format Format) (Blob, error) {
	_, payload, err := splitDataURL(src)
	if err != nil {
		return Blob{}, err
	}
	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	var data []byte
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if data, err = enc.DecodeString(payload); err == nil {
			break
		}
	}
	if err != nil {
		return Blob{}, fmt.Errorf("base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Blob{}, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, DefaultQuality); err != nil {
		return Blob{}, err
	}
	return Blob{MIMEType: format.MIMEType(), Data: buf.Bytes()}, nil
}

// checkedBlob accepts data only if it is a decodable image.
func checkedBlob(mime string, data []byte) (Blob, error) {
	if len(data) == 0 {
		return Blob{}, errors.New("empty payload")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return Blob{}, fmt.Errorf("payload is not an image: %w", err)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return Blob{MIMEType: strings.TrimSpace(mime), Data: data}, nil
}

func splitDataURL(src string) (mime, payload string, err error) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return "", "", errors.New("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", errors.New("data URL has no payload")
	}
	if !strings.HasSuffix(header, ";base64") {
		return "", "", errors.New("data URL is not base64")
	}
	mime = strings.TrimSuffix(header, ";base64")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mime, payload, nil
}

func repairPadding(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if r := len(s) % 4; r != 0 {
		s += strings.Repeat("=", 4-r)
	}
	return s
}

// dataTransport serves data: URLs to an http.Client.
type dataTransport struct{}

func (dataTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	du, err := dataurl.DecodeString(req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("parse data URL: %w", err)
	}
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {du.MediaType.ContentType()}},
		Body:          io.NopCloser(bytes.NewReader(du.Data)),
		ContentLength: int64(len(du.Data)),
		Request:       req,
	}, nil
}
