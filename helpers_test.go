package lyricscanvas

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStrategy records calls and fails on demand.
type fakeStrategy struct {
	name        string
	err         error
	panics      bool
	failFormats map[Format]bool
	calls       *[]string
	mu          *sync.Mutex

	inFlight    *int32
	maxInFlight *int32
	delay       time.Duration
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(_ context.Context, job *Job, format Format) (*Encoded, error) {
	if f.mu != nil {
		f.mu.Lock()
		*f.calls = append(*f.calls, f.name)
		f.mu.Unlock()
	} else if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	if f.inFlight != nil {
		n := atomic.AddInt32(f.inFlight, 1)
		defer atomic.AddInt32(f.inFlight, -1)
		for {
			m := atomic.LoadInt32(f.maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(f.maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("renderer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failFormats[format] {
		return nil, errors.New("cannot produce " + string(format))
	}
	dims := DirectDrawDimensions(job.ResolveMode())
	img := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, DefaultQuality); err != nil {
		return nil, err
	}
	return &Encoded{Format: format, Data: buf.Bytes(), Dimensions: dims}, nil
}

// newTestEditor returns an editor with content and a measured preview.
func newTestEditor(t *testing.T, title, body, author string) *Editor {
	t.Helper()
	ed := NewEditor(context.Background(), EditorConfig{
		Now: func() time.Time { return time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC) },
	})
	ed.SetLyrics(context.Background(), title, body, author)
	ed.Resize(360, 640)
	return ed
}

func decodeImage(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	return img
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }
