package lyricscanvas

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/arran4/lyricscanvas/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

func TestDefaultFonts(t *testing.T) {
	r := NewFontRegistry(context.Background(), nil, nil, WithFontDirs())
	fonts := r.List()
	if len(fonts) != 3 {
		t.Fatalf("expected the three built-in fonts, got %d", len(fonts))
	}
	for _, f := range fonts {
		if f.IsCustom || f.SourceURL == "" || !f.Usable() {
			t.Fatalf("unexpected built-in %+v", f)
		}
	}
	res, ok := r.Resource("noto sans kr")
	if !ok || res.SourceURL == "" || len(res.Data) != 0 {
		t.Fatalf("got %+v %v", res, ok)
	}
	if tf := r.Typeface("Noto Sans KR", true); tf.Family != "Go Bold" {
		t.Fatalf("without installed fonts built-in families use the bundled font, got %q", tf.Family)
	}
}

func TestAddCustomFontRejectsUnknownExtension(t *testing.T) {
	r := NewFontRegistry(context.Background(), nil, nil)
	_, err := r.AddCustomFont(context.Background(), goregular.TTF, "font.exe")
	if !errors.Is(err, ErrUnsupportedFont) {
		t.Fatalf("got %v", err)
	}
	if _, err := r.AddCustomFont(context.Background(), nil, "empty.ttf"); !errors.Is(err, ErrUnsupportedFont) {
		t.Fatalf("got %v", err)
	}
	if len(r.List()) != 3 {
		t.Fatalf("rejected upload was registered")
	}
}

func TestCustomFontLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewFontRegistry(ctx, mem, nil)

	f, err := r.AddCustomFont(ctx, goregular.TTF, "uploads/MyFont.ttf")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if f.Name != "MyFont" || f.FileName != "MyFont.ttf" || !f.IsCustom {
		t.Fatalf("got %+v", f)
	}
	tf := r.Typeface("MyFont", false)
	if tf.Family != "MyFont" || tf.TrueType == nil {
		t.Fatalf("custom font not parsed: %+v", tf)
	}
	if r.Face("MyFont", 24, false) == r.Face("myfont", 24, false) {
		t.Fatalf("each caller should get its own face")
	}
	res, ok := r.Resource("MyFont")
	if !ok || res.MIMEType != "font/ttf" || res.Format != "truetype" || len(res.Data) == 0 {
		t.Fatalf("got %+v %v", res, ok)
	}

	// A fresh registry only has the metadata.
	again := NewFontRegistry(ctx, mem, nil)
	restored, ok := again.Get(f.ID)
	if !ok || !restored.NeedsReupload || restored.Usable() {
		t.Fatalf("restored font should need a re-upload: %+v", restored)
	}
	if tf := again.Typeface("MyFont", false); tf.Family != "Go Regular" {
		t.Fatalf("expected the bundled fallback, got %q", tf.Family)
	}
	if _, ok := again.Resource("MyFont"); ok {
		t.Fatalf("resource without bytes")
	}
	if err := again.ReuploadFont(f.ID, goregular.TTF); err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if tf := again.Typeface("MyFont", false); tf.Family != "MyFont" {
		t.Fatalf("reupload not picked up, got %q", tf.Family)
	}

	if again.RemoveFont(ctx, "noto-sans-kr") {
		t.Fatalf("built-in font removed")
	}
	if !again.RemoveFont(ctx, f.ID) {
		t.Fatalf("custom font not removed")
	}
	if _, ok := again.Get(f.ID); ok {
		t.Fatalf("font still listed")
	}
	if len(NewFontRegistry(ctx, mem, nil).List()) != 3 {
		t.Fatalf("removal not persisted")
	}
}

func TestCorruptCustomFontFallsBack(t *testing.T) {
	r := NewFontRegistry(context.Background(), nil, nil)
	if _, err := r.AddCustomFont(context.Background(), []byte("not a font"), "Broken.otf"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if tf := r.Typeface("Broken", true); tf.Family != "Go Bold" {
		t.Fatalf("got %q", tf.Family)
	}
	if r.Face("Broken", 12, false) == nil {
		t.Fatalf("nil face")
	}
}

func TestFacesAcrossGoroutines(t *testing.T) {
	r := NewFontRegistry(context.Background(), nil, nil, WithFontDirs())
	widths := make([]float64, 2)
	var wg sync.WaitGroup
	for g := range widths {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				widths[g] = FaceMeasure(r.Face("Noto Sans KR", 32, false))("하늘을 우러러 sky")
			}
		}()
	}
	wg.Wait()
	if widths[0] == 0 || widths[0] != widths[1] {
		t.Fatalf("widths %v", widths)
	}

	var layouts sync.WaitGroup
	for g := 0; g < 2; g++ {
		layouts.Add(1)
		go func() {
			defer layouts.Done()
			for i := 0; i < 20; i++ {
				if _, err := BuildTarget(TargetInput{
					Lyrics:     Lyrics{Title: "서시", Body: seosi, Author: "윤동주"},
					Settings:   DefaultSettings(),
					Mode:       Portrait,
					Dimensions: DimensionsFor(Portrait),
					Measure:    measureWith(r),
				}); err != nil {
					t.Errorf("build: %v", err)
					return
				}
			}
		}()
	}
	layouts.Wait()
}

func TestTypefaceMissing(t *testing.T) {
	tf := NewFontRegistry(context.Background(), nil, nil, WithFontDirs()).Typeface("Noto Sans KR", false)
	if got := string(tf.Missing("서시 서시 abc")); got != "서시" {
		t.Fatalf("missing %q", got)
	}
	if got := tf.Missing("Lyrics canvas\n"); len(got) != 0 {
		t.Fatalf("missing %q", string(got))
	}
}

func writeFontFiles(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestBuiltinFamilyFromFontDir(t *testing.T) {
	dir := writeFontFiles(t, map[string][]byte{
		"noto/NotoSansKR-Regular.ttf": goregular.TTF,
		"noto/NotoSansKR-Bold.ttf":    gobold.TTF,
		"noto/NotoSansKR-Light.ttf":   []byte("not a font"),
		"readme.txt":                  []byte("fonts"),
	})
	r := NewFontRegistry(context.Background(), nil, nil, WithFontDirs(dir, filepath.Join(dir, "missing")))

	regular := r.Typeface("Noto Sans KR", false)
	bold := r.Typeface("noto sans kr", true)
	if regular.Family != "Noto Sans KR" || regular.TrueType == nil || bold.TrueType == nil {
		t.Fatalf("got %+v %+v", regular, bold)
	}
	if regular == bold {
		t.Fatalf("bold resolved to the regular file")
	}
	w := func(bold bool) float64 { return FaceMeasure(r.Face("Noto Sans KR", 32, bold))("WWWW") }
	if w(true) <= w(false) {
		t.Fatalf("bold %v not wider than regular %v", w(true), w(false))
	}

	// Nanum Gothic is not installed, so an installed Korean family stands in.
	if tf := r.Typeface("Nanum Gothic", false); tf.Family != "Nanum Gothic" || tf.TrueType == nil {
		t.Fatalf("got %+v", tf)
	}
	if tf := r.Typeface("Comic Sans", false); tf.Family != "Go Regular" {
		t.Fatalf("unknown family got %q", tf.Family)
	}
}

func TestPickFontFile(t *testing.T) {
	files := []string{
		"/f/NanumGothic.ttf",
		"/f/NanumGothicBold.ttf",
		"/f/NanumGothicCoding.ttf",
		"/f/NanumGothicExtraBold.ttf",
		"/f/NotoSansCJK-Regular.ttc",
	}
	for _, tc := range []struct {
		prefixes []string
		bold     bool
		want     string
	}{
		{[]string{"nanumgothic"}, false, "/f/NanumGothic.ttf"},
		{[]string{"nanumgothic"}, true, "/f/NanumGothicBold.ttf"},
		{[]string{"nanummyeongjo"}, false, ""},
		{[]string{"nanummyeongjo", "notosanscjk"}, true, "/f/NotoSansCJK-Regular.ttc"},
	} {
		if got := pickFontFile(files, tc.prefixes, tc.bold); got != tc.want {
			t.Fatalf("%v bold=%v: got %q want %q", tc.prefixes, tc.bold, got, tc.want)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

const webFontCSS = `
@font-face {
  font-family: 'Nanum Myeongjo';
  font-style: normal;
  font-weight: 400;
  src: url(https://fonts.gstatic.com/s/latin.ttf) format('truetype');
  unicode-range: U+0000-00FF, U+0131;
}
@font-face {
  font-family: 'Nanum Myeongjo';
  font-style: normal;
  font-weight: 400;
  src: url(https://fonts.gstatic.com/s/hangul.ttf) format('truetype');
  unicode-range: U+3131-318E, U+AC00-D7A3;
}
@font-face {
  font-family: 'Nanum Myeongjo';
  font-style: normal;
  font-weight: 700;
  src: url('https://fonts.gstatic.com/s/bold.ttf') format('truetype');
}
`

func TestBuiltinFamilyDownload(t *testing.T) {
	var (
		mu        sync.Mutex
		requested []string
	)
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		requested = append(requested, req.URL.String())
		mu.Unlock()
		body, status := []byte(nil), http.StatusNotFound
		switch {
		case req.URL.Host == "fonts.googleapis.com":
			body, status = []byte(webFontCSS), http.StatusOK
		case strings.HasSuffix(req.URL.Path, "/hangul.ttf"):
			body, status = goregular.TTF, http.StatusOK
		case strings.HasSuffix(req.URL.Path, "/bold.ttf"):
			body, status = gobold.TTF, http.StatusOK
		}
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewReader(body)),
			Request:    req,
		}, nil
	})}
	r := NewFontRegistry(context.Background(), nil, nil, WithFontDirs(), WithFontDownload(client))

	if tf := r.Typeface("Nanum Myeongjo", false); tf.Family != "Nanum Myeongjo" || tf.TrueType == nil {
		t.Fatalf("got %+v", tf)
	}
	if tf := r.Typeface("Nanum Myeongjo", true); tf.Family != "Nanum Myeongjo" || tf.TrueType == nil {
		t.Fatalf("got %+v", tf)
	}
	r.Typeface("Nanum Myeongjo", false)

	mu.Lock()
	defer mu.Unlock()
	got := strings.Join(requested, " ")
	if strings.Contains(got, "latin.ttf") || !strings.Contains(got, "hangul.ttf") || !strings.Contains(got, "bold.ttf") {
		t.Fatalf("requested %v", requested)
	}
	if len(requested) != 4 {
		t.Fatalf("resolved families should be cached, requested %v", requested)
	}
}

func TestFallbackWarnsAboutMissingGlyphs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	r := NewFontRegistry(context.Background(), nil, logger, WithFontDirs())
	r.Typeface("Noto Sans KR", false)
	r.Typeface("Noto Sans KR", false)
	r.Face("Noto Sans KR", 20, false)
	if n := logs.FilterMessageSnippet("without Hangul glyphs").Len(); n != 1 {
		t.Fatalf("expected one fallback warning, got %d", n)
	}

	job := &Job{Lyrics: Lyrics{Title: "서시", Body: "하늘을 우러러"}, Settings: DefaultSettings(), Mode: Portrait}
	if _, err := NewDirectDrawStrategy(r, logger).Attempt(context.Background(), job, PNG); err != nil {
		t.Fatalf("direct draw: %v", err)
	}
	if logs.FilterMessageSnippet("draw as boxes").Len() == 0 {
		t.Fatalf("no warning about undrawable text")
	}
}

func TestHangulCoverageWithInstalledFont(t *testing.T) {
	r := NewFontRegistry(context.Background(), nil, nil)
	tf := r.Typeface("Noto Sans KR", false)
	if tf.Family == "Go Regular" {
		t.Skip("no Korean font installed")
	}
	if missing := tf.Missing(seosi + "서시 윤동주"); len(missing) != 0 {
		t.Fatalf("%s lacks glyphs for %q", tf.Family, string(missing))
	}
}
