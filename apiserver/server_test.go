package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arran4/lyricscanvas"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestServer(t *testing.T) (*Server, *lyricscanvas.Editor) {
	t.Helper()
	ed := lyricscanvas.NewEditor(context.Background(), lyricscanvas.EditorConfig{})
	exp := lyricscanvas.NewExporter(lyricscanvas.ExporterConfig{
		Strategies: []lyricscanvas.Strategy{lyricscanvas.NewMinimalStrategy(nil, nil)},
		Source:     ed,
		Locator:    ed,
	})
	return New(Config{Addr: "127.0.0.1:0", Version: "1.2.3"}, exp, ed, nil), ed
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running || st.Version != "1.2.3" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := s.Status()
	if !st.Running || !strings.HasPrefix(st.URL, "http://127.0.0.1:") {
		t.Fatalf("unexpected status after start %+v", st)
	}
	resp, err := http.Get(st.URL + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Status().Running {
		t.Fatalf("still running after stop")
	}
}

func TestDisabledBridge(t *testing.T) {
	var b Bridge = Disabled{}
	if err := b.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}
	if st := b.Status(); st.Running || st.URL != "" || st.Version != "0.0.0" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestGenerate(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"lyrics":{"title":"서시","body":"하늘을 우러러\n한 점 부끄럼이 없기를"},"settings":{"fontSize":40},"mode":"landscape","format":"png"}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ImageURL string `json:"imageUrl"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(out.ImageURL, "data:image/png;base64,") {
		t.Fatalf("unexpected image url prefix %.40q", out.ImageURL)
	}
	if out.Width != 711 || out.Height != 400 || out.Strategy != "minimal" {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)
	for _, body := range []string{
		`not json`,
		`{"mode":"diagonal"}`,
		`{"format":"bmp"}`,
		`{"settings":{"textColor":"chartreuse"}}`,
	} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status code %d", body, rec.Code)
		}
	}
}

func TestPreviewSocket(t *testing.T) {
	s, ed := newTestServer(t)
	ed.SetLyrics(context.Background(), "제목", "첫 줄\n둘째 줄", "X")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(clientMessage{Type: "resize", Width: 360, Height: 800}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "preview" || msg.Preview == nil || msg.Preview.Target == nil {
		t.Fatalf("unexpected message %+v", msg)
	}
	if d := msg.Preview.Target.Dimensions; d.Width != 360 || d.Height != 640 {
		t.Fatalf("unexpected preview size %v", d)
	}
	if msg.Preview.Ratio != "9:16" {
		t.Fatalf("unexpected ratio %q", msg.Preview.Ratio)
	}
	if msg.Preview.Target.Author == nil {
		t.Fatalf("author block missing")
	}
}
