package store

import (
	"context"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string  `json:"name"`
	Size  float64 `json:"size"`
	Items []int   `json:"items"`
}

func TestSQLiteRoundTrip(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "data.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	s := NewSQLite(db, nil)
	ctx := context.Background()

	if s.Load(ctx, "missing", &record{}) {
		t.Fatalf("expected no data for missing key")
	}
	want := record{Name: "서시", Size: 32, Items: []int{1, 2}}
	if err := s.Save(ctx, "k", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	want.Size = 40
	if err := s.Save(ctx, "k", want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	var got record
	if !s.Load(ctx, "k", &got) {
		t.Fatalf("expected data")
	}
	if got.Name != want.Name || got.Size != 40 || len(got.Items) != 2 {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Load(ctx, "k", &got) {
		t.Fatalf("expected no data after remove")
	}
}

func TestSQLiteDecodeFailureIsNoData(t *testing.T) {
	db, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	s := NewSQLite(db, nil)
	ctx := context.Background()
	if err := s.Save(ctx, "k", "just a string"); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got record
	if s.Load(ctx, "k", &got) {
		t.Fatalf("a value of the wrong shape should read as no data")
	}
}

func TestMemoryRaw(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SetRaw("k", []byte(`{"name":"x","size":1}`))
	var got record
	if !m.Load(ctx, "k", &got) || got.Name != "x" {
		t.Fatalf("unexpected %+v", got)
	}
	m.SetRaw("bad", []byte(`{`))
	if m.Load(ctx, "bad", &got) {
		t.Fatalf("corrupt value should read as no data")
	}
}

func TestDefaultConfigEnv(t *testing.T) {
	t.Setenv("LYRICSCANVAS_DB_PATH", "/tmp/x.db")
	if got := DefaultConfig().Path; got != "/tmp/x.db" {
		t.Fatalf("got %q", got)
	}
}
