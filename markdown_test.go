package lyricscanvas

import (
	"testing"
	"time"
)

func TestImportMarkdown(t *testing.T) {
	src := "# 서시\n\n죽는 날까지 하늘을 우러러\n한 점 부끄럼이 없기를\n\n잎새에 이는 바람에도\n\n> — 윤동주\n"
	now := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	l, err := ImportMarkdown([]byte(src), now)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if l.Title != "서시" {
		t.Fatalf("title %q", l.Title)
	}
	if l.Author != "윤동주" {
		t.Fatalf("author %q", l.Author)
	}
	want := "죽는 날까지 하늘을 우러러\n한 점 부끄럼이 없기를\n\n잎새에 이는 바람에도"
	if l.Body != want {
		t.Fatalf("body %q want %q", l.Body, want)
	}
	if l.ID == "" || !l.CreatedAt.Equal(now) {
		t.Fatalf("identity not set: %+v", l)
	}
}

func TestImportMarkdownWithoutTitle(t *testing.T) {
	l, err := ImportMarkdown([]byte("- one\n- two\n"), time.Now())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if l.Title != "" || l.Author != "" || l.Body != "one\ntwo" {
		t.Fatalf("got %+v", l)
	}
}
