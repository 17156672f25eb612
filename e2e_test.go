package lyricscanvas

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
)

const seosi = `죽는 날까지 하늘을 우러러
한 점 부끄럼이 없기를,
잎새에 이는 바람에도
나는 괴로워했다.
별을 노래하는 마음으로
모든 죽어 가는 것을 사랑해야지
그리고 나한테 주어진 길을
걸어가야겠다.
오늘 밤에도 별이 바람에 스치운다.`

func TestSeosiPortraitSave(t *testing.T) {
	ed := newTestEditor(t, "서시", seosi, "윤동주")

	body := ed.Preview().Target.Sizes.Body
	if body != 29 {
		t.Fatalf("preview body size %v", body)
	}
	if floor := MinimumSizes(Portrait).Body; body < floor || body > 32 {
		t.Fatalf("body size %v outside [%v, 32]", body, floor)
	}

	dir := t.TempDir()
	x := NewExporter(ExporterConfig{
		Strategies: []Strategy{
			&fakeStrategy{name: "snapshot", err: errors.New("no browser")},
			NewDirectDrawStrategy(nil, nil),
			NewMinimalStrategy(nil, nil),
		},
		Source:  ed,
		Locator: ed,
		Saver:   NewDirSaver(dir, nil),
	})
	x.SetCanvasRef(ed.Surface())

	res, err := x.SaveImage(context.Background(), "", PNG, "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Strategy != "direct-draw" || res.Placeholder {
		t.Fatalf("got %+v", res)
	}
	if !regexp.MustCompile(`^서시_\d{8}_\d{4}\.png$`).MatchString(filepath.Base(res.Path)) {
		t.Fatalf("file name %q", filepath.Base(res.Path))
	}
	if r := ExactRatio(float64(res.Dimensions.Width), float64(res.Dimensions.Height)); r != "9:16" {
		t.Fatalf("ratio %s", r)
	}
}

func TestAuthorOnlyExport(t *testing.T) {
	ed := newTestEditor(t, "", "", "X")
	x := NewExporter(ExporterConfig{
		Strategies: []Strategy{NewDirectDrawStrategy(nil, nil)},
		Source:     ed,
	})
	x.SetCanvasRef(ed.Surface())
	enc, err := x.ExportAsImage(context.Background(), PNG, Portrait)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	img := decodeImage(t, enc.Data)
	b := img.Bounds()
	split := b.Dy() * 8 / 10
	for y := 0; y < split; y++ {
		for x := 0; x < b.Dx(); x++ {
			if r, g, bl, _ := img.At(x, y).RGBA(); r|g|bl != 0 {
				t.Fatalf("unexpected ink at %d,%d", x, y)
			}
		}
	}
	ink := false
	for y := split; y < b.Dy() && !ink; y++ {
		for x := b.Dx() / 2; x < b.Dx(); x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r != 0 {
				ink = true
				break
			}
		}
	}
	if !ink {
		t.Fatalf("author not drawn in the bottom right")
	}
}
