package lyricscanvas

import (
	"encoding/json"
	"image/color"
	"testing"
)

func TestMigrateLegacyFontSize(t *testing.T) {
	s, err := MigrateSettings([]byte(`{"fontSize":40}`))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if s.TitleFontSize != 60 || s.ContentFontSize != 40 {
		t.Fatalf("got title=%v content=%v", s.TitleFontSize, s.ContentFontSize)
	}
	if s.Version != SettingsVersion {
		t.Fatalf("version not stamped: %d", s.Version)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestMigrateExplicitFieldsWin(t *testing.T) {
	s, err := MigrateSettings([]byte(`{"fontSize":40,"titleFontSize":50,"fontFamily":"Nanum Gothic","bodyFontFamily":"Nanum Myeongjo"}`))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if s.TitleFontSize != 50 || s.ContentFontSize != 40 {
		t.Fatalf("got title=%v content=%v", s.TitleFontSize, s.ContentFontSize)
	}
	if s.TitleFontFamily != "Nanum Gothic" || s.BodyFontFamily != "Nanum Myeongjo" {
		t.Fatalf("got families %q %q", s.TitleFontFamily, s.BodyFontFamily)
	}
}

func TestMigrateIsStable(t *testing.T) {
	first, err := MigrateSettings([]byte(`{"fontSize":40,"zoom":5,"textAlignment":"left"}`))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if first.Zoom != MaxZoom || first.ContentAlignment != AlignLeft {
		t.Fatalf("got %+v", first)
	}
	raw, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := MigrateSettings(raw)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if second != first {
		t.Fatalf("re-migrating changed the record:\n%+v\n%+v", first, second)
	}
}

func TestMigrateRejectsGarbage(t *testing.T) {
	if _, err := MigrateSettings([]byte(`{`)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for name, mutate := range map[string]func(*CanvasSettings){
		"zoom":      func(s *CanvasSettings) { s.Zoom = 3 },
		"title":     func(s *CanvasSettings) { s.TitleFontSize = 0 },
		"content":   func(s *CanvasSettings) { s.ContentFontSize = -1 },
		"alignment": func(s *CanvasSettings) { s.TitleAlignment = "justify" },
		"color":     func(s *CanvasSettings) { s.TextColor = "nope" },
	} {
		s := DefaultSettings()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParseColor(t *testing.T) {
	for in, want := range map[string]color.RGBA{
		"#fff":      {0xFF, 0xFF, 0xFF, 0xFF},
		"#000000":   {0, 0, 0, 0xFF},
		"#11223344": {0x11, 0x22, 0x33, 0x44},
		" White ":   {0xFF, 0xFF, 0xFF, 0xFF},
	} {
		got, err := ParseColor(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"red", "#12", "#gggggg", ""} {
		if _, err := ParseColor(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
