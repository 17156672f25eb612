package lyricscanvas

import "context"

// Keys the editor and font registry persist under.
const (
	KeyLyrics   = "lyrics_canvas_lyrics"
	KeySettings = "lyrics_canvas_settings"
	KeyFonts    = "lyrics_canvas_fonts"
)

// KeyValueStore persists JSON-serializable values by key. Load reports
// whether dst was filled; implementations log their own failures and answer
// false rather than surface them.
type KeyValueStore interface {
	Save(ctx context.Context, key string, v any) error
	Load(ctx context.Context, key string, dst any) bool
	Remove(ctx context.Context, key string) error
}

// nopStore is used when no store is configured.
type nopStore struct{}

func (nopStore) Save(context.Context, string, any) error { return nil }
func (nopStore) Load(context.Context, string, any) bool  { return false }
func (nopStore) Remove(context.Context, string) error    { return nil }
