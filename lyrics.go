package lyricscanvas

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lyrics is the content laid out on the canvas. ID is assigned once by
// NewLyrics and stays stable across edits.
type Lyrics struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewLyrics(title, body, author string, now time.Time) Lyrics {
	return Lyrics{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Author:    author,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes UpdatedAt.
func (l *Lyrics) Touch(now time.Time) { l.UpdatedAt = now }

// Snapshot returns a copy that later edits cannot reach. Lyrics only holds
// values so a plain copy suffices.
func (l Lyrics) Snapshot() Lyrics { return l }

// IsEmpty reports whether there is nothing at all to draw.
func (l Lyrics) IsEmpty() bool {
	return strings.TrimSpace(l.Title) == "" &&
		strings.TrimSpace(l.Body) == "" &&
		strings.TrimSpace(l.Author) == ""
}

// ensureID gives records loaded without an identifier a fresh one.
func (l *Lyrics) ensureID() {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
}
