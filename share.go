package lyricscanvas

import (
	"context"
	"errors"
	"strings"
)

// ErrShareUnsupported is returned when no share capability is present.
var ErrShareUnsupported = errors.New("sharing is not supported here")

const (
	defaultShareTitle = "가사 이미지"
	defaultShareText  = "가사 이미지를 공유합니다"
)

// ShareFile is an encoded image packaged for a share target.
type ShareFile struct {
	Name     string
	MIMEType string
	Data     []byte
	Title    string
	Text     string
}

// Sharer is an optional native share capability.
type Sharer interface {
	CanShare(f ShareFile) bool
	Share(ctx context.Context, f ShareFile) error
}

// Share exports the current content and hands it to the configured Sharer.
func (e *Exporter) Share(ctx context.Context, format Format, mode LayoutMode) error {
	if e.sharer == nil {
		return ErrShareUnsupported
	}
	e.mu.Lock()
	enc, err := e.exportLocked(ctx, format, mode)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	var title string
	if e.source != nil {
		title = e.source.ExportSnapshot(mode).Lyrics.Title
	}
	f := NewShareFile(title, enc)
	if !e.sharer.CanShare(f) {
		return ErrShareUnsupported
	}
	return e.sharer.Share(ctx, f)
}

// NewShareFile names the file "{safeTitle}.{ext}" and fills in the share
// metadata.
func NewShareFile(title string, enc *Encoded) ShareFile {
	shareTitle := strings.TrimSpace(title)
	if shareTitle == "" {
		shareTitle = defaultShareTitle
	}
	return ShareFile{
		Name:     SanitizeFilename(title) + "." + enc.Format.Ext(),
		MIMEType: enc.MIMEType(),
		Data:     enc.Data,
		Title:    shareTitle,
		Text:     defaultShareText,
	}
}
