package lyricscanvas

import (
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ---- Markdown import ----

// ImportMarkdown reads lyrics written as Markdown:
//
//	# Title
//	line one
//	line two
//
//	> Author
//
// The first heading becomes the title, the first blockquote the author and
// every other block a verse of the body. Line breaks inside a verse are kept
// and verses are separated by a blank line.
func ImportMarkdown(src []byte, now time.Time) (Lyrics, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(src))

	var title, author string
	var verses []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch nd := n.(type) {
		case *ast.Document:
			return ast.WalkContinue, nil
		case *ast.Heading:
			s := strings.TrimSpace(inlineText(nd, src))
			if title == "" {
				title = s
			} else if s != "" {
				verses = append(verses, s)
			}
		case *ast.Blockquote:
			s := strings.TrimSpace(inlineText(nd, src))
			if author == "" {
				author = trimAuthorDash(s)
			} else if s != "" {
				verses = append(verses, s)
			}
		case *ast.List:
			var items []string
			for li := nd.FirstChild(); li != nil; li = li.NextSibling() {
				if s := strings.TrimSpace(inlineText(li, src)); s != "" {
					items = append(items, s)
				}
			}
			if len(items) > 0 {
				verses = append(verses, strings.Join(items, "\n"))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if s := strings.TrimRight(blockLines(n, src), "\n"); s != "" {
				verses = append(verses, s)
			}
		default:
			if s := strings.TrimSpace(inlineText(n, src)); s != "" {
				verses = append(verses, s)
			}
		}
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return Lyrics{}, err
	}
	return NewLyrics(title, strings.Join(verses, "\n\n"), author, now), nil
}

// inlineText flattens the text under node. Soft and hard line breaks both
// become newlines; nested blocks are separated by one.
func inlineText(node ast.Node, src []byte) string {
	var b strings.Builder
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				b.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.String:
				b.Write(t.Value)
			case *ast.CodeSpan:
				walk(t)
			case *ast.AutoLink:
				b.Write(t.Label(src))
			default:
				if c.Type() == ast.TypeBlock && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
				walk(c)
			}
		}
	}
	walk(node)
	return b.String()
}

func blockLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

func trimAuthorDash(s string) string {
	for _, p := range []string{"- ", "-- ", "— ", "– "} {
		if strings.HasPrefix(s, p) {
			return strings.TrimSpace(strings.TrimPrefix(s, p))
		}
	}
	return s
}
