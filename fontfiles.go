package lyricscanvas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/image/font/opentype"
)

// FontDirEnv names an extra directory searched before the system ones.
const FontDirEnv = "LYRICSCANVAS_FONT_DIR"

const (
	fontFetchTimeout = 20 * time.Second
	maxFontDownload  = 32 << 20
)

// hangulProbe is the rune used to tell whether a font covers Hangul.
const hangulProbe = '가'

// hangulFamilies are file name prefixes of common fonts with Hangul
// coverage. They stand in for a built-in family that is not installed.
var hangulFamilies = []string{
	"notosanskr", "notoserifkr", "notosanscjk", "notoserifcjk", "sourcehansans", "sourcehanserif",
	"nanum", "applesdgothicneo", "applemyungjo", "malgun", "gulim", "batang",
	"unbatang", "undotum", "baekmuk",
}

// DefaultFontDirs lists where installed fonts live on this platform, with
// $LYRICSCANVAS_FONT_DIR first when set.
func DefaultFontDirs() []string {
	var dirs []string
	if d := os.Getenv(FontDirEnv); d != "" {
		dirs = append(dirs, d)
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Fonts"))
		}
		dirs = append(dirs, "/Library/Fonts", "/System/Library/Fonts")
	case "windows":
		if w := os.Getenv("WINDIR"); w != "" {
			dirs = append(dirs, filepath.Join(w, "Fonts"))
		}
		if l := os.Getenv("LOCALAPPDATA"); l != "" {
			dirs = append(dirs, filepath.Join(l, "Microsoft", "Windows", "Fonts"))
		}
	default:
		if x := os.Getenv("XDG_DATA_HOME"); x != "" {
			dirs = append(dirs, filepath.Join(x, "fonts"))
		}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, ".local", "share", "fonts"), filepath.Join(home, ".fonts"))
		}
		dirs = append(dirs, "/usr/local/share/fonts", "/usr/share/fonts")
	}
	return dirs
}

// fontKey folds a family or file name to lower-case letters and digits.
func fontKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isFontFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttf", ".otf", ".ttc", ".otc":
		return true
	}
	return false
}

// fontFiles walks the registry's directories once and remembers every font
// file found.
func (r *FontRegistry) fontFiles() []string {
	r.filesOnce.Do(func() {
		for _, dir := range r.dirs {
			err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					if path == dir {
						return err
					}
					return nil
				}
				if !d.IsDir() && isFontFile(path) {
					r.files = append(r.files, path)
				}
				return nil
			})
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				r.logger.Debug("scan font dir", zap.String("dir", dir), zap.Error(err))
			}
		}
		sort.Strings(r.files)
		r.logger.Debug("font files found", zap.Int("count", len(r.files)))
	})
	return r.files
}

// weightScore ranks the part of a font file name after the family for the
// wanted weight. Lower is better; -1 rejects the file.
func weightScore(rest string, bold bool) int {
	has := func(s string) bool { return strings.Contains(rest, s) }
	other := has("thin") || has("light") || has("black") || has("heavy") || has("extra") ||
		has("semi") || has("medium") || has("italic") || has("coding")
	if bold {
		switch {
		case has("bold") && !other:
			return 0
		case has("bold"):
			return 2
		case !other:
			return 3
		}
		return 4
	}
	switch {
	case has("bold"):
		return -1
	case rest == "" || (has("regular") && !other):
		return 0
	case !other:
		return 1
	}
	return 3
}

// pickFontFile returns the best file whose name starts with one of prefixes.
// Prefixes are tried in order.
func pickFontFile(files []string, prefixes []string, bold bool) string {
	for _, prefix := range prefixes {
		best, bestScore := "", -1
		for _, path := range files {
			name := fontKey(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			score := weightScore(name[len(prefix):], bold)
			if score < 0 {
				continue
			}
			if best == "" || score < bestScore {
				best, bestScore = path, score
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

// loadFontFile parses a font file. From a collection the first font that
// covers Hangul is used.
func loadFontFile(family, path string) (*Typeface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttc", ".otc":
		return parseCollection(family, data)
	}
	return parseTypeface(family, data)
}

func parseCollection(family string, data []byte) (*Typeface, error) {
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, err
	}
	var first *Typeface
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		tf := &Typeface{Family: family, OpenType: f}
		if len(tf.Missing(string(hangulProbe))) == 0 {
			return tf, nil
		}
		if first == nil {
			first = tf
		}
	}
	if first == nil {
		return nil, errors.New("empty font collection")
	}
	return first, nil
}

// resolveBuiltin finds font data for a built-in family: an installed file
// of that family, then a download, then any installed Hangul font.
func (r *FontRegistry) resolveBuiltin(f Font, bold bool) *Typeface {
	files := r.fontFiles()
	if path := pickFontFile(files, []string{fontKey(f.Name)}, bold); path != "" {
		tf, err := loadFontFile(f.Name, path)
		if err == nil {
			r.logger.Debug("font family resolved", zap.String("family", f.Name), zap.String("path", path))
			return tf
		}
		r.logger.Warn("load installed font", zap.String("path", path), zap.Error(err))
	}
	if r.client != nil && f.SourceURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), fontFetchTimeout)
		defer cancel()
		tf, err := fetchTypeface(ctx, r.client, f, bold)
		if err == nil {
			r.logger.Info("font family downloaded", zap.String("family", f.Name), zap.Bool("bold", bold))
			return tf
		}
		r.logger.Warn("download font", zap.String("family", f.Name), zap.Error(err))
	}
	if path := pickFontFile(files, hangulFamilies, bold); path != "" {
		if tf, err := loadFontFile(f.Name, path); err == nil {
			r.logger.Info("font family substituted", zap.String("family", f.Name), zap.String("path", path))
			return tf
		}
	}
	return nil
}

var (
	cssURLRe    = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	cssWeightRe = regexp.MustCompile(`font-weight:\s*(\d+)`)
	cssRangeRe  = regexp.MustCompile(`unicode-range:\s*([^;}]+)`)
)

// fontFaceRule is the part of an @font-face rule needed to fetch the file.
type fontFaceRule struct {
	URL    string
	Weight int
	Ranges string
}

// parseFontFaceCSS extracts the @font-face rules of a web font stylesheet.
func parseFontFaceCSS(css string) []fontFaceRule {
	var rules []fontFaceRule
	for _, block := range strings.Split(css, "@font-face")[1:] {
		m := cssURLRe.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		rule := fontFaceRule{URL: m[1], Weight: 400}
		if w := cssWeightRe.FindStringSubmatch(block); w != nil {
			rule.Weight, _ = strconv.Atoi(w[1])
		}
		if u := cssRangeRe.FindStringSubmatch(block); u != nil {
			rule.Ranges = u[1]
		}
		rules = append(rules, rule)
	}
	return rules
}

// covers reports whether a CSS unicode-range list includes r. An empty list
// covers everything.
func (f fontFaceRule) covers(r rune) bool {
	if strings.TrimSpace(f.Ranges) == "" {
		return true
	}
	for _, part := range strings.Split(f.Ranges, ",") {
		part = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(part)), "U+")
		lo, hi, found := strings.Cut(part, "-")
		if !found {
			hi = lo
		}
		l, err1 := strconv.ParseUint(strings.ReplaceAll(lo, "?", "0"), 16, 32)
		h, err2 := strconv.ParseUint(strings.ReplaceAll(hi, "?", "F"), 16, 32)
		if err1 == nil && err2 == nil && uint64(r) >= l && uint64(r) <= h {
			return true
		}
	}
	return false
}

// pickFontFaceRule chooses the rule for the wanted weight that covers
// Hangul, falling back to the first rule of that weight.
func pickFontFaceRule(rules []fontFaceRule, bold bool) (fontFaceRule, bool) {
	want := 400
	if bold {
		want = 700
	}
	var first *fontFaceRule
	for i, rule := range rules {
		if rule.Weight != want {
			continue
		}
		if rule.covers(hangulProbe) {
			return rule, true
		}
		if first == nil {
			first = &rules[i]
		}
	}
	if first != nil {
		return *first, true
	}
	if len(rules) > 0 {
		return rules[0], true
	}
	return fontFaceRule{}, false
}

// fetchTypeface downloads the stylesheet at f.SourceURL and then the font
// file it points at.
func fetchTypeface(ctx context.Context, client *http.Client, f Font, bold bool) (*Typeface, error) {
	css, err := fetch(ctx, client, f.SourceURL)
	if err != nil {
		return nil, err
	}
	rule, ok := pickFontFaceRule(parseFontFaceCSS(string(css)), bold)
	if !ok {
		return nil, fmt.Errorf("no @font-face rule in %s", f.SourceURL)
	}
	data, err := fetch(ctx, client, rule.URL)
	if err != nil {
		return nil, err
	}
	return parseTypeface(f.Name, data)
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFontDownload))
}
