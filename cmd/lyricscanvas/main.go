package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arran4/lyricscanvas"
	"github.com/arran4/lyricscanvas/apiserver"
	"github.com/arran4/lyricscanvas/store"
	"go.uber.org/zap"
)

func main() {
	in := flag.String("in", "", "Input lyrics Markdown file (default: stdin if empty)")
	outDir := flag.String("out", ".", "Directory to save the exported image in")
	format := flag.String("format", "png", "Image format: png|jpeg|webp")
	mode := flag.String("mode", "portrait", "Layout mode: portrait|landscape")
	settingsPath := flag.String("settings", "", "Canvas settings JSON file (optional; legacy records are migrated)")
	fontPath := flag.String("font", "", "Custom font file (ttf, otf, woff, woff2)")
	previewWidth := flag.Float64("preview-width", 0, "On-screen preview width the settings were chosen at (0: settings are export pixels)")
	chrome := flag.String("chrome", os.Getenv("LYRICSCANVAS_CHROME"), "Chrome/Chromium binary for the snapshot renderer (default: search PATH)")
	dbPath := flag.String("db", "", "Settings database (default: $LYRICSCANVAS_DB_PATH or ~/.lyricscanvas/data.db)")
	fontDir := flag.String("font-dir", "", "Extra directory searched for installed fonts (also $LYRICSCANVAS_FONT_DIR)")
	download := flag.Bool("download-fonts", true, "Download built-in font families that are not installed")
	serve := flag.String("serve", "", "Serve the HTTP API on this address instead of exporting, e.g. 127.0.0.1:8787")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := store.DefaultConfig()
	if *dbPath != "" {
		cfg.Path = *dbPath
	}
	db, err := store.Open(cfg)
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	kv := store.NewSQLite(db, logger)

	var fontOpts []lyricscanvas.FontOption
	if *fontDir != "" {
		fontOpts = append(fontOpts, lyricscanvas.WithFontDirs(append([]string{*fontDir}, lyricscanvas.DefaultFontDirs()...)...))
	}
	if *download {
		fontOpts = append(fontOpts, lyricscanvas.WithFontDownload(nil))
	}
	fonts := lyricscanvas.NewFontRegistry(ctx, kv, logger, fontOpts...)
	if *fontPath != "" {
		data, err := os.ReadFile(*fontPath)
		if err != nil {
			fatal(err)
		}
		if _, err := fonts.AddCustomFont(ctx, data, filepath.Base(*fontPath)); err != nil {
			fatal(err)
		}
	}

	editor := lyricscanvas.NewEditor(ctx, lyricscanvas.EditorConfig{Store: kv, Fonts: fonts, Logger: logger})
	if *settingsPath != "" {
		raw, err := os.ReadFile(*settingsPath)
		if err != nil {
			fatal(err)
		}
		s, err := lyricscanvas.MigrateSettings(raw)
		if err != nil {
			fatal(err)
		}
		if err := editor.UpdateSettings(ctx, s); err != nil {
			fatal(err)
		}
	}
	m, err := lyricscanvas.ParseLayoutMode(*mode)
	if err != nil {
		fatal(err)
	}
	if m != "" {
		if err := editor.SetMode(m); err != nil {
			fatal(err)
		}
	}
	if *previewWidth > 0 {
		editor.Resize(*previewWidth, 0)
	}

	exporter := lyricscanvas.NewExporter(lyricscanvas.ExporterConfig{
		Fonts:      fonts,
		ChromePath: *chrome,
		Source:     editor,
		Locator:    editor,
		Saver:      lyricscanvas.NewDirSaver(*outDir, logger),
		Logger:     logger,
	})
	exporter.SetCanvasRef(editor.Surface())

	if *serve != "" {
		if err := runServer(ctx, *serve, exporter, editor, logger); err != nil {
			fatal(err)
		}
		return
	}

	lyrics, err := readLyrics(*in)
	if err != nil {
		fatal(err)
	}
	editor.SetLyrics(ctx, lyrics.Title, lyrics.Body, lyrics.Author)

	f, err := lyricscanvas.ParseFormat(*format)
	if err != nil {
		fatal(err)
	}
	res, err := exporter.SaveImage(ctx, lyrics.Title, f, m)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%s (%s, %s, %s)\n", res.Path, res.Dimensions, res.Strategy, res.Format)
}

func readLyrics(path string) (lyricscanvas.Lyrics, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return lyricscanvas.Lyrics{}, err
	}
	return lyricscanvas.ImportMarkdown(data, time.Now())
}

func runServer(ctx context.Context, addr string, exporter *lyricscanvas.Exporter, editor *lyricscanvas.Editor, logger *zap.Logger) error {
	srv := apiserver.New(apiserver.Config{Addr: addr, Version: version}, exporter, editor, logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

const version = "0.1.0"

func fatal(err error) {
	_, _ = os.Stderr.WriteString("lyricscanvas: " + err.Error() + "\n")
	os.Exit(1)
}
