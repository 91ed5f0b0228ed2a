// Package pdf merges an ordered set of normalized page images into a
// single PDF document, one page per image.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/jung-kurt/gofpdf"
)

const minImageSize = 100

var ErrNoValidImages = errors.New("no valid images for PDF")

// Assemble writes all valid images into a single PDF at outputPath,
// preserving lexical filename order (page filenames are zero-padded, so
// lexical order is page order). Invalid entries are skipped with a
// warning. Returns the number of pages written. No output file is created
// when nothing valid remains or the conversion fails.
func Assemble(imagePaths []string, outputPath string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(imagePaths) == 0 {
		return 0, ErrNoValidImages
	}

	paths := append([]string(nil), imagePaths...)
	sort.Strings(paths)

	type page struct {
		path   string
		format string
		w, h   float64
	}

	var pages []page
	for _, p := range paths {
		format, w, h, err := inspect(p)
		if err != nil {
			log.Warn("skipping invalid image for PDF", "path", p, "error", err)
			continue
		}
		pages = append(pages, page{path: p, format: format, w: w, h: h})
	}

	if len(pages) == 0 {
		return 0, ErrNoValidImages
	}

	doc := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pages[0].w, Ht: pages[0].h},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	for _, pg := range pages {
		doc.AddPageFormat("P", gofpdf.SizeType{Wd: pg.w, Ht: pg.h})
		doc.ImageOptions(pg.path, 0, 0, pg.w, pg.h, false,
			gofpdf.ImageOptions{ImageType: pg.format, ReadDpi: false}, 0, "")
	}

	if err := doc.Error(); err != nil {
		return 0, fmt.Errorf("pdf conversion: %w", err)
	}

	if err := doc.OutputFileAndClose(outputPath); err != nil {
		_ = os.Remove(outputPath)
		return 0, fmt.Errorf("write pdf: %w", err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		log.Info("pdf assembled",
			"path", outputPath, "pages", len(pages),
			"size_mb", fmt.Sprintf("%.2f", float64(info.Size())/(1<<20)))
	}

	return len(pages), nil
}

// inspect validates one candidate image and reports its gofpdf image type
// and pixel dimensions (embedded 1:1 as points).
func inspect(path string) (string, float64, float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, 0, err
	}
	if info.Size() < minImageSize {
		return "", 0, 0, fmt.Errorf("file too small (%d bytes)", info.Size())
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		format = "JPG"
	case ".png":
		format = "PNG"
	default:
		return "", 0, 0, fmt.Errorf("unsupported image type %s", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", 0, 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", 0, 0, fmt.Errorf("undecodable image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", 0, 0, errors.New("zero dimensions")
	}

	return format, float64(cfg.Width), float64(cfg.Height), nil
}
