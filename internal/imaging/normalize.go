// Package imaging converts downloaded images into PDF-embeddable form:
// opaque raster data encoded as JPEG or PNG. Unprocessable inputs are
// quarantined for later inspection instead of silently discarded.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const minInputSize = 100

type Normalizer struct {
	quarantine string
	quality    int
	log        *slog.Logger
}

func New(quarantineDir string, quality int, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Normalizer{
		quarantine: quarantineDir,
		quality:    quality,
		log:        log,
	}
}

// Normalize rewrites the image at path into a PDF-safe file and returns
// the path downstream code should use. The returned path differs from the
// input when re-encoding changed the extension; the original file is
// removed in that case.
func (n *Normalizer) Normalize(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < minInputSize {
		return "", fmt.Errorf("image %s missing or too small", path)
	}

	f, err := os.Open(path)
	if err != nil {
		n.quarantineCopy(path)
		return "", fmt.Errorf("open image: %w", err)
	}

	img, format, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		n.quarantineCopy(path)
		return "", fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		n.quarantineCopy(path)
		return "", fmt.Errorf("image %s has zero dimensions", filepath.Base(path))
	}

	n.log.Debug("normalizing image",
		"file", filepath.Base(path), "format", format,
		"width", bounds.Dx(), "height", bounds.Dy())

	switch format {
	case "jpeg":
		// Already opaque and PDF-friendly.
		return path, nil

	case "png":
		if isOpaquePlainColor(img) {
			return path, nil
		}
		// Palette or alpha content: flatten and rewrite in place. The
		// opaque composite encodes as 24-bit truecolor, dropping the
		// alpha channel.
		if err := writePNG(flattenOntoWhite(img), path); err != nil {
			n.quarantineCopy(path)
			return "", err
		}
		return path, nil

	default:
		// webp/gif/bmp and anything else: re-encode as JPEG.
		out := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
		if err := n.writeJPEG(flattenOntoWhite(img), out); err != nil {
			n.quarantineCopy(path)
			return "", err
		}
		if !strings.EqualFold(out, path) {
			if err := os.Remove(path); err != nil {
				n.log.Warn("could not remove original image", "path", path, "error", err)
			}
		}
		return out, nil
	}
}

// isOpaquePlainColor reports whether the decoded image can be embedded
// as-is: truecolor or grayscale with no transparency.
func isOpaquePlainColor(img image.Image) bool {
	switch img.(type) {
	case *image.Paletted:
		return false
	case *image.Gray, *image.Gray16:
		return true
	}

	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return o.Opaque()
	}
	return false
}

// flattenOntoWhite composites the image over a solid white background.
// Alpha is treated as "no ink": fully transparent source pixels come out
// white.
func flattenOntoWhite(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}

func writePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

func (n *Normalizer) writeJPEG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: n.quality}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return f.Close()
}

// quarantineCopy preserves a copy of an unprocessable file.
func (n *Normalizer) quarantineCopy(path string) {
	if n.quarantine == "" {
		return
	}

	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() {
		_ = src.Close()
	}()

	dst := filepath.Join(n.quarantine, "problem_"+filepath.Base(path))
	out, err := os.Create(dst)
	if err != nil {
		n.log.Warn("could not quarantine image", "path", path, "error", err)
		return
	}

	if _, err := io.Copy(out, src); err != nil {
		n.log.Warn("quarantine copy failed", "path", path, "error", err)
	}
	_ = out.Close()

	n.log.Info("quarantined unprocessable image", "from", path, "to", dst)
}
