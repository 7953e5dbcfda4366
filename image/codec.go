package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"diffuser/collection"
	"diffuser/logger"
)

// Decode decodes PNG or JPEG bytes, sniffing the format from the content.
func Decode(imageBytes []byte) (stdimage.Image, error) {
	// DetectContentType detects the content type
	contentType := http.DetectContentType(imageBytes)

	switch contentType {
	case "image/png":
		return png.Decode(bytes.NewReader(imageBytes))
	case "image/jpeg":
		return jpeg.Decode(bytes.NewReader(imageBytes))
	}

	return nil, fmt.Errorf("unable to decode %#v", contentType)
}

func EncodePNG(img stdimage.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToJpeg re-encodes PNG bytes as JPEG.
func ToJpeg(imageBytes []byte) ([]byte, error) {
	contentType := http.DetectContentType(imageBytes)
	if contentType != "image/png" {
		return nil, fmt.Errorf("unable to convert %#v to jpeg", contentType)
	}

	img, err := png.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	// encode the image as a JPEG file
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// maxFileNameBytes bounds the prompt part of an export name.
const maxFileNameBytes = 120

// CleanFileName turns a prompt into something safe to use in a file name.
func CleanFileName(fileName string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(fileName) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	if len(out) > maxFileNameBytes {
		// cut on a rune boundary so the name stays valid UTF-8
		cut := maxFileNameBytes
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimRight(out[:cut], "-")
	}
	if out == "" {
		out = "image"
	}
	return out
}

// FileName is the export name of img: its prompt, seed and an upscale marker.
func FileName(img collection.ProducedImage, ext string) string {
	name := fmt.Sprintf("%s.%d", CleanFileName(img.Prompt), img.Seed)
	if img.Upscaled {
		name += ".upscaled"
	}
	return name + "." + ext
}

// Export writes img to dir as PNG, or JPEG when jpg is set, and returns the path.
func Export(dir string, img collection.ProducedImage, jpg bool) (string, error) {
	if img.Image == nil {
		return "", fmt.Errorf("image %s has no pixel data", img.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := EncodePNG(img.Image)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	ext := "png"
	if jpg {
		if data, err = ToJpeg(data); err != nil {
			return "", fmt.Errorf("failed to convert image: %w", err)
		}
		ext = "jpg"
	}

	path := filepath.Join(dir, FileName(img, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error("Failed to write image file", "file", path, "error", err)
		return "", err
	}
	return path, nil
}

// ExportAll writes every image to dir, stopping at the first failure.
func ExportAll(dir string, images []collection.ProducedImage, jpg bool) ([]string, error) {
	paths := make([]string, 0, len(images))
	for _, img := range images {
		path, err := Export(dir, img, jpg)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
