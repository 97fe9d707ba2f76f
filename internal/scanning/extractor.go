package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// TextExtractor turns uploaded documents into raw text
type TextExtractor struct {
	vision Vision
}

// NewTextExtractor creates a TextExtractor. vision may be nil, in which case only
// plain text and PDFs with a text layer can be read.
func NewTextExtractor(vision Vision) *TextExtractor {
	return &TextExtractor{vision: vision}
}

// Extract returns the text of a document
func (t *TextExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(http.DetectContentType(data))
	}

	switch {
	case ct == "text/plain":
		return string(data), nil

	case ct == "application/pdf":
		text, err := pdfText(data)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
		}
		if text != "" {
			slog.Debug("read PDF text layer", "chars", len(text))
			return text, nil
		}
		slog.Debug("PDF has no text layer, rendering first page")
		png, err := pdfToImage(data)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
		}
		return t.read(ctx, png)

	case isImageType(ct):
		png, err := toPNG(data, ct)
		if err != nil {
			if errors.Is(err, ErrUnsupportedFormat) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
		}
		return t.read(ctx, png)
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ct)
}

// ExtractFile reads a stored document and returns its text.
// An empty contentType is guessed from the file extension.
func (t *TextExtractor) ExtractFile(ctx context.Context, path string, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", ErrExtractionUnavailable, path, err)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}
	return t.Extract(ctx, data, contentType)
}

func (t *TextExtractor) read(ctx context.Context, png []byte) (string, error) {
	if t.vision == nil {
		return "", fmt.Errorf("%w: no vision model configured", ErrExtractionUnavailable)
	}
	text, err := t.vision.ReadImage(ctx, png)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("vision model returned no text")
	}
	return text, nil
}
