package scanning

import (
	"context"
	"errors"
)

var (
	// ErrExtractionUnavailable is returned when text could not be read from a document
	ErrExtractionUnavailable = errors.New("text extraction unavailable")

	// ErrUnsupportedFormat is returned for content types the extractor cannot read
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Vision reads text from images
type Vision interface {
	// ReadImage transcribes all text in a PNG image
	ReadImage(ctx context.Context, png []byte) (string, error)
}

// Generator completes text prompts
type Generator interface {
	// Generate returns the model's response to prompt
	Generate(ctx context.Context, prompt string) (string, error)
}

// Model is an LLM provider that can both read images and complete prompts
type Model interface {
	Vision
	Generator
	// Close closes the model and releases resources
	Close() error
}
