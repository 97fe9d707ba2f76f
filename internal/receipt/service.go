package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zombor/btw-tracker/internal/currency"
	"github.com/zombor/btw-tracker/internal/extraction"
	"github.com/zombor/btw-tracker/internal/tax"
)

// DefaultReviewThreshold is the confidence below which a record needs manual review
const DefaultReviewThreshold = 0.7

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// TextExtractor reads the raw text of a document
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// Structurer turns raw text into a structured record. It never fails.
type Structurer interface {
	Extract(ctx context.Context, raw string) *extraction.Structured
}

// Categorizer assigns a tax category. It never fails.
type Categorizer interface {
	Categorize(ctx context.Context, s *extraction.Structured) tax.Category
}

// RuleResolver returns the tax rule for a category
type RuleResolver interface {
	Resolve(category tax.Category) (tax.Rule, error)
}

// RateSource resolves exchange rates
type RateSource interface {
	GetRate(ctx context.Context, from, to string, date time.Time) (currency.Rate, error)
}

// Pipeline holds the processing steps of the service
type Pipeline struct {
	Text        TextExtractor
	Structurer  Structurer
	Categorizer Categorizer
	Rules       RuleResolver
	Rates       RateSource

	// ReviewThreshold defaults to DefaultReviewThreshold when zero
	ReviewThreshold float64

	// Limiter paces the start of each receipt in ProcessBatch. Nil means no pacing.
	Limiter *rate.Limiter
}

// Service handles receipt operations
type Service struct {
	db          DB
	storage     Storage
	pipeline    Pipeline
	validate    *validator.Validate
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, pipeline Pipeline) *Service {
	return NewServiceWithDeps(db, storage, pipeline, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, pipeline Pipeline, idGen IDGenerator, timeSrc TimeSource) *Service {
	if pipeline.ReviewThreshold == 0 {
		pipeline.ReviewThreshold = DefaultReviewThreshold
	}
	return &Service{
		db:          db,
		storage:     storage,
		pipeline:    pipeline,
		validate:    validator.New(),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameJunk  = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpace = regexp.MustCompile(`\s+`)
	filenameExt   = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	if !filenameExt.MatchString(ext) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = filenameJunk.ReplaceAllString(base, "")
	base = strings.TrimSpace(filenameSpace.ReplaceAllString(base, " "))

	// Phone uploads come with very long generated names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt stores an upload as a new pending receipt and runs it through the pipeline.
// Only storage failures are returned as errors; processing failures are reported in the Result.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Result, error) {
	receipt, err := s.Upload(filename, data, contentType)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, receipt.ID), nil
}

// Upload stores a file as a new pending receipt without processing it
func (s *Service) Upload(filename string, data []byte, contentType string) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receipt := &Receipt{
		ID:               id,
		OriginalFilename: filename,
		StoredFilename:   savedPath,
		FileSize:         int64(len(data)),
		ContentType:      contentType,
		UploadedAt:       now,
		ProcessingStatus: StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to clean up file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	slog.Info("receipt uploaded", "receipt_id", id, "filename", filename, "content_type", contentType, "file_size", len(data))
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID. Soft-deleted receipts are not found.
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.IsDeleted {
		return nil, fmt.Errorf("getting receipt: %w: %s", ErrNotFound, id)
	}
	return receipt, nil
}

// GetExtractedData returns the extracted data of a receipt, or nil when it was never extracted
func (s *Service) GetExtractedData(id string) (*ExtractedData, error) {
	if _, err := s.GetReceipt(id); err != nil {
		return nil, err
	}
	data, err := s.db.GetExtractedData(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting extracted data: %w", err)
	}
	return data, nil
}

// ListReceipts returns all receipts that are not deleted, newest first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	all, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	receipts := make([]*Receipt, 0, len(all))
	for _, r := range all {
		if !r.IsDeleted {
			receipts = append(receipts, r)
		}
	}
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].UploadedAt.After(receipts[j].UploadedAt)
	})
	return receipts, nil
}

// DeleteReceipt soft-deletes a receipt. The file and extracted data are kept.
func (s *Service) DeleteReceipt(id string) error {
	_, err := s.db.UpdateReceipt(id, func(r *Receipt) error {
		if r.IsDeleted {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		r.IsDeleted = true
		r.UpdatedAt = s.timeSource.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	slog.Info("receipt deleted", "receipt_id", id)
	return nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.GetReceipt(id)
	if err != nil {
		return nil, "", err
	}

	data, err := s.storage.Get(receipt.StoredFilename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// LedgerRecords returns the extracted data of every completed, non-deleted receipt
func (s *Service) LedgerRecords() ([]*ExtractedData, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	live := make(map[string]bool, len(receipts))
	for _, r := range receipts {
		if !r.IsDeleted && r.ProcessingStatus == StatusCompleted {
			live[r.ID] = true
		}
	}

	all, err := s.db.ListExtractedData()
	if err != nil {
		return nil, fmt.Errorf("listing extracted data: %w", err)
	}
	records := make([]*ExtractedData, 0, len(live))
	for _, d := range all {
		if live[d.ReceiptID] {
			records = append(records, d)
		}
	}
	return records, nil
}
