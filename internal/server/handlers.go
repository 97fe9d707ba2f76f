package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/btw-tracker/internal/receipt"
	"github.com/zombor/btw-tracker/internal/report"
	"github.com/zombor/btw-tracker/internal/tax"
)

// maxUploadSize covers high-resolution phone photos and multi-page PDFs
const maxUploadSize = int64(50 << 20)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes an error response with CORS headers set
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, receipt.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, receipt.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, tax.ErrValidation), errors.Is(err, report.ErrInvalidPeriod):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
		writeError(w, "Internal server error", code)
		return
	}
	writeError(w, err.Error(), code)
}

// detectContentType prefers the declared part type and falls back to the file extension
func detectContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	if header.Size > maxUploadSize {
		return nil, fmt.Errorf("%s is too large, maximum size is 50MB", header.Filename)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", header.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// handleUploadReceipt stores and processes one or more receipt files.
// A single file answers with its result, several files with a list of results.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}

	if len(headers) == 1 {
		data, err := readPart(headers[0])
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := s.receipts.ProcessReceipt(r.Context(), headers[0].Filename, data, detectContentType(headers[0]))
		if err != nil {
			writeServiceError(w, "Error processing receipt", err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	ids := make([]string, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := s.receipts.Upload(header.Filename, data, detectContentType(header))
		if err != nil {
			writeServiceError(w, "Error storing receipt", err)
			return
		}
		ids = append(ids, rec.ID)
	}
	writeJSON(w, http.StatusCreated, s.receipts.ProcessBatch(r.Context(), ids))
}

// handleListReceipts returns all receipts that are not deleted
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.receipts.ListReceipts()
	if err != nil {
		writeServiceError(w, "Error listing receipts", err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

type receiptResponse struct {
	*receipt.Receipt
	ExtractedData *receipt.ExtractedData `json:"extracted_data"`
}

// handleGetReceipt returns a receipt with its extracted data
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.receipts.GetReceipt(id)
	if err != nil {
		writeServiceError(w, "Error getting receipt", err)
		return
	}
	data, err := s.receipts.GetExtractedData(id)
	if err != nil {
		writeServiceError(w, "Error getting extracted data", err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{Receipt: rec, ExtractedData: data})
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.receipts.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error getting receipt file", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleReprocessReceipt runs a failed or completed receipt through the pipeline again
func (s *Server) handleReprocessReceipt(w http.ResponseWriter, r *http.Request) {
	result, err := s.receipts.Reprocess(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error reprocessing receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReviewReceipt stores a manual correction
func (s *Server) handleReviewReceipt(w http.ResponseWriter, r *http.Request) {
	var entry receipt.ManualEntry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	data, err := s.receipts.SubmitManualEntry(r.Context(), r.PathValue("id"), entry)
	if err != nil {
		writeServiceError(w, "Error saving review", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// handleDeleteReceipt soft-deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.receipts.DeleteReceipt(r.PathValue("id")); err != nil {
		writeServiceError(w, "Error deleting receipt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type taxRuleResponse struct {
	Category tax.Category `json:"category"`
	tax.Rule
	Overridden bool `json:"overridden"`
}

// handleListTaxRules returns the effective rule of every category
func (s *Server) handleListTaxRules(w http.ResponseWriter, r *http.Request) {
	effective, err := s.rules.Effective()
	if err != nil {
		writeServiceError(w, "Error listing tax rules", err)
		return
	}
	overrides, err := s.rules.Overrides()
	if err != nil {
		writeServiceError(w, "Error listing tax rules", err)
		return
	}

	rules := make([]taxRuleResponse, 0, len(effective))
	for _, c := range tax.Categories() {
		_, overridden := overrides[c]
		rules = append(rules, taxRuleResponse{Category: c, Rule: effective[c], Overridden: overridden})
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleSetTaxRule stores an override for a category
func (s *Server) handleSetTaxRule(w http.ResponseWriter, r *http.Request) {
	var rule tax.Rule
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&rule); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	category, err := s.rules.SetOverride(r.PathValue("category"), rule)
	if err != nil {
		writeServiceError(w, "Error saving tax rule", err)
		return
	}
	writeJSON(w, http.StatusOK, taxRuleResponse{Category: category, Rule: rule, Overridden: true})
}

// handleResetTaxRule removes the override of a category
func (s *Server) handleResetTaxRule(w http.ResponseWriter, r *http.Request) {
	if _, err := s.rules.ResetOverride(r.PathValue("category")); err != nil {
		writeServiceError(w, "Error resetting tax rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// intParam reads a required integer query parameter
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", report.ErrInvalidPeriod, name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", report.ErrInvalidPeriod, name)
	}
	return n, nil
}

// yearParam defaults to the current year
func yearParam(r *http.Request) (int, error) {
	if r.URL.Query().Get("year") == "" {
		return time.Now().Year(), nil
	}
	return intParam(r, "year")
}

// handleVATReport returns the VAT declaration of one quarter
func (s *Server) handleVATReport(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		writeServiceError(w, "Invalid year", err)
		return
	}
	quarter, err := intParam(r, "quarter")
	if err != nil {
		writeServiceError(w, "Invalid quarter", err)
		return
	}
	records, err := s.receipts.LedgerRecords()
	if err != nil {
		writeServiceError(w, "Error loading ledger", err)
		return
	}
	decl, err := report.QuarterlyVAT(records, year, quarter)
	if err != nil {
		writeServiceError(w, "Error building VAT report", err)
		return
	}
	writeJSON(w, http.StatusOK, decl)
}

// handleAnnualReport returns the annual summary
func (s *Server) handleAnnualReport(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		writeServiceError(w, "Invalid year", err)
		return
	}
	records, err := s.receipts.LedgerRecords()
	if err != nil {
		writeServiceError(w, "Error loading ledger", err)
		return
	}
	summary, err := report.Summarize(records, year)
	if err != nil {
		writeServiceError(w, "Error building annual report", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExport returns the year's workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		writeServiceError(w, "Invalid year", err)
		return
	}
	records, err := s.receipts.LedgerRecords()
	if err != nil {
		writeServiceError(w, "Error loading ledger", err)
		return
	}
	data, err := report.Workbook(records, year)
	if err != nil {
		writeServiceError(w, "Error building workbook", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="btw-overzicht-%d.xlsx"`, year))
	w.Write(data)
}
