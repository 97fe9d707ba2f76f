package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/btw-tracker/internal/receipt"
	"github.com/zombor/btw-tracker/internal/tax"
)

// Receipts is the part of receipt.Service the API exposes
type Receipts interface {
	ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*receipt.Result, error)
	Upload(filename string, data []byte, contentType string) (*receipt.Receipt, error)
	ProcessBatch(ctx context.Context, ids []string) []*receipt.Result
	ListReceipts() ([]*receipt.Receipt, error)
	GetReceipt(id string) (*receipt.Receipt, error)
	GetExtractedData(id string) (*receipt.ExtractedData, error)
	GetReceiptFile(id string) ([]byte, string, error)
	Reprocess(ctx context.Context, id string) (*receipt.Result, error)
	SubmitManualEntry(ctx context.Context, id string, entry receipt.ManualEntry) (*receipt.ExtractedData, error)
	DeleteReceipt(id string) error
	LedgerRecords() ([]*receipt.ExtractedData, error)
}

// Rules manages the tax rule overrides
type Rules interface {
	Effective() (map[tax.Category]tax.Rule, error)
	Overrides() (map[tax.Category]tax.Rule, error)
	SetOverride(label string, rule tax.Rule) (tax.Category, error)
	ResetOverride(label string) (tax.Category, error)
}

// Server handles HTTP requests for the bookkeeping API
type Server struct {
	receipts  Receipts
	rules     Rules
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(receipts Receipts, rules Rules, basicAuth BasicAuth) *Server {
	return NewServerWithMux(receipts, rules, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(receipts Receipts, rules Rules, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		receipts:  receipts,
		rules:     rules,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return user == s.basicAuth.Username && pass == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="BTW Tracker"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("POST /api/receipts/{id}/reprocess", s.requireAuth(s.handleReprocessReceipt))
	s.mux.HandleFunc("PUT /api/receipts/{id}/review", s.requireAuth(s.handleReviewReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))

	s.mux.HandleFunc("GET /api/tax-rules", s.requireAuth(s.handleListTaxRules))
	s.mux.HandleFunc("PUT /api/tax-rules/{category}", s.requireAuth(s.handleSetTaxRule))
	s.mux.HandleFunc("DELETE /api/tax-rules/{category}", s.requireAuth(s.handleResetTaxRule))

	s.mux.HandleFunc("GET /api/reports/vat", s.requireAuth(s.handleVATReport))
	s.mux.HandleFunc("GET /api/reports/annual", s.requireAuth(s.handleAnnualReport))
	s.mux.HandleFunc("GET /api/reports/export", s.requireAuth(s.handleExport))
}

// Handler returns the mux wrapped with the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down server")
		return srv.Shutdown(context.Background())
	}
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
