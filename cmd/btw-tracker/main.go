package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/time/rate"

	"github.com/zombor/btw-tracker/internal/currency"
	"github.com/zombor/btw-tracker/internal/extraction"
	"github.com/zombor/btw-tracker/internal/receipt"
	"github.com/zombor/btw-tracker/internal/scanning"
	"github.com/zombor/btw-tracker/internal/server"
	"github.com/zombor/btw-tracker/internal/tax"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("btw-tracker")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "btw-tracker.db", "Database file path")
		ratesDBPath     = fs.StringLong("rates-db", "exchange-rates.db", "Exchange rate cache file path")
		storagePath     = fs.StringLong("storage", "./receipts", "Storage directory path")
		scannerType     = fs.StringLong("scanner", "gemini", "LLM provider: 'gemini', 'ollama' or 'none' (PDF text and heuristics only)")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		llmTimeout      = fs.DurationLong("llm-timeout", 30*time.Second, "Timeout for each LLM call")
		llmRPS          = fs.Float64Long("llm-rps", 0.5, "Receipts started per second in a batch (0 disables pacing)")
		ratesURL        = fs.StringLong("rates-url", currency.DefaultFrankfurterURL, "Frankfurter API base URL")
		ratesTimeout    = fs.DurationLong("rates-timeout", 10*time.Second, "Timeout for exchange rate lookups")
		ratesRetention  = fs.IntLong("rates-retention-days", 90, "Days to keep cached exchange rates")
		reviewThreshold = fs.Float64Long("review-threshold", receipt.DefaultReviewThreshold, "Confidence below which a receipt needs manual review")
		taxScope        = fs.StringLong("tax-scope", tax.DefaultScope, "Scope of the tax rule overrides")
		taxRules        = fs.StringLong("tax-rules", "", "YAML file with tax rule overrides to load at startup (optional)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BTW_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rules := tax.NewRuleBook(db, *taxScope)
	if *taxRules != "" {
		n, err := tax.LoadRulesFile(*taxRules, rules)
		if err != nil {
			slog.Error("Failed to load tax rules", "path", *taxRules, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded tax rules", "path", *taxRules, "count", n, "scope", *taxScope)
	}

	// Initialize exchange rates
	rateCache, err := currency.NewBoltCache(*ratesDBPath)
	if err != nil {
		slog.Error("Failed to initialize exchange rate cache", "error", err)
		os.Exit(1)
	}
	defer rateCache.Close()
	converter := currency.NewConverter(rateCache, currency.NewFrankfurter(*ratesURL, *ratesTimeout))

	// Initialize the LLM provider based on type
	var model scanning.Model
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(apiKey, *geminiModel, *llmTimeout)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		model = gemini
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *ollamaURL, "model", *ollamaModel)
		model = scanning.NewOllama(*ollamaURL, *ollamaModel, *llmTimeout)
	case "none":
		slog.Warn("No LLM configured: images cannot be read and records come from heuristics")
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, ollama or none")
		os.Exit(1)
	}
	if model != nil {
		defer model.Close()
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	pipeline := receipt.Pipeline{
		Rules:           rules,
		Rates:           converter,
		ReviewThreshold: *reviewThreshold,
	}
	// A nil model leaves the extractors on PDF text and heuristics
	pipeline.Text = scanning.NewTextExtractor(model)
	pipeline.Structurer = extraction.NewStructuredExtractor(model)
	pipeline.Categorizer = extraction.NewCategorizer(model)
	if *llmRPS > 0 {
		pipeline.Limiter = rate.NewLimiter(rate.Limit(*llmRPS), 1)
	}

	// Initialize service
	receiptService := receipt.NewService(db, store, pipeline)
	if n, err := receiptService.FailInterrupted(); err != nil {
		slog.Error("Failed to recover interrupted receipts", "error", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Info("Marked interrupted receipts as failed", "count", n)
	}

	go evictRates(ctx, converter, *ratesRetention)

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(receiptService, rules, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down...")
}

// evictRates drops expired exchange rates at startup and once a day after that
func evictRates(ctx context.Context, converter *currency.Converter, days int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := converter.EvictOlderThan(days); err != nil {
			slog.Warn("Failed to evict exchange rates", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
