package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/surpriset/market-parser/internal/models"
	"github.com/surpriset/market-parser/internal/parser"
)

// ProductParser is the engine surface the API needs.
type ProductParser interface {
	Parse(ctx context.Context, url string) (*models.ProductRecord, error)
}

type Handlers struct {
	parser   ProductParser
	logger   *slog.Logger
	sem      chan struct{}
	timeout  time.Duration
	slowWarn time.Duration
}

type Options struct {
	// ConcurrentLimit caps in-flight parses; extra requests wait.
	ConcurrentLimit int
	RequestTimeout  time.Duration
	SlowParseWarn   time.Duration
}

func NewHandlers(productParser ProductParser, logger *slog.Logger, opts Options) *Handlers {
	if opts.ConcurrentLimit < 1 {
		opts.ConcurrentLimit = 4
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}
	if opts.SlowParseWarn <= 0 {
		opts.SlowParseWarn = 15 * time.Second
	}
	return &Handlers{
		parser:   productParser,
		logger:   logger.With("component", "api"),
		sem:      make(chan struct{}, opts.ConcurrentLimit),
		timeout:  opts.RequestTimeout,
		slowWarn: opts.SlowParseWarn,
	}
}

// ParseResponse is the envelope for both success and failure.
type ParseResponse struct {
	Success bool                  `json:"success"`
	Data    *models.ProductRecord `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// ParseProduct handles GET /api/parse?url=<product page url>.
func (h *Handlers) ParseProduct(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.respondError(w, http.StatusBadRequest, "url parameter is required")
		return
	}

	// Clients sometimes double-encode the parameter.
	if decoded, err := url.QueryUnescape(rawURL); err == nil && strings.HasPrefix(decoded, "http") {
		rawURL = decoded
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		h.respondError(w, http.StatusBadRequest, "url must be absolute")
		return
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-r.Context().Done():
		h.respondError(w, http.StatusServiceUnavailable, "request cancelled while waiting for a parse slot")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	started := time.Now()
	record, err := h.parser.Parse(ctx, rawURL)
	elapsed := time.Since(started)

	if elapsed > h.slowWarn {
		h.logger.Warn("slow parse", "url", rawURL, "duration", elapsed.Round(time.Millisecond))
	}

	if err != nil {
		h.logger.Error("parse failed", "url", rawURL, "error", err)
		h.respondJSON(w, statusFor(err), ParseResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, ParseResponse{
		Success: true,
		Data:    record,
	})
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Index handles GET / with a short service banner.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"service": "market-parser",
		"parse":   "/api/parse?url=<product page url>",
		"health":  "/api/health",
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, parser.ErrUnsupportedMarketplace):
		return http.StatusBadRequest
	case errors.Is(err, parser.ErrBlockedByAntiBot):
		return http.StatusForbidden
	case errors.Is(err, parser.ErrPageLoadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, parser.ErrProductDataNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ParseResponse{Success: false, Error: message})
}
