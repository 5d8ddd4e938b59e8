package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lehigh-university-libraries/wardrobe/internal/models"
)

// Analyzer is satisfied by *stylist.Service
type Analyzer interface {
	Analyze(ctx context.Context, imageData []byte, mimeType string) (*models.AnalysisResult, error)
}

type Handler struct {
	analyzer Analyzer
	maxBytes int64
}

func New(analyzer Analyzer) *Handler {
	return &Handler{
		analyzer: analyzer,
		maxBytes: 10 * 1024 * 1024,
	}
}

// NewRouter registers the analyzer routes
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/analyze", h.HandleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/healthcheck", h.HandleHealthcheck).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeError sends a plaintext body, which clients show to the user as is
func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File too large (max %dMB)", h.maxBytes/1024/1024)
}
