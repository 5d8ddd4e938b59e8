package handlers

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/wardrobe/internal/stylist"
)

// photoField is the multipart field the app sends the picture in
const photoField = "photo"

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1024*1024)

	file, header, err := r.FormFile(photoField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to read photo: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read photo contents: "+err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(fileData)) > h.maxBytes {
		h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
		return
	}
	if len(fileData) == 0 {
		h.writeError(w, "Photo is empty", http.StatusBadRequest)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(fileData)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		h.writeError(w, "Unsupported file type: "+mimeType, http.StatusUnsupportedMediaType)
		return
	}

	width, height := 0, 0
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(fileData)); err == nil {
		width, height = cfg.Width, cfg.Height
	} else {
		slog.Debug("Unable to read image dimensions", "filename", header.Filename, "err", err)
	}
	slog.Info("Photo received", "filename", header.Filename, "type", mimeType, "size", len(fileData), "width", width, "height", height)

	result, err := h.analyzer.Analyze(r.Context(), fileData, mimeType)
	if err != nil {
		if errors.Is(err, stylist.ErrUnrecognized) {
			h.writeError(w, "We could not recognize a clothing item in this photo", http.StatusUnprocessableEntity)
			return
		}
		h.writeError(w, "Analysis failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, result)
}
