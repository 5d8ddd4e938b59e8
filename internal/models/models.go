package models

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied when an image source does not report a name or type
const (
	DefaultDisplayName = "photo.jpg"
	DefaultMimeType    = "image/jpeg"
)

// Status is the analysis state of a wardrobe entry
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// ImageDescriptor identifies the bytes of an acquired photo
type ImageDescriptor struct {
	Locator     string `json:"locator" yaml:"locator"` // file path, file:// or http(s):// URL
	DisplayName string `json:"display_name" yaml:"displayname"`
	MimeType    string `json:"mime_type" yaml:"mimetype"`
}

// AnalysisResult is the analyzer's answer for one clothing item
type AnalysisResult struct {
	Item            string   `json:"item" yaml:"item"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`
}

// Clone returns a copy that shares no memory with r
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	recs := make([]string, len(r.Recommendations))
	copy(recs, r.Recommendations)
	return &AnalysisResult{Item: r.Item, Recommendations: recs}
}

// WardrobeEntry is one item in the gallery
type WardrobeEntry struct {
	Handle       string          `json:"handle" yaml:"handle"`
	Image        ImageDescriptor `json:"image" yaml:"image"`
	Status       Status          `json:"status" yaml:"status"`
	Result       *AnalysisResult `json:"result,omitempty" yaml:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty" yaml:"errormessage,omitempty"`
	CreatedAt    time.Time       `json:"created_at" yaml:"createdat"`
	ResolvedAt   time.Time       `json:"resolved_at,omitempty" yaml:"resolvedat,omitempty"`
}

// Validate reports whether the entry's status agrees with its result and error fields.
func (e *WardrobeEntry) Validate() error {
	hasResult := e.Result != nil
	hasError := e.ErrorMessage != ""

	switch e.Status {
	case StatusPending:
		if hasResult || hasError {
			return fmt.Errorf("pending entry %s has result or error set", e.Handle)
		}
	case StatusComplete:
		if !hasResult || hasError {
			return fmt.Errorf("complete entry %s must have a result and no error", e.Handle)
		}
	case StatusFailed:
		if hasResult || !hasError {
			return fmt.Errorf("failed entry %s must have an error and no result", e.Handle)
		}
	default:
		return fmt.Errorf("entry %s has unknown status %q", e.Handle, e.Status)
	}
	return nil
}

var (
	ErrPermissionDenied  = errors.New("permission to access image source denied")
	ErrUserCancelled     = errors.New("image selection cancelled")
	ErrSourceUnavailable = errors.New("image source unavailable")
	ErrContractViolation = errors.New("entry already resolved")
	ErrUnknownHandle     = errors.New("unknown entry handle")
)

// UploadError is the terminal failure of a single submission
type UploadError struct {
	Message string
	Cause   error
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}
