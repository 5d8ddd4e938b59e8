// Package export writes a gallery snapshot to a report file. Files are
// written for people and other tools; nothing reads them back.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/wardrobe/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Report is the YAML document layout
type Report struct {
	GeneratedAt string                 `yaml:"generatedat"`
	AnalyzerURL string                 `yaml:"analyzerurl,omitempty"`
	Summary     Summary                `yaml:"summary"`
	Entries     []models.WardrobeEntry `yaml:"entries"`
}

type Summary struct {
	Total    int `yaml:"total"`
	Pending  int `yaml:"pending"`
	Complete int `yaml:"complete"`
	Failed   int `yaml:"failed"`
}

// Row is one entry flattened for columnar storage
type Row struct {
	Handle          string   `parquet:"handle"`
	Locator         string   `parquet:"locator"`
	DisplayName     string   `parquet:"display_name"`
	MimeType        string   `parquet:"mime_type"`
	Status          string   `parquet:"status"`
	Item            string   `parquet:"item,optional"`
	Recommendations []string `parquet:"recommendations,list"`
	ErrorMessage    string   `parquet:"error_message,optional"`
	CreatedAt       int64    `parquet:"created_at_ms"`
	ResolvedAt      int64    `parquet:"resolved_at_ms,optional"`
}

// Summarize counts entries per status
func Summarize(entries []models.WardrobeEntry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusComplete:
			s.Complete++
		case models.StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Write picks the format from the file extension
func Write(path, analyzerURL string, entries []models.WardrobeEntry) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return WriteYAML(path, analyzerURL, entries)
	case ".parquet":
		return WriteParquet(path, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: .yaml, .parquet)", filepath.Ext(path))
	}
}

func WriteYAML(path, analyzerURL string, entries []models.WardrobeEntry) error {
	report := Report{
		GeneratedAt: time.Now().Format(time.RFC3339),
		AnalyzerURL: analyzerURL,
		Summary:     Summarize(entries),
		Entries:     entries,
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %w", err)
	}
	return nil
}

func WriteParquet(path string, entries []models.WardrobeEntry) error {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}

	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}
	return nil
}

func toRow(e models.WardrobeEntry) Row {
	row := Row{
		Handle:          e.Handle,
		Locator:         e.Image.Locator,
		DisplayName:     e.Image.DisplayName,
		MimeType:        e.Image.MimeType,
		Status:          string(e.Status),
		ErrorMessage:    e.ErrorMessage,
		Recommendations: []string{},
		CreatedAt:       e.CreatedAt.UnixMilli(),
	}
	if e.Result != nil {
		row.Item = e.Result.Item
		row.Recommendations = append(row.Recommendations, e.Result.Recommendations...)
	}
	if !e.ResolvedAt.IsZero() {
		row.ResolvedAt = e.ResolvedAt.UnixMilli()
	}
	return row
}
