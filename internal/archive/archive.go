// Package archive exports the page store to a single JSON-lines file and
// imports it back, optionally compressed with snappy or lz4.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/store"
)

// Directions reported to Metrics
const (
	DirectionExport = "export"
	DirectionImport = "import"
)

// Record is one page in an archive
type Record struct {
	PageID     string         `json:"page_id"`
	OriginalID string         `json:"original_id,omitempty"`
	Meta       store.PageMeta `json:"meta"`
	HTML       string         `json:"html"`
}

// Source is what Export reads from
type Source interface {
	ListEntries() ([]store.PageIndexEntry, error)
	Load(id string) (store.PageMeta, string, error)
}

// Sink is what Import writes to
type Sink interface {
	Exists(id string) (bool, error)
	Create(id string, meta store.PageMeta, html string) (store.PageMeta, error)
	Update(id string, meta store.PageMeta, html string) (store.PageMeta, error)
}

// Metrics receives archive counters
type Metrics interface {
	RecordArchivePages(direction string, count int)
	RecordCompressionRatio(algorithm string, ratio float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordArchivePages(string, int)         {}
func (nopMetrics) RecordCompressionRatio(string, float64) {}

// ExportResult summarizes an export
type ExportResult struct {
	Pages     int
	Skipped   int
	Algorithm string
	Bytes     int
}

// ImportResult summarizes an import
type ImportResult struct {
	Created int
	Updated int
	Failed  int
}

// Archiver runs exports and imports
type Archiver struct {
	logger  *zap.Logger
	metrics Metrics
}

// NewArchiver creates an Archiver. metrics may be nil.
func NewArchiver(logger *zap.Logger, metrics Metrics) *Archiver {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Archiver{logger: logger, metrics: metrics}
}

// Export writes every readable page of src to path. The compression
// algorithm follows the file extension. Unreadable pages are skipped and
// counted.
func (a *Archiver) Export(src Source, path string) (ExportResult, error) {
	result := ExportResult{Algorithm: DetectAlgorithm(path)}

	entries, err := src.ListEntries()
	if err != nil {
		return result, fmt.Errorf("list pages: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		meta, html, err := src.Load(entry.PageID)
		if err != nil {
			result.Skipped++
			a.logger.Warn("Skipping unreadable page during export",
				zap.String("page_id", entry.PageID),
				zap.Error(err))
			continue
		}
		records = append(records, Record{
			PageID:     entry.PageID,
			OriginalID: entry.OriginalID,
			Meta:       meta,
			HTML:       html,
		})
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, records); err != nil {
		return result, err
	}
	data, err := Compress(buf.Bytes(), result.Algorithm)
	if err != nil {
		return result, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return result, err
	}

	result.Pages = len(records)
	result.Bytes = len(data)
	a.metrics.RecordArchivePages(DirectionExport, result.Pages)
	if result.Algorithm != CompressionNone && buf.Len() > 0 {
		a.metrics.RecordCompressionRatio(result.Algorithm, float64(len(data))/float64(buf.Len()))
	}

	a.logger.Info("Pages exported",
		zap.String("path", path),
		zap.Int("pages", result.Pages),
		zap.Int("skipped", result.Skipped),
		zap.String("compression", result.Algorithm),
		zap.Int("size_bytes", result.Bytes))
	return result, nil
}

// Import creates or updates every page in the archive at path. Each page
// goes through the store, so HTML validation and uid rules apply; a page
// that fails is logged and counted and the import continues.
func (a *Archiver) Import(dst Sink, path string) (ImportResult, error) {
	var result ImportResult

	raw, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("read archive: %w", err)
	}
	data, err := Decompress(raw, DetectAlgorithm(path))
	if err != nil {
		return result, err
	}
	records, err := ReadRecords(bytes.NewReader(data))
	if err != nil {
		return result, err
	}

	for _, rec := range records {
		created, err := a.importRecord(dst, rec)
		switch {
		case err != nil:
			result.Failed++
			a.logger.Warn("Failed to import page",
				zap.String("page_id", rec.PageID),
				zap.Error(err))
		case created:
			result.Created++
		default:
			result.Updated++
		}
	}

	a.metrics.RecordArchivePages(DirectionImport, result.Created+result.Updated)
	a.logger.Info("Pages imported",
		zap.String("path", path),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (a *Archiver) importRecord(dst Sink, rec Record) (bool, error) {
	if rec.PageID == "" {
		return false, errors.New("record has no page_id")
	}
	// Importing under the original id keeps it recorded in the index
	id := rec.PageID
	if rec.OriginalID != "" && store.Sanitize(rec.OriginalID) == rec.PageID {
		id = rec.OriginalID
	}

	exists, err := dst.Exists(id)
	if err != nil {
		return false, err
	}
	if exists {
		_, err = dst.Update(id, rec.Meta, rec.HTML)
		return false, err
	}
	_, err = dst.Create(id, rec.Meta, rec.HTML)
	return err == nil, err
}

// WriteRecords writes one JSON document per line
func WriteRecords(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].PageID, err)
		}
	}
	return nil
}

// ReadRecords reads records written by WriteRecords
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create archive directory: %w", err)
		}
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}
