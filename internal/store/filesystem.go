package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	metaFileName  = "meta.json"
	htmlFileName  = "index.html"
	indexFileName = "index.json"
	tempSuffix    = ".tmp"
)

// pageFiles handles reading and writing page documents on the filesystem
type pageFiles struct {
	logger *zap.Logger
}

func newPageFiles(logger *zap.Logger) *pageFiles {
	return &pageFiles{logger: logger}
}

// writeAtomic writes data using the temp-file-then-rename pattern so readers
// never observe a partially written document. The directory structure is
// created if needed.
func (pf *pageFiles) writeAtomic(filePath string, data []byte) error {
	if err := pf.ensureDirectory(filepath.Dir(filePath)); err != nil {
		return err
	}

	tempPath := filePath + tempSuffix
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		pf.logger.Error("Failed to write temporary file",
			zap.String("temp_path", tempPath),
			zap.Error(err))
		return fmt.Errorf("%w: write temp file: %w", ErrIO, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		// Some platforms refuse to rename over an existing file
		if removeErr := os.Remove(filePath); removeErr != nil && !os.IsNotExist(removeErr) {
			os.Remove(tempPath)
			pf.logger.Error("Failed to replace existing file",
				zap.String("file_path", filePath),
				zap.Error(removeErr))
			return fmt.Errorf("%w: remove existing file: %w", ErrIO, removeErr)
		}
		if err := os.Rename(tempPath, filePath); err != nil {
			os.Remove(tempPath)
			pf.logger.Error("Failed to rename temp file to final path",
				zap.String("temp_path", tempPath),
				zap.String("file_path", filePath),
				zap.Error(err))
			return fmt.Errorf("%w: rename temp file: %w", ErrIO, err)
		}
	}

	pf.logger.Debug("File written",
		zap.String("file_path", filePath),
		zap.Int("size_bytes", len(data)))
	return nil
}

// readFile reads a whole document, mapping a missing file to ErrNotFound
func (pf *pageFiles) readFile(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filePath)
		}
		pf.logger.Error("Failed to read file",
			zap.String("file_path", filePath),
			zap.Error(err))
		return nil, fmt.Errorf("%w: read file: %w", ErrIO, err)
	}
	return content, nil
}

// readMeta loads and decodes a meta.json document
func (pf *pageFiles) readMeta(filePath string) (*PageMeta, error) {
	content, err := pf.readFile(filePath)
	if err != nil {
		return nil, err
	}
	var meta PageMeta
	if err := json.Unmarshal(content, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrCorrupt, filePath, err)
	}
	return &meta, nil
}

// writeJSON encodes v as indented JSON and writes it atomically
func (pf *pageFiles) writeJSON(filePath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(filePath), err)
	}
	return pf.writeAtomic(filePath, data)
}

func (pf *pageFiles) ensureDirectory(dir string) error {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		pf.logger.Error("Failed to create directory structure",
			zap.String("directory", dir),
			zap.Error(err))
		return fmt.Errorf("%w: create directory: %w", ErrIO, err)
	}
	pf.logger.Debug("Created directory structure", zap.String("directory", dir))
	return nil
}

// dirExists reports whether path is an existing directory
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
