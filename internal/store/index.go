package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// indexHandle owns index.json. Every read-modify-write, lazy rebuild and
// explicit rebuild runs under mu, so index mutations never interleave.
type indexHandle struct {
	mu        sync.Mutex
	root      string
	files     *pageFiles
	logger    *zap.Logger
	onRebuild func(pages, skipped int)
}

func (h *indexHandle) path() string {
	return filepath.Join(h.root, indexFileName)
}

// snapshot returns the current index, rebuilding it first if it is unreadable
func (h *indexHandle) snapshot() (*StoreIndex, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadLocked()
}

// update applies fn to the current index and persists the result atomically
// with respect to every other index mutation.
func (h *indexHandle) update(fn func(idx *StoreIndex) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, err := h.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		return err
	}
	return h.saveLocked(idx)
}

// rebuild rescans the storage root and rewrites the index from scratch,
// carrying over original ids from the previous index when it is readable.
func (h *indexHandle) rebuild() (*StoreIndex, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, _ := h.readLocked()
	return h.rebuildLocked(prev)
}

func (h *indexHandle) readLocked() (*StoreIndex, error) {
	content, err := h.files.readFile(h.path())
	if err != nil {
		return nil, err
	}
	var idx StoreIndex
	if err := json.Unmarshal(content, &idx); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrCorrupt, indexFileName, err)
	}
	if idx.Pages == nil {
		idx.Pages = make(map[string]PageIndexEntry)
	}
	return &idx, nil
}

func (h *indexHandle) loadLocked() (*StoreIndex, error) {
	idx, err := h.readLocked()
	if err == nil {
		return idx, nil
	}

	if errors.Is(err, ErrNotFound) {
		h.logger.Info("Index file missing, rebuilding", zap.String("path", h.path()))
	} else {
		h.logger.Warn("Index file unreadable, rebuilding",
			zap.String("path", h.path()),
			zap.Error(err))
	}
	return h.rebuildLocked(nil)
}

func (h *indexHandle) saveLocked(idx *StoreIndex) error {
	if err := h.files.writeJSON(h.path(), idx); err != nil {
		return fmt.Errorf("write %s: %w", indexFileName, err)
	}
	return nil
}

func (h *indexHandle) rebuildLocked(prev *StoreIndex) (*StoreIndex, error) {
	if err := h.files.ensureDirectory(h.root); err != nil {
		return nil, err
	}

	idx := NewStoreIndex()
	skipped := 0
	err := h.scanLocked(func(id string, meta *PageMeta, err error) {
		if err != nil {
			skipped++
			h.logger.Warn("Skipping page during index rebuild",
				zap.String("page_id", id),
				zap.Error(err))
			return
		}
		entry := PageIndexEntry{PageID: id, SEO: meta.SEO, PageUID: meta.PageUID}
		if prev != nil {
			entry.OriginalID = prev.Pages[id].OriginalID
		}
		idx.Pages[id] = entry
	})
	if err != nil {
		return nil, err
	}

	if err := h.saveLocked(idx); err != nil {
		return nil, err
	}

	h.logger.Info("Index rebuilt",
		zap.Int("pages", len(idx.Pages)),
		zap.Int("skipped", skipped))
	if h.onRebuild != nil {
		h.onRebuild(len(idx.Pages), skipped)
	}
	return idx, nil
}

// scanLocked calls visit for every page directory under the root. Directories
// whose names are not sanitized ids (tombstones, temp dirs) are ignored.
func (h *indexHandle) scanLocked(visit func(id string, meta *PageMeta, err error)) error {
	dirEntries, err := os.ReadDir(h.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read storage root: %w", ErrIO, err)
	}

	for _, entry := range dirEntries {
		if !entry.IsDir() || !IsSanitized(entry.Name()) {
			continue
		}
		id := entry.Name()
		meta, err := h.files.readMeta(filepath.Join(h.root, id, metaFileName))
		visit(id, meta, err)
	}
	return nil
}

// IndexReport describes how index.json compares with the page directories.
type IndexReport struct {
	Indexed    int      `json:"indexed"`
	OnDisk     int      `json:"on_disk"`
	Unreadable bool     `json:"unreadable"`
	Missing    []string `json:"missing,omitempty"`    // readable pages absent from the index
	Stale      []string `json:"stale,omitempty"`      // indexed ids without a readable page
	Mismatched []string `json:"mismatched,omitempty"` // page_uid differs between index and meta.json
}

// Consistent reports whether a rebuild would leave the index unchanged in
// membership and uids.
func (r IndexReport) Consistent() bool {
	return !r.Unreadable && len(r.Missing) == 0 && len(r.Stale) == 0 && len(r.Mismatched) == 0
}

func (h *indexHandle) verify() (IndexReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var report IndexReport
	idx, err := h.readLocked()
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCorrupt) {
			return report, err
		}
		report.Unreadable = true
		idx = NewStoreIndex()
	}
	report.Indexed = len(idx.Pages)

	onDisk := make(map[string]bool)
	err = h.scanLocked(func(id string, meta *PageMeta, err error) {
		if err != nil {
			return
		}
		onDisk[id] = true
		report.OnDisk++
		entry, ok := idx.Pages[id]
		switch {
		case !ok:
			report.Missing = append(report.Missing, id)
		case entry.PageUID != meta.PageUID:
			report.Mismatched = append(report.Mismatched, id)
		}
	})
	if err != nil {
		return report, err
	}

	for id := range idx.Pages {
		if !onDisk[id] {
			report.Stale = append(report.Stale, id)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Stale)
	sort.Strings(report.Mismatched)
	return report, nil
}
