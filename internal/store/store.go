// Package store persists pages (SEO metadata plus an HTML body) under a
// storage root and keeps index.json consistent with the page directories.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
	"github.com/edgecomet/pagestore/internal/pageid"
)

// Operation names reported to the Observer
const (
	OpCreate       = "create"
	OpCreateAutoID = "create_auto_id"
	OpUpdate       = "update"
	OpUpdateMeta   = "update_meta"
	OpUpdateHTML   = "update_html"
	OpPatch        = "patch"
	OpLoad         = "load"
	OpDelete       = "delete"
	OpRebuildIndex = "rebuild_index"
	OpViewCount    = "increment_view_count"
)

const tombstoneSuffix = ".deleting"

// Observer receives the outcome of store operations. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveOperation(op string, err error, duration time.Duration)
	ObserveIndexRebuild(pages, skipped int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error, time.Duration) {}
func (nopObserver) ObserveIndexRebuild(int, int)                  {}

// Option configures a Store
type Option func(*Store)

// WithObserver reports operation outcomes to o
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock replaces time.Now as the source of created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the crypto/rand backed id generator
func WithIDGenerator(g pageid.Generator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// Store is a filesystem page store. It owns the storage root exclusively:
// nothing else may write under it while the store is in use.
type Store struct {
	root     string
	files    *pageFiles
	index    *indexHandle
	locks    pageLocks
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	ids      pageid.Generator
}

// New creates a store rooted at root. The directory is created lazily on the
// first write or index rebuild.
func New(root string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	files := newPageFiles(logger)
	s := &Store{
		root:     root,
		files:    files,
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.index = &indexHandle{
		root:   root,
		files:  files,
		logger: logger,
		onRebuild: func(pages, skipped int) {
			s.observer.ObserveIndexRebuild(pages, skipped)
		},
	}
	return s
}

// Root returns the storage root directory
func (s *Store) Root() string {
	return s.root
}

func (s *Store) pageDir(safeID string) string {
	return filepath.Join(s.root, safeID)
}

// observe starts timing op; the returned func reports *errp when deferred
func (s *Store) observe(op string, errp *error) func() {
	start := time.Now()
	return func() {
		s.observer.ObserveOperation(op, *errp, time.Since(start))
	}
}

// Create persists a new page under the sanitized form of id.
func (s *Store) Create(id string, meta PageMeta, html string) (result PageMeta, err error) {
	defer s.observe(OpCreate, &err)()

	safeID := Sanitize(id)
	unlock := s.locks.lock(safeID)
	defer unlock()

	return s.createLocked(id, safeID, meta, html)
}

// CreateAutoID persists a new page under a freshly generated id and returns
// that id. When meta carries no page uid the generated id doubles as the uid,
// so the page can be loaded by its uid directly.
func (s *Store) CreateAutoID(meta PageMeta, html string) (id string, result PageMeta, err error) {
	defer s.observe(OpCreateAutoID, &err)()

	idx, err := s.index.snapshot()
	if err != nil {
		return "", PageMeta{}, err
	}
	id, err = s.ids.Generate(func(candidate string) bool {
		return idx.Taken(candidate) || dirExists(s.pageDir(candidate))
	})
	if err != nil {
		return "", PageMeta{}, uidError(err)
	}

	if meta.PageUID == "" {
		meta.PageUID = id
	}

	unlock := s.locks.lock(id)
	defer unlock()

	result, err = s.createLocked(id, id, meta, html)
	if err != nil {
		return "", PageMeta{}, err
	}
	return id, result, nil
}

func (s *Store) createLocked(id, safeID string, meta PageMeta, html string) (PageMeta, error) {
	exists, err := s.existsLocked(safeID)
	if err != nil {
		return PageMeta{}, err
	}
	if exists {
		return PageMeta{}, fmt.Errorf("%w: %s", ErrAlreadyExists, safeID)
	}

	result, err := s.persist(id, safeID, &meta, &html)
	if err != nil {
		s.discardPartialCreate(safeID)
		return PageMeta{}, err
	}
	s.logger.Info("Page created",
		zap.String("page_id", safeID),
		zap.String("page_uid", result.PageUID))
	return result, nil
}

// discardPartialCreate removes what a failed create left behind, so the id
// stays free. The caller holds the page lock and knows the directory did not
// exist before.
func (s *Store) discardPartialCreate(safeID string) {
	dir := s.pageDir(safeID)
	if !dirExists(dir) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("Failed to remove partially created page",
			zap.String("page_id", safeID),
			zap.Error(err))
	}
}

// Update replaces both the metadata and the HTML of an existing page. The
// page uid, created_at and view_count already on disk are preserved.
func (s *Store) Update(id string, meta PageMeta, html string) (result PageMeta, err error) {
	defer s.observe(OpUpdate, &err)()
	return s.update(id, &meta, &html)
}

// UpdateMeta replaces the metadata of an existing page, leaving index.html untouched.
func (s *Store) UpdateMeta(id string, meta PageMeta) (result PageMeta, err error) {
	defer s.observe(OpUpdateMeta, &err)()
	return s.update(id, &meta, nil)
}

// UpdateHTML replaces the HTML of an existing page. The stored SEO metadata
// is kept; meta.json is rewritten only to advance updated_at.
func (s *Store) UpdateHTML(id string, html string) (result PageMeta, err error) {
	defer s.observe(OpUpdateHTML, &err)()
	return s.update(id, nil, &html)
}

func (s *Store) update(id string, meta *PageMeta, html *string) (PageMeta, error) {
	safeID := Sanitize(id)
	unlock := s.locks.lock(safeID)
	defer unlock()

	if !dirExists(s.pageDir(safeID)) {
		return PageMeta{}, fmt.Errorf("%w: %s", ErrNotFound, safeID)
	}

	result, err := s.persist(id, safeID, meta, html)
	if err != nil {
		return PageMeta{}, err
	}
	s.logger.Debug("Page updated",
		zap.String("page_id", safeID),
		zap.Bool("meta", meta != nil),
		zap.Bool("html", html != nil))
	return result, nil
}

// PagePatch lists the changes Patch applies. Nil fields keep the stored value.
type PagePatch struct {
	SeoTitle    *string
	Description *string
	Keywords    *[]string
	HTML        *string
}

func (p PagePatch) touchesMeta() bool {
	return p.SeoTitle != nil || p.Description != nil || p.Keywords != nil
}

func (p PagePatch) apply(seo *SeoMeta) {
	if p.SeoTitle != nil {
		seo.SeoTitle = *p.SeoTitle
	}
	if p.Description != nil {
		seo.Description = *p.Description
	}
	if p.Keywords != nil {
		seo.Keywords = *p.Keywords
	}
}

// Patch applies the set fields of patch to an existing page. The stored
// metadata is read, merged and written under the page lock, so concurrent
// patches touching different fields all survive. index.html is rewritten
// only when patch.HTML is set.
func (s *Store) Patch(id string, patch PagePatch) (result PageMeta, err error) {
	defer s.observe(OpPatch, &err)()

	safeID := Sanitize(id)
	unlock := s.locks.lock(safeID)
	defer unlock()

	dir := s.pageDir(safeID)
	if !dirExists(dir) {
		return PageMeta{}, fmt.Errorf("%w: %s", ErrNotFound, safeID)
	}

	var meta *PageMeta
	if patch.touchesMeta() {
		current, err := s.files.readMeta(filepath.Join(dir, metaFileName))
		if err != nil {
			return PageMeta{}, err
		}
		patch.apply(&current.SEO)
		meta = current
	}

	result, err = s.persist(id, safeID, meta, patch.HTML)
	if err != nil {
		return PageMeta{}, err
	}
	s.logger.Debug("Page patched",
		zap.String("page_id", safeID),
		zap.Bool("meta", meta != nil),
		zap.Bool("html", patch.HTML != nil))
	return result, nil
}

// persist merges caller data with what is stored for safeID and writes it.
// A nil meta keeps the stored metadata, a nil html keeps index.html as is.
// The caller holds the page lock for safeID.
func (s *Store) persist(callerID, safeID string, caller *PageMeta, html *string) (PageMeta, error) {
	idx, err := s.index.snapshot()
	if err != nil {
		return PageMeta{}, err
	}

	dir := s.pageDir(safeID)
	onDisk, err := s.files.readMeta(filepath.Join(dir, metaFileName))
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		onDisk = nil
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("Ignoring corrupt metadata while persisting page",
			zap.String("page_id", safeID),
			zap.Error(err))
		onDisk = nil
	default:
		return PageMeta{}, err
	}
	entry := idx.Pages[safeID]

	if html != nil {
		if err := htmlprocessor.Validate(*html); err != nil {
			return PageMeta{}, err
		}
	}

	var meta PageMeta
	switch {
	case caller != nil:
		meta = *caller
	case onDisk != nil:
		meta = *onDisk
	default:
		meta.SEO = entry.SEO
	}
	if onDisk != nil {
		if meta.Extra == nil {
			meta.Extra = onDisk.Extra
		}
		if meta.SEO.Extra == nil {
			meta.SEO.Extra = onDisk.SEO.Extra
		}
	}

	var diskUID string
	var diskCreated, diskUpdated int64
	if onDisk != nil {
		diskUID, diskCreated, diskUpdated = onDisk.PageUID, onDisk.CreatedAt, onDisk.UpdatedAt
	}

	uid, ok := ResolveUID(diskUID, entry.PageUID, s.acceptCallerUID(safeID, meta.PageUID, idx))
	if !ok {
		uid, err = s.ids.Generate(idx.Taken)
		if err != nil {
			return PageMeta{}, uidError(err)
		}
	}

	now := s.now().Unix()
	meta.PageUID = uid
	meta.CreatedAt = ResolveCreatedAt(diskCreated, meta.CreatedAt, now)
	meta.UpdatedAt = ResolveUpdatedAt(meta.CreatedAt, diskUpdated, now)
	meta.ViewCount = ResolveViewCount(onDisk, meta.ViewCount)

	if err := s.files.ensureDirectory(dir); err != nil {
		return PageMeta{}, err
	}
	if err := s.files.writeJSON(filepath.Join(dir, metaFileName), meta); err != nil {
		return PageMeta{}, err
	}
	if html != nil {
		if err := s.files.writeAtomic(filepath.Join(dir, htmlFileName), []byte(*html)); err != nil {
			return PageMeta{}, err
		}
	}

	err = s.index.update(func(idx *StoreIndex) error {
		prev := idx.Pages[safeID]
		idx.Pages[safeID] = PageIndexEntry{
			PageID:     safeID,
			SEO:        meta.SEO,
			PageUID:    uid,
			OriginalID: ResolveOriginalID(prev.OriginalID, callerID, safeID),
		}
		return nil
	})
	if err != nil {
		return PageMeta{}, err
	}
	return meta, nil
}

// acceptCallerUID returns uid when it may become the page's permanent uid:
// it must have the generated shape and must not belong to another page.
func (s *Store) acceptCallerUID(safeID, uid string, idx *StoreIndex) string {
	if uid == "" {
		return ""
	}
	if !pageid.Valid(uid) {
		s.logger.Warn("Ignoring malformed page uid",
			zap.String("page_id", safeID),
			zap.String("page_uid", uid))
		return ""
	}
	if owner, ok := idx.FindUID(uid); ok && owner != safeID {
		s.logger.Warn("Ignoring page uid owned by another page",
			zap.String("page_id", safeID),
			zap.String("page_uid", uid),
			zap.String("owner", owner))
		return ""
	}
	return uid
}

func uidError(err error) error {
	if errors.Is(err, pageid.ErrExhausted) {
		return fmt.Errorf("%w: %w", ErrUIDExhausted, err)
	}
	return fmt.Errorf("%w: generate page uid: %w", ErrIO, err)
}

// Load returns the metadata and HTML of a page. It fails with ErrNotFound if
// either file is missing and ErrCorrupt if meta.json does not decode.
func (s *Store) Load(id string) (meta PageMeta, html string, err error) {
	defer s.observe(OpLoad, &err)()

	safeID := Sanitize(id)
	unlock := s.locks.lock(safeID)
	defer unlock()

	m, err := s.files.readMeta(filepath.Join(s.pageDir(safeID), metaFileName))
	if err != nil {
		return PageMeta{}, "", err
	}
	content, err := s.files.readFile(filepath.Join(s.pageDir(safeID), htmlFileName))
	if err != nil {
		return PageMeta{}, "", err
	}
	return *m, string(content), nil
}

// GetMeta returns the metadata of a page
func (s *Store) GetMeta(id string) (PageMeta, error) {
	m, err := s.files.readMeta(filepath.Join(s.pageDir(Sanitize(id)), metaFileName))
	if err != nil {
		return PageMeta{}, err
	}
	return *m, nil
}

// GetHTML returns the HTML body of a page
func (s *Store) GetHTML(id string) (string, error) {
	content, err := s.files.readFile(filepath.Join(s.pageDir(Sanitize(id)), htmlFileName))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// ResolveIDByUID returns the page id whose page uid is uid. An unknown uid is
// reported with ok=false and a nil error.
func (s *Store) ResolveIDByUID(uid string) (id string, ok bool, err error) {
	if uid == "" {
		return "", false, nil
	}
	idx, err := s.index.snapshot()
	if err != nil {
		return "", false, err
	}
	if entry, found := idx.Pages[uid]; found && entry.PageUID == uid {
		return uid, true, nil
	}
	id, ok = idx.FindUID(uid)
	return id, ok, nil
}

// Delete removes a page directory and its index entry as one unit. The
// directory is first moved aside so a failed index write can be rolled back.
func (s *Store) Delete(id string) (err error) {
	defer s.observe(OpDelete, &err)()

	safeID := Sanitize(id)
	unlock := s.locks.lock(safeID)
	defer unlock()

	idx, err := s.index.snapshot()
	if err != nil {
		return err
	}
	dir := s.pageDir(safeID)
	onDisk := dirExists(dir)
	if !onDisk && !idx.Contains(safeID) {
		return fmt.Errorf("%w: %s", ErrNotFound, safeID)
	}

	tombstone := filepath.Join(s.root, "."+safeID+tombstoneSuffix)
	if onDisk {
		if err := os.RemoveAll(tombstone); err != nil {
			return fmt.Errorf("%w: clear stale tombstone: %w", ErrIO, err)
		}
		if err := os.Rename(dir, tombstone); err != nil {
			return fmt.Errorf("%w: move page aside: %w", ErrIO, err)
		}
	}

	err = s.index.update(func(idx *StoreIndex) error {
		delete(idx.Pages, safeID)
		return nil
	})
	if err != nil {
		if onDisk {
			if restoreErr := os.Rename(tombstone, dir); restoreErr != nil {
				s.logger.Error("Failed to restore page after index update failure",
					zap.String("page_id", safeID),
					zap.String("tombstone", tombstone),
					zap.Error(restoreErr))
			}
		}
		return err
	}

	if onDisk {
		if err := os.RemoveAll(tombstone); err != nil {
			s.logger.Error("Failed to remove deleted page directory",
				zap.String("page_id", safeID),
				zap.String("tombstone", tombstone),
				zap.Error(err))
			return fmt.Errorf("%w: remove page directory: %w", ErrIO, err)
		}
	}

	s.logger.Info("Page deleted", zap.String("page_id", safeID))
	return nil
}

// List returns the indexed page ids in ascending order
func (s *Store) List() ([]string, error) {
	idx, err := s.index.snapshot()
	if err != nil {
		return nil, err
	}
	return idx.IDs(), nil
}

// ListEntries returns the index entries ordered by page id
func (s *Store) ListEntries() ([]PageIndexEntry, error) {
	idx, err := s.index.snapshot()
	if err != nil {
		return nil, err
	}
	return idx.Entries(), nil
}

// RebuildIndex rescans the storage root and rewrites index.json. Pages whose
// metadata cannot be read are skipped and logged.
func (s *Store) RebuildIndex() (idx *StoreIndex, err error) {
	defer s.observe(OpRebuildIndex, &err)()
	return s.index.rebuild()
}

// Verify compares index.json with the page directories without modifying either
func (s *Store) Verify() (IndexReport, error) {
	return s.index.verify()
}

// SweepTombstones removes page directories left behind by interrupted
// deletes and returns how many were removed.
func (s *Store) SweepTombstones() (int, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read storage root: %w", ErrIO, err)
	}

	removed := 0
	for _, entry := range dirEntries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tombstoneSuffix) {
			continue
		}
		safeID := strings.TrimSuffix(name[1:], tombstoneSuffix)
		if !IsSanitized(safeID) {
			continue
		}
		if err := s.removeTombstone(safeID, filepath.Join(s.root, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// removeTombstone holds the page lock so an in-flight Delete of the same id
// keeps its rollback path.
func (s *Store) removeTombstone(safeID, path string) error {
	unlock := s.locks.lock(safeID)
	defer unlock()

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: remove tombstone: %w", ErrIO, err)
	}
	s.logger.Info("Removed leftover tombstone",
		zap.String("page_id", safeID),
		zap.String("path", path))
	return nil
}

// Exists reports whether a page is indexed or has a directory under the root
func (s *Store) Exists(id string) (bool, error) {
	return s.existsLocked(Sanitize(id))
}

func (s *Store) existsLocked(safeID string) (bool, error) {
	idx, err := s.index.snapshot()
	if err != nil {
		return false, err
	}
	return idx.Contains(safeID) || dirExists(s.pageDir(safeID)), nil
}

// IncrementViewCount adds one to a page's view counter and returns the new
// value. updated_at and the index are left untouched.
func (s *Store) IncrementViewCount(id string) (count uint64, err error) {
	defer s.observe(OpViewCount, &err)()

	safeID := Sanitize(id)
	unlock := s.locks.lock(safeID)
	defer unlock()

	path := filepath.Join(s.pageDir(safeID), metaFileName)
	meta, err := s.files.readMeta(path)
	if err != nil {
		return 0, err
	}
	meta.ViewCount++
	if err := s.files.writeJSON(path, meta); err != nil {
		return 0, err
	}
	return meta.ViewCount, nil
}
