package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
)

// SeoMeta is the SEO portion of a page's metadata.
// Title is the legacy alias of SeoTitle: documents that only carry "title"
// decode into both fields. Unknown JSON keys are kept in Extra and written
// back next to the known ones.
type SeoMeta struct {
	SeoTitle    string
	Title       string
	Description string
	Keywords    []string
	Extra       map[string]any
}

var seoMetaKeys = []string{"seo_title", "title", "description", "keywords"}

// EffectiveTitle returns SeoTitle, falling back to the legacy Title.
func (s SeoMeta) EffectiveTitle() string {
	if s.SeoTitle != "" {
		return s.SeoTitle
	}
	return s.Title
}

// Tags converts the metadata into the head tags rendered for the page.
func (s SeoMeta) Tags() htmlprocessor.SEOTags {
	return htmlprocessor.SEOTags{
		Title:       s.EffectiveTitle(),
		Description: s.Description,
		Keywords:    s.Keywords,
	}
}

func (s SeoMeta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+len(seoMetaKeys))
	for k, v := range s.Extra {
		out[k] = v
	}
	out["seo_title"] = s.SeoTitle
	if s.Title != "" {
		out["title"] = s.Title
	}
	out["description"] = s.Description
	out["keywords"] = s.Keywords
	return json.Marshal(out)
}

func (s *SeoMeta) UnmarshalJSON(data []byte) error {
	var known struct {
		SeoTitle    string   `json:"seo_title"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	extra, err := unknownFields(data, seoMetaKeys)
	if err != nil {
		return err
	}

	*s = SeoMeta{
		SeoTitle:    known.SeoTitle,
		Title:       known.Title,
		Description: known.Description,
		Keywords:    known.Keywords,
		Extra:       extra,
	}
	if s.SeoTitle == "" {
		s.SeoTitle = known.Title
	}
	return nil
}

// PageMeta is the metadata document stored as meta.json next to a page's HTML.
type PageMeta struct {
	SEO       SeoMeta
	PageUID   string
	CreatedAt int64
	UpdatedAt int64
	ViewCount uint64
	Extra     map[string]any
}

var pageMetaKeys = []string{"seo", "page_uid", "created_at", "updated_at", "view_count"}

func (m PageMeta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(pageMetaKeys))
	for k, v := range m.Extra {
		out[k] = v
	}
	out["seo"] = m.SEO
	out["page_uid"] = m.PageUID
	out["created_at"] = m.CreatedAt
	out["updated_at"] = m.UpdatedAt
	out["view_count"] = m.ViewCount
	return json.Marshal(out)
}

func (m *PageMeta) UnmarshalJSON(data []byte) error {
	var known struct {
		SEO       SeoMeta `json:"seo"`
		PageUID   string  `json:"page_uid"`
		CreatedAt int64   `json:"created_at"`
		UpdatedAt int64   `json:"updated_at"`
		ViewCount uint64  `json:"view_count"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	extra, err := unknownFields(data, pageMetaKeys)
	if err != nil {
		return err
	}

	*m = PageMeta{
		SEO:       known.SEO,
		PageUID:   known.PageUID,
		CreatedAt: known.CreatedAt,
		UpdatedAt: known.UpdatedAt,
		ViewCount: known.ViewCount,
		Extra:     extra,
	}
	return nil
}

// unknownFields returns the members of a JSON object whose keys are not in
// known, decoded with json.Number so integers survive a round trip intact.
func unknownFields(data []byte, known []string) (map[string]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var extra map[string]any
	for key, value := range raw {
		if containsString(known, key) {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", key, err)
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = v
	}
	return extra, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PageIndexEntry is the per-page summary kept in the index.
// OriginalID is the caller-supplied id when sanitization changed it.
type PageIndexEntry struct {
	PageID     string  `json:"page_id"`
	SEO        SeoMeta `json:"seo"`
	PageUID    string  `json:"page_uid"`
	OriginalID string  `json:"original_id,omitempty"`
}

// StoreIndex maps sanitized page ids to their index entries. It is a derived
// cache and can always be rebuilt from the page directories.
type StoreIndex struct {
	Pages map[string]PageIndexEntry `json:"pages"`
}

// NewStoreIndex returns an empty index
func NewStoreIndex() *StoreIndex {
	return &StoreIndex{Pages: make(map[string]PageIndexEntry)}
}

// IDs returns the indexed page ids in ascending order.
func (idx *StoreIndex) IDs() []string {
	ids := make([]string, 0, len(idx.Pages))
	for id := range idx.Pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns the index entries ordered by page id.
func (idx *StoreIndex) Entries() []PageIndexEntry {
	ids := idx.IDs()
	entries := make([]PageIndexEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, idx.Pages[id])
	}
	return entries
}

// Contains reports whether id is indexed.
func (idx *StoreIndex) Contains(id string) bool {
	_, ok := idx.Pages[id]
	return ok
}

// FindUID returns the page id whose entry carries uid, scanning in id order.
func (idx *StoreIndex) FindUID(uid string) (string, bool) {
	if uid == "" {
		return "", false
	}
	for _, id := range idx.IDs() {
		if idx.Pages[id].PageUID == uid {
			return id, true
		}
	}
	return "", false
}

// Taken reports whether candidate is in use either as a page id or a page uid.
func (idx *StoreIndex) Taken(candidate string) bool {
	if idx.Contains(candidate) {
		return true
	}
	_, ok := idx.FindUID(candidate)
	return ok
}
