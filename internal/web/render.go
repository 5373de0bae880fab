package web

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
	"github.com/edgecomet/pagestore/internal/store"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// RenderPage injects the page's SEO tags into its stored HTML
func RenderPage(meta store.PageMeta, body string) string {
	return htmlprocessor.InjectSEO(body, meta.SEO.Tags())
}

// RenderIndexHTML renders the site index: one list item per page linking to
// its slug URL.
func RenderIndexHTML(entries []store.PageIndexEntry, siteName string) string {
	name := html.EscapeString(siteName)

	var b strings.Builder
	b.WriteString(`<!doctype html><html><head><meta charset="utf-8"><title>`)
	b.WriteString(name)
	b.WriteString(`</title></head><body><main><h1>`)
	b.WriteString(name)
	b.WriteString(`</h1><ul>`)
	for _, entry := range entries {
		title := entry.SEO.EffectiveTitle()
		b.WriteString(`<li><a href="`)
		b.WriteString(html.EscapeString(BuildPageURL(entry.PageID, title)))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(title))
		b.WriteString(`</a><p>`)
		b.WriteString(html.EscapeString(entry.SEO.Description))
		b.WriteString(`</p><small>`)
		b.WriteString(html.EscapeString(entry.PageID))
		b.WriteString(`</small></li>`)
	}
	b.WriteString(`</ul></main></body></html>`)
	return b.String()
}

// RenderNotFoundHTML renders the 404 page
func RenderNotFoundHTML(siteName string) string {
	name := html.EscapeString(siteName)
	return `<!doctype html><html><head><meta charset="utf-8"><title>Not Found - ` + name +
		`</title></head><body><main><h1>Page not found</h1><p><a href="/">` + name +
		`</a></p></main></body></html>`
}

// SitemapPage is one page listed in the sitemap
type SitemapPage struct {
	ID        string
	Title     string
	UpdatedAt int64
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// RenderSitemapXML renders a sitemaps.org urlset for the site root and every
// page. lastmod is the UTC date of updated_at.
func RenderSitemapXML(base string, pages []SitemapPage) ([]byte, error) {
	base = strings.TrimRight(base, "/")
	urls := make([]sitemapURL, 0, len(pages)+1)
	urls = append(urls, sitemapURL{Loc: base + "/"})
	for _, p := range pages {
		u := sitemapURL{Loc: FullURL(base, p.ID, p.Title)}
		if p.UpdatedAt > 0 {
			u.LastMod = time.Unix(p.UpdatedAt, 0).UTC().Format(time.DateOnly)
		}
		urls = append(urls, u)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(sitemapURLSet{XMLNS: sitemapNamespace, URLs: urls}); err != nil {
		return nil, fmt.Errorf("encode sitemap: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
