package web

import (
	"net/url"
	"strings"

	"github.com/valyala/fasthttp"
)

// PagesPrefix is the path prefix of rendered pages
const PagesPrefix = "/pages/"

// EscapeTitle percent-encodes a title for use in a page slug.
// '+' separates the title from the id, so it is encoded as %2B.
func EscapeTitle(title string) string {
	return strings.ReplaceAll(url.PathEscape(title), "+", "%2B")
}

// BuildPageURL returns the site-relative URL of a page:
// /pages/<escaped-title>+<id>
func BuildPageURL(id, title string) string {
	return PagesPrefix + EscapeTitle(title) + "+" + id
}

// FullURL joins base with the page URL. An empty base yields a relative URL.
func FullURL(base, id, title string) string {
	return strings.TrimRight(base, "/") + BuildPageURL(id, title)
}

// ParseIDFromSlug extracts the id after the last '+' of a slug. A slug
// without '+' is taken to be a bare id.
func ParseIDFromSlug(slug string) (string, bool) {
	id := slug
	if i := strings.LastIndexByte(slug, '+'); i >= 0 {
		id = slug[i+1:]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// ParseIDFromEscapedSlug is ParseIDFromSlug for a slug still in its
// percent-encoded form. Titles encode '+' as %2B, so the last literal '+'
// is the separator; only the id is decoded.
func ParseIDFromEscapedSlug(rawSlug string) (string, bool) {
	escaped, ok := ParseIDFromSlug(rawSlug)
	if !ok {
		return "", false
	}
	id, err := url.PathUnescape(escaped)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// RequestBaseURL derives "<scheme>://<host>" from the Host and
// X-Forwarded-Proto headers, falling back to siteURL when the request has
// no host.
func RequestBaseURL(ctx *fasthttp.RequestCtx, siteURL string) string {
	host := strings.TrimSpace(string(ctx.Request.Header.Host()))
	if host == "" {
		return strings.TrimRight(strings.TrimSpace(siteURL), "/")
	}
	scheme := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Forwarded-Proto")))
	if scheme == "" {
		scheme = "http"
	}
	return strings.TrimRight(scheme+"://"+host, "/")
}
