// Package requestid assigns identifiers to incoming HTTP requests.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	// HeaderName carries a client-chosen request id and echoes the assigned one
	HeaderName = "X-Request-ID"
	// MaxLength matches the length of a UUID string
	MaxLength = 36
	// PrefixLength is the length of the random hex prefix
	PrefixLength = 5
	// MaxCustomLength is what remains of MaxLength after the prefix and hyphen
	MaxCustomLength = MaxLength - PrefixLength - 1
)

// Generate builds a request id from an optional client value.
// The client value is reduced to [a-zA-Z0-9-] and prefixed with 5 random hex
// characters: "{prefix}-{custom}". An empty result falls back to a UUID.
func Generate(custom string) string {
	cleaned := sanitize(custom)
	if cleaned == "" {
		return uuid.New().String()
	}
	if len(cleaned) > MaxCustomLength {
		cleaned = strings.TrimRight(cleaned[:MaxCustomLength], "-")
	}
	return randomPrefix() + "-" + cleaned
}

// FromRequest assigns an id to ctx from its X-Request-ID header and sets the
// same header on the response.
func FromRequest(ctx *fasthttp.RequestCtx) string {
	id := Generate(string(ctx.Request.Header.Peek(HeaderName)))
	ctx.Response.Header.Set(HeaderName, id)
	return id
}

// sanitize maps spaces to hyphens, drops other disallowed characters and
// collapses hyphen runs.
func sanitize(s string) string {
	var b strings.Builder
	lastHyphen := true // drops leading hyphens
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
			lastHyphen = false
		case c == '-' || c == ' ':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func randomPrefix() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()[:PrefixLength]
	}
	return hex.EncodeToString(buf)[:PrefixLength]
}
