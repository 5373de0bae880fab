package htmlprocessor

import (
	"strings"

	"golang.org/x/net/html"
)

// SEOTags carries the head metadata rendered by InjectSEO.
type SEOTags struct {
	Title       string
	Description string
	Keywords    []string
}

// Render returns the <title> and <meta> tags for t with escaped values.
// Keywords are trimmed, blank ones dropped, and the keywords tag is omitted
// when none remain.
func (t SEOTags) Render() string {
	var b strings.Builder
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(t.Title))
	b.WriteString("</title>")
	b.WriteString(`<meta name="description" content="`)
	b.WriteString(html.EscapeString(t.Description))
	b.WriteString(`">`)

	if keywords := joinKeywords(t.Keywords); keywords != "" {
		b.WriteString(`<meta name="keywords" content="`)
		b.WriteString(html.EscapeString(keywords))
		b.WriteString(`">`)
	}
	return b.String()
}

func joinKeywords(keywords []string) string {
	kept := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kept = append(kept, k)
		}
	}
	return strings.Join(kept, ", ")
}

// headLocation holds the landmarks InjectSEO needs, -1 when absent
type headLocation struct {
	contentStart int // first byte after <head ...>
	contentEnd   int // first byte of </head>
	afterHTML    int // first byte after <html ...>
	beforeBody   int // first byte of <body ...>
}

func locateHead(src string) headLocation {
	loc := headLocation{contentStart: -1, contentEnd: -1, afterHTML: -1, beforeBody: -1}
	z := NewTokenizer(src)
	inHead := false

	for {
		tok := z.Next()
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}

		switch {
		case tok.Type == TokenStartTag && tok.Name == "html" && loc.afterHTML < 0:
			loc.afterHTML = tok.End
		case tok.Type == TokenStartTag && tok.Name == "body" && loc.beforeBody < 0:
			loc.beforeBody = tok.Start
		case tok.Type == TokenStartTag && tok.Name == "head" && !tok.SelfClosing && !inHead && loc.contentEnd < 0:
			inHead = true
			loc.contentStart = tok.End
		case tok.Type == TokenEndTag && tok.Name == "head" && inHead:
			loc.contentEnd = tok.Start
			return loc
		}
	}

	// An unclosed <head> is not usable as an insertion region
	loc.contentStart = -1
	loc.contentEnd = -1
	return loc
}

// InjectSEO rewrites src so that its head carries exactly one title, one
// description meta and (when keywords are present) one keywords meta built
// from tags. Existing SEO tags inside <head> are removed first, so repeated
// injection with the same tags yields the same head. When no usable head
// exists a new one is inserted after <html>, else before <body>, else at the
// start of the document. InjectSEO never fails.
func InjectSEO(src string, tags SEOTags) string {
	additions := tags.Render()
	loc := locateHead(src)

	if loc.contentStart >= 0 && loc.contentEnd >= loc.contentStart {
		cleaned := StripSEOTags(src[loc.contentStart:loc.contentEnd])
		var b strings.Builder
		b.Grow(len(src) + len(additions))
		b.WriteString(src[:loc.contentStart])
		b.WriteString(additions)
		b.WriteString(cleaned)
		b.WriteString(src[loc.contentEnd:])
		return b.String()
	}

	head := "<head>" + additions + "</head>"
	if loc.afterHTML >= 0 {
		return src[:loc.afterHTML] + head + src[loc.afterHTML:]
	}
	if loc.beforeBody >= 0 {
		return src[:loc.beforeBody] + head + src[loc.beforeBody:]
	}
	return head + src
}

// StripSEOTags removes every <title>...</title> element and every
// <meta name="description"> / <meta name="keywords"> tag from a head fragment.
// Name matching is case-insensitive and accepts quoted or unquoted values.
func StripSEOTags(head string) string {
	var b strings.Builder
	last := 0
	cut := func(start, end int) {
		b.WriteString(head[last:start])
		last = end
	}

	z := NewTokenizer(head)
scan:
	for {
		tok := z.Next()
		switch {
		case tok.Type == TokenEOF || tok.Type == TokenError:
			break scan

		case tok.Type == TokenStartTag && tok.Name == "title":
			if tok.SelfClosing {
				cut(tok.Start, tok.End)
				continue
			}
			for {
				inner := z.Next()
				if inner.Type == TokenEOF || inner.Type == TokenError {
					// unterminated title is left in place
					break scan
				}
				if inner.Type == TokenEndTag && inner.Name == "title" {
					cut(tok.Start, inner.End)
					break
				}
			}

		case tok.Type == TokenStartTag && tok.Name == "meta":
			name, ok := AttrValue(head[tok.Start:tok.End], "name")
			if !ok {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "description", "keywords":
				cut(tok.Start, tok.End)
			}
		}
	}

	b.WriteString(head[last:])
	return b.String()
}

// AttrValue returns the raw value of attribute attr in a single start tag
// such as `<meta name=description content="x">`. Attribute names are matched
// case-insensitively; values may be double quoted, single quoted or bare.
// Entities in the value are not decoded.
func AttrValue(tag, attr string) (string, bool) {
	i := 0
	if strings.HasPrefix(tag, "<") {
		i = 1
	}
	_, i = scanTagName(tag, i)

	for i < len(tag) {
		for i < len(tag) && (isSpace(tag[i]) || tag[i] == '/') {
			i++
		}
		if i >= len(tag) || tag[i] == '>' {
			break
		}

		nameStart := i
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '=' && tag[i] != '>' && tag[i] != '/' {
			i++
		}
		name := tag[nameStart:i]
		if name == "" {
			// stray byte such as a lone quote, step over it
			i++
			continue
		}

		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		value := ""
		if i < len(tag) && tag[i] == '=' {
			i++
			for i < len(tag) && isSpace(tag[i]) {
				i++
			}
			if i < len(tag) && (tag[i] == '"' || tag[i] == '\'') {
				quote := tag[i]
				i++
				valueStart := i
				for i < len(tag) && tag[i] != quote {
					i++
				}
				value = tag[valueStart:i]
				if i < len(tag) {
					i++
				}
			} else {
				valueStart := i
				for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' {
					i++
				}
				value = tag[valueStart:i]
			}
		}

		if strings.EqualFold(name, attr) {
			return value, true
		}
	}
	return "", false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
