package htmlprocessor

import (
	"fmt"
	"strings"
)

// TokenType identifies the kind of structural token produced by Tokenizer.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenComment
	TokenDeclaration
	TokenStartTag
	TokenEndTag
	TokenRawText
)

// String returns a readable token type name (used in logs and test failures)
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "eof"
	case TokenError:
		return "error"
	case TokenComment:
		return "comment"
	case TokenDeclaration:
		return "declaration"
	case TokenStartTag:
		return "start_tag"
	case TokenEndTag:
		return "end_tag"
	case TokenRawText:
		return "raw_text"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

// Token is one structural piece of an HTML document.
// Start and End are byte offsets into the tokenized input, End is exclusive.
// Name is lowercased for tags and raw text blocks (the owning element name).
type Token struct {
	Type        TokenType
	Name        string
	SelfClosing bool
	Start       int
	End         int
	Err         *ValidationError
}

var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// IsVoidElement reports whether a lowercased tag name never takes a closing tag.
func IsVoidElement(name string) bool {
	return voidElements[name]
}

// IsRawTextElement reports whether the element body is skipped verbatim.
func IsRawTextElement(name string) bool {
	return name == "script" || name == "style"
}

// Tokenizer is a forward scanner over the structural tokens of an HTML string.
// Text between tokens is not reported; consumers work with token offsets.
type Tokenizer struct {
	src string
	pos int

	// rawName is set after a non-self-closing script/style start tag
	rawName  string
	rawStart int

	err *ValidationError
}

// NewTokenizer creates a tokenizer positioned at the beginning of src.
func NewTokenizer(src string) *Tokenizer {
	return &Tokenizer{src: src}
}

// Next returns the next structural token. After TokenEOF or TokenError every
// further call returns the same terminal token type.
func (z *Tokenizer) Next() Token {
	if z.err != nil {
		return Token{Type: TokenError, Start: z.err.Offset, End: z.err.Offset, Err: z.err}
	}
	if z.rawName != "" {
		return z.readRawText()
	}

	for z.pos < len(z.src) {
		rel := strings.IndexByte(z.src[z.pos:], '<')
		if rel < 0 {
			break
		}
		start := z.pos + rel
		next := start + 1
		if next >= len(z.src) {
			break
		}

		switch c := z.src[next]; {
		case strings.HasPrefix(z.src[next:], "!--"):
			return z.readComment(start)
		case c == '!' || c == '?':
			return z.readDeclaration(start)
		case c == '/':
			if next+1 < len(z.src) && isASCIILetter(z.src[next+1]) {
				return z.readEndTag(start)
			}
		case isASCIILetter(c):
			return z.readStartTag(start)
		}

		// A lone '<' is text, keep scanning after it
		z.pos = next
	}

	z.pos = len(z.src)
	return Token{Type: TokenEOF, Start: len(z.src), End: len(z.src)}
}

// Offset returns the current scan position.
func (z *Tokenizer) Offset() int {
	return z.pos
}

func (z *Tokenizer) fail(offset int, format string, args ...interface{}) Token {
	z.err = &ValidationError{Message: fmt.Sprintf(format, args...), Offset: offset}
	z.pos = len(z.src)
	return Token{Type: TokenError, Start: offset, End: offset, Err: z.err}
}

func (z *Tokenizer) readComment(start int) Token {
	bodyStart := start + len("<!--")
	rel := strings.Index(z.src[bodyStart:], "-->")
	if rel < 0 {
		return z.fail(start, "unterminated comment at index %d", start)
	}
	z.pos = bodyStart + rel + len("-->")
	return Token{Type: TokenComment, Start: start, End: z.pos}
}

func (z *Tokenizer) readDeclaration(start int) Token {
	end := findTagEnd(z.src, start+2)
	if end < 0 {
		return z.fail(start, "unterminated declaration at index %d", start)
	}
	z.pos = end + 1
	return Token{Type: TokenDeclaration, Start: start, End: z.pos}
}

func (z *Tokenizer) readEndTag(start int) Token {
	name, afterName := scanTagName(z.src, start+2)
	end := findTagEnd(z.src, afterName)
	if end < 0 {
		return z.fail(start, "unterminated closing tag </%s> at index %d", name, start)
	}
	z.pos = end + 1
	return Token{Type: TokenEndTag, Name: name, Start: start, End: z.pos}
}

func (z *Tokenizer) readStartTag(start int) Token {
	name, afterName := scanTagName(z.src, start+1)
	end := findTagEnd(z.src, afterName)
	if end < 0 {
		return z.fail(start, "unterminated opening tag <%s> at index %d", name, start)
	}
	z.pos = end + 1
	tok := Token{
		Type:        TokenStartTag,
		Name:        name,
		SelfClosing: isSelfClosing(z.src, afterName, end),
		Start:       start,
		End:         z.pos,
	}
	if IsRawTextElement(name) && !tok.SelfClosing {
		z.rawName = name
		z.rawStart = start
	}
	return tok
}

// readRawText emits the verbatim body of a script/style element. The closing
// tag itself is left for the next call to report as a regular end tag.
func (z *Tokenizer) readRawText() Token {
	name := z.rawName
	bodyStart := z.pos
	closeStart := indexClosingTagFold(z.src, bodyStart, name)
	if closeStart < 0 {
		return z.fail(z.rawStart, "unterminated <%s> starting at index %d", name, z.rawStart)
	}
	z.rawName = ""
	z.pos = closeStart
	return Token{Type: TokenRawText, Name: name, Start: bodyStart, End: closeStart}
}

// scanTagName reads [A-Za-z0-9:-]+ starting at i and returns it lowercased.
func scanTagName(src string, i int) (string, int) {
	start := i
	for i < len(src) {
		c := src[i]
		if isASCIILetter(c) || (c >= '0' && c <= '9') || c == '-' || c == ':' {
			i++
			continue
		}
		break
	}
	return strings.ToLower(src[start:i]), i
}

// findTagEnd returns the index of the first '>' at or after i that is not
// inside a single or double quoted region, or -1.
func findTagEnd(src string, i int) int {
	var quote byte
	for ; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '>':
			return i
		}
	}
	return -1
}

// isSelfClosing reports whether the last non-space byte before the closing '>' is '/'.
func isSelfClosing(src string, from, end int) bool {
	for i := end - 1; i >= from; i-- {
		switch src[i] {
		case ' ', '\t', '\n', '\r', '\f':
			continue
		case '/':
			return true
		default:
			return false
		}
	}
	return false
}

// indexClosingTagFold finds "</name" (ASCII case-insensitive) at or after from,
// where name is not immediately followed by another name character.
func indexClosingTagFold(src string, from int, name string) int {
	needle := "</" + name
	for i := from; i+len(needle) <= len(src); i++ {
		if src[i] != '<' || !strings.EqualFold(src[i:i+len(needle)], needle) {
			continue
		}
		after := i + len(needle)
		if after < len(src) {
			c := src[after]
			if isASCIILetter(c) || (c >= '0' && c <= '9') || c == '-' || c == ':' {
				continue
			}
		}
		return i
	}
	return -1
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
