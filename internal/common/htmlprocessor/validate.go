package htmlprocessor

import (
	"fmt"
	"strings"
)

// ValidationError describes why an HTML document was rejected.
// Offset is the byte offset the problem is attributed to.
type ValidationError struct {
	Message string
	Offset  int
}

func (e *ValidationError) Error() string {
	return "invalid html: " + e.Message
}

type openTag struct {
	name   string
	offset int
}

// Validate checks that html is non-empty, free of NUL bytes and structurally
// balanced: every non-void, non-self-closing tag is closed in order and every
// tag, comment and declaration is terminated. It is a linter, not a parser:
// attribute syntax is only inspected as far as quoting affects tag ends.
func Validate(html string) error {
	if strings.TrimSpace(html) == "" {
		return &ValidationError{Message: "html is empty or whitespace", Offset: 0}
	}
	if pos := strings.IndexByte(html, 0); pos >= 0 {
		return &ValidationError{
			Message: fmt.Sprintf("html contains NUL byte at index %d", pos),
			Offset:  pos,
		}
	}

	z := NewTokenizer(html)
	var stack []openTag

	for {
		tok := z.Next()
		switch tok.Type {
		case TokenEOF:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				return &ValidationError{
					Message: fmt.Sprintf("unclosed tag <%s> starting at index %d", top.name, top.offset),
					Offset:  top.offset,
				}
			}
			return nil

		case TokenError:
			return tok.Err

		case TokenStartTag:
			if tok.SelfClosing || IsVoidElement(tok.Name) {
				continue
			}
			stack = append(stack, openTag{name: tok.Name, offset: tok.Start})

		case TokenEndTag:
			if len(stack) == 0 {
				return &ValidationError{
					Message: fmt.Sprintf("unexpected closing tag </%s> at index %d", tok.Name, tok.Start),
					Offset:  tok.Start,
				}
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.name != tok.Name {
				return &ValidationError{
					Message: fmt.Sprintf("mismatched closing tag </%s> at index %d, expected </%s> for tag opened at index %d",
						tok.Name, tok.Start, top.name, top.offset),
					Offset: tok.Start,
				}
			}
		}
	}
}
