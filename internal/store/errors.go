package store

import (
	"errors"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
)

var (
	// ErrAlreadyExists is returned by Create when the sanitized id is taken
	ErrAlreadyExists = errors.New("page already exists")
	// ErrNotFound is returned when a page record or one of its files is missing
	ErrNotFound = errors.New("page not found")
	// ErrCorrupt is returned when meta.json (or index.json) fails to decode
	ErrCorrupt = errors.New("page data corrupt")
	// ErrUIDExhausted is returned when no unique id could be generated
	ErrUIDExhausted = errors.New("page uid generation exhausted")
	// ErrIO wraps filesystem failures; the underlying error stays reachable with errors.Is/As
	ErrIO = errors.New("storage i/o error")
)

// Error kinds reported by ErrorKind, also used as metric labels
const (
	KindOK            = "ok"
	KindAlreadyExists = "already_exists"
	KindNotFound      = "not_found"
	KindValidation    = "validation"
	KindCorrupt       = "corrupt"
	KindUIDExhausted  = "uid_exhausted"
	KindIO            = "io"
	KindUnknown       = "error"
)

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	var vErr *htmlprocessor.ValidationError
	switch {
	case err == nil:
		return KindOK
	case errors.As(err, &vErr):
		return KindValidation
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrCorrupt):
		return KindCorrupt
	case errors.Is(err, ErrUIDExhausted):
		return KindUIDExhausted
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}
