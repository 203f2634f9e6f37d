package types

import (
	"errors"
	"fmt"
)

// Sentinel errors of the resolution pipeline. Their messages are what the
// client sees in the "detail" field.
var (
	ErrInvalidURL     = errors.New("Invalid URL. Must start with http:// or https://")
	ErrGenericURL     = errors.New("Generic URL detected. Please provide a link to a specific post, reel, or video.")
	ErrNoInfo         = errors.New("Could not extract info. The URL may be invalid, private, or require login.")
	ErrEmptyCarousel  = errors.New("Empty playlist/carousel.")
	ErrEmptyFirstItem = errors.New("First entry in playlist is empty.")
	ErrNoDirectURL    = errors.New("Could not extract direct download URL. The media may be protected.")
	ErrDownloadFailed = errors.New("Could not download media.")
	ErrFileNotFound   = errors.New("File not found.")
)

// ResolveError carries a client-safe message and the underlying cause.
type ResolveError struct {
	Kind  error  // one of the sentinel errors above
	Stage string // pipeline stage that produced it
	Err   error  // cause, logged only
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *ResolveError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewResolveError wraps cause under the given sentinel.
func NewResolveError(kind error, stage string, cause error) *ResolveError {
	return &ResolveError{Kind: kind, Stage: stage, Err: cause}
}

// Detail returns the message that may be shown to a client for err.
// Causes that are not pipeline errors are reported as ErrNoInfo so that
// internal details never leak.
func Detail(err error) string {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Kind.Error()
	}
	for _, kind := range []error{
		ErrInvalidURL, ErrGenericURL, ErrNoInfo, ErrEmptyCarousel,
		ErrEmptyFirstItem, ErrNoDirectURL, ErrDownloadFailed, ErrFileNotFound,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ErrNoInfo.Error()
}
