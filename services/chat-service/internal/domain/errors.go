package domain

import "errors"

// input
var (
	ErrInvalidInput        = errors.New("invalid messages")
	ErrMissingImageContent = errors.New("image message has no image content")
	ErrOCREmptyResult      = errors.New("no text recognized in image")
)

// access
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("permission denied")
	ErrInvalidOperation = errors.New("only assistant messages can be regenerated")
	ErrNoUserContext    = errors.New("no user message found to regenerate from")
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindMissingImageContent
	KindOCREmptyResult
	KindNotFound
	KindForbidden
	KindInvalidOperation
	KindNoUserContext
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrMissingImageContent, KindMissingImageContent},
	{ErrOCREmptyResult, KindOCREmptyResult},
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidOperation, KindInvalidOperation},
	{ErrNoUserContext, KindNoUserContext},
}

// KindOf reports the kind of err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
