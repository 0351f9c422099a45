package wire

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("malformed payload")

// DecodeError reports a truncated, oversized or otherwise malformed payload.
// Want and Have are byte counts when the failure is about length; both are zero otherwise.
type DecodeError struct {
	Field  string
	Reason string
	Want   int
	Have   int
}

func (e *DecodeError) Error() string {
	if e.Want != 0 || e.Have != 0 {
		return fmt.Sprintf("decode %s: %s (want %d bytes, have %d)", e.Field, e.Reason, e.Want, e.Have)
	}

	return fmt.Sprintf("decode %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrDecode) match.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func short(field string, want, have int) error {
	return &DecodeError{Field: field, Reason: "truncated", Want: want, Have: have}
}

// ExpectEmpty fails with a *DecodeError if rest still holds bytes after field was parsed.
func ExpectEmpty(field string, rest []byte) error {
	if len(rest) == 0 {
		return nil
	}

	return &DecodeError{Field: field, Reason: "trailing bytes", Want: 0, Have: len(rest)}
}
