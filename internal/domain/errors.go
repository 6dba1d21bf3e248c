package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidQuote = errors.New("invalid quote")
	ErrShutdown     = errors.New("engine shut down")
	ErrLockHeld     = errors.New("lock already held")
)

// ValidationError explains why an incoming quote was rejected. It matches
// errors.Is(err, ErrInvalidQuote) so callers can branch without inspecting
// the concrete type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid quote: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidQuote }

// AmbiguousMatchError signals that fuzzy resolution found more than one
// candidate within the ambiguity margin. The resolver settles it with a
// deterministic tie-break and logs the condition; it is never returned to
// callers.
type AmbiguousMatchError struct {
	Label      string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %q: candidates %s", e.Label, strings.Join(e.Candidates, ", "))
}
