package market

import (
    "errors"
    "fmt"
    "strings"
)

// ErrAllProvidersExhausted matches every ExhaustedError.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ExhaustedError is returned by the historical path when no provider produced a series.
type ExhaustedError struct {
    ISIN string
    Errs []error
}

func (e *ExhaustedError) Error() string {
    if len(e.Errs) == 0 {
        return fmt.Sprintf("%v for %s", ErrAllProvidersExhausted, e.ISIN)
    }
    return fmt.Sprintf("%v for %s: %s", ErrAllProvidersExhausted, e.ISIN, summarize(e.Errs))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllProvidersExhausted }

func (e *ExhaustedError) Unwrap() []error { return e.Errs }

func summarize(errs []error) string {
    msgs := make([]string, 0, len(errs))
    for _, err := range errs { msgs = append(msgs, err.Error()) }
    return strings.Join(msgs, "; ")
}
