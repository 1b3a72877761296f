package provider

import (
    "errors"
    "fmt"
)

// ErrUnavailable matches every UnavailableError.
var ErrUnavailable = errors.New("provider unavailable")

// ErrNoData is wrapped by adapters when a provider answers without data for a symbol.
var ErrNoData = errors.New("no data")

// UnavailableError means the provider was skipped without a network call.
type UnavailableError struct {
    Provider Name
    Reason   string
}

func (e *UnavailableError) Error() string {
    return fmt.Sprintf("%s unavailable: %s", e.Provider, e.Reason)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable builds an UnavailableError.
func Unavailable(p Name, reason string) error {
    return &UnavailableError{Provider: p, Reason: reason}
}

// FetchError wraps any failure of an adapter call: transport, status, decoding or
// a provider specific "no data" answer.
type FetchError struct {
    Provider Name
    Op       string
    Err      error
}

func (e *FetchError) Error() string {
    return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fail wraps err into a FetchError. Errors that already are FetchErrors are returned as is.
func Fail(p Name, op string, err error) error {
    if err == nil { return nil }
    var fe *FetchError
    if errors.As(err, &fe) { return err }
    return &FetchError{Provider: p, Op: op, Err: err}
}
