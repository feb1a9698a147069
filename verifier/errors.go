package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/regcheck/browser"
)

// Kind is the normalized failure category of a source.
type Kind string

const (
	// KindBlocked: the source answered with an access-denied page.
	KindBlocked Kind = "blocked"
	// KindTimeout: an element or page did not appear within its bound.
	KindTimeout Kind = "timeout"
	// KindUnavailable: the service-unavailable banner persisted after reloads.
	KindUnavailable Kind = "unavailable"
	// KindPage: anything else that went wrong while driving the page.
	KindPage Kind = "page"
)

// SourceError is a run-terminating failure of one source.
type SourceError struct {
	Kind    Kind
	Source  string
	Message string
	Err     error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verifier: %s [%s]: %s: %v", e.Source, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("verifier: %s [%s]: %s", e.Source, e.Kind, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// KindOf returns the category of err, or "" when err is not a SourceError.
func KindOf(err error) Kind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// SourceOf returns the source name carried by err, or "".
func SourceOf(err error) string {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Source
	}
	return ""
}

// IsBlocked reports whether err means the source is temporarily refusing us.
func IsBlocked(err error) bool { return KindOf(err) == KindBlocked }

// pageError categorizes a driver failure.
func pageError(source, msg string, err error) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, errReloaded) {
		return err
	}
	kind := KindPage
	if errors.Is(err, browser.ErrTimeout) {
		kind = KindTimeout
	}
	return &SourceError{Kind: kind, Source: source, Message: msg, Err: err}
}
