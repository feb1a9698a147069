package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/regcheck/document"
)

// ErrAddressNotFound is returned by a Source when the registry has no entity
// for the registration number.
var ErrAddressNotFound = errors.New("registry: address not found")

// ErrChallenged is returned by a Source whose query ran into an
// anti-automation challenge.
var ErrChallenged = errors.New("registry: challenge shown")

// Source performs one external address query.
type Source interface {
	Name() string
	Address(ctx context.Context, reg string) (string, error)
}

// ChallengeDetector reports whether an anti-automation challenge currently
// blocks the fast lookup path. It loads the search form itself.
type ChallengeDetector interface {
	Challenged(ctx context.Context) (bool, error)
}

// Observer receives lookup events. Implemented by pipeline metrics.
type Observer interface {
	CacheHit()
	Query(source string)
}

// Lookup answers registration-number queries through a cache and one of two
// strategies. Fallback is used when Detector reports a challenge on the
// search form, or when Primary meets one after submitting. Any other
// Primary error is returned without trying Fallback.
type Lookup struct {
	Primary  Source
	Fallback Source
	Detector ChallengeDetector
	Observer Observer
	Logger   *slog.Logger
}

// Address returns the registry address for reg. An empty or sentinel reg is
// returned as the sentinel without any query. A registry answer of "not
// found" is cached as document.Unavailable.
func (l *Lookup) Address(ctx context.Context, reg string, cache *Cache) (string, error) {
	reg = key(reg)
	if reg == "" {
		return document.NoRegNumber, nil
	}
	if !usable(reg) {
		return reg, nil
	}
	if addr, ok := cache.Get(reg); ok {
		if l.Observer != nil {
			l.Observer.CacheHit()
		}
		return addr, nil
	}

	src, err := l.choose(ctx)
	if err != nil {
		return "", err
	}
	addr, err := l.query(ctx, src, reg)
	if errors.Is(err, ErrChallenged) && src != l.Fallback && l.Fallback != nil {
		l.logger().Info("registry: challenge after submit, using fallback",
			"reg", reg, "source", l.Fallback.Name())
		src = l.Fallback
		addr, err = l.query(ctx, src, reg)
	}
	switch {
	case errors.Is(err, ErrAddressNotFound):
		l.logger().Warn("registry: not found", "reg", reg, "source", src.Name())
		addr = document.Unavailable
	case err != nil:
		return "", fmt.Errorf("registry: %s lookup %s: %w", src.Name(), reg, err)
	}
	cache.Put(reg, addr)
	return addr, nil
}

func (l *Lookup) query(ctx context.Context, src Source, reg string) (string, error) {
	if l.Observer != nil {
		l.Observer.Query(src.Name())
	}
	return src.Address(ctx, reg)
}

func (l *Lookup) choose(ctx context.Context) (Source, error) {
	if l.Fallback == nil || l.Detector == nil {
		return l.Primary, nil
	}
	challenged, err := l.Detector.Challenged(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: challenge check: %w", err)
	}
	if challenged {
		l.logger().Info("registry: challenge visible, using fallback", "source", l.Fallback.Name())
		return l.Fallback, nil
	}
	return l.Primary, nil
}

func (l *Lookup) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
