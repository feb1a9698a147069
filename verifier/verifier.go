// Package verifier drives the web sources that hold declarations,
// certificates and registration records, producing one Result per document.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/regcheck/address"
	"github.com/hazyhaar/regcheck/browser"
	"github.com/hazyhaar/regcheck/document"
	"github.com/hazyhaar/regcheck/registry"
)

// Verifier checks one document against its source.
type Verifier interface {
	Source() string
	Verify(ctx context.Context, rec document.Record, cache *registry.Cache) (document.Result, error)
}

// AddressLookup resolves registration numbers through the run cache.
type AddressLookup interface {
	Address(ctx context.Context, reg string, cache *registry.Cache) (string, error)
}

// StandardsChecker reports the status of the standards a document cites.
type StandardsChecker interface {
	Verify(ctx context.Context, regulation, standards string) (string, error)
}

// Deps are the collaborators shared by every verifier.
type Deps struct {
	Lookup     AddressLookup
	Standards  StandardsChecker
	Comparator *address.Comparator
	Inspector  string
	Now        func() time.Time
	Logger     *slog.Logger
}

func (d *Deps) defaults() {
	if d.Comparator == nil {
		d.Comparator = address.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// Guard describes the page states every source can fall into.
type Guard struct {
	// Forbidden matches an access-denied page body.
	Forbidden string
	// Unavailable matches the service-unavailable dialog; Dismiss closes it.
	Unavailable string
	Dismiss     string
	// MaxRecoveries bounds dismiss-and-reload cycles per document. Default: 3.
	MaxRecoveries int
}

func (g *Guard) defaults() {
	if g.Forbidden == "" {
		g.Forbidden = "body.error-403, .access-denied"
	}
	if g.Unavailable == "" {
		g.Unavailable = ".modal-error, .service-unavailable"
	}
	if g.Dismiss == "" {
		g.Dismiss = ".modal-error button, .service-unavailable button"
	}
	if g.MaxRecoveries <= 0 {
		g.MaxRecoveries = 3
	}
}

// errReloaded means the page was reloaded to recover and the current step
// must start over.
var errReloaded = errors.New("verifier: page reloaded")

// forbiddenTitles are title fragments of access-denied pages.
var forbiddenTitles = []string{"403", "forbidden", "access denied", "доступ запрещ"}

// base holds what the verifier variants share: the driver, the page guard
// and the final registry/standards/address steps.
type base struct {
	name       string
	drv        browser.Driver
	guard      Guard
	deps       Deps
	recoveries int
}

func (b *base) Source() string { return b.name }

// check inspects the page for blocking states. An access-denied page yields
// a KindBlocked error. The unavailable dialog is dismissed and the page
// reloaded, returning errReloaded, until MaxRecoveries is exceeded.
func (b *base) check(ctx context.Context) error {
	title, err := b.drv.Title(ctx)
	if err != nil {
		return pageError(b.name, "read title", err)
	}
	lower := strings.ToLower(title)
	for _, marker := range forbiddenTitles {
		if strings.Contains(lower, marker) {
			return &SourceError{Kind: KindBlocked, Source: b.name, Message: "access denied: " + title}
		}
	}
	if denied, err := b.drv.Visible(ctx, b.guard.Forbidden); err != nil {
		return pageError(b.name, "check access", err)
	} else if denied {
		return &SourceError{Kind: KindBlocked, Source: b.name, Message: "access denied page"}
	}

	down, err := b.drv.Visible(ctx, b.guard.Unavailable)
	if err != nil {
		return pageError(b.name, "check availability", err)
	}
	if !down {
		return nil
	}
	b.recoveries++
	if b.recoveries > b.guard.MaxRecoveries {
		return &SourceError{Kind: KindUnavailable, Source: b.name, Message: "service unavailable after reloads"}
	}
	b.deps.Logger.Warn("verifier: service unavailable, reloading",
		"source", b.name, "attempt", b.recoveries)
	if err := b.drv.Click(ctx, b.guard.Dismiss); err != nil {
		b.deps.Logger.Debug("verifier: dismiss failed", "source", b.name, "error", err)
	}
	if err := b.drv.Reload(ctx); err != nil {
		return pageError(b.name, "reload", err)
	}
	return errReloaded
}

// await polls cond, checking the page guard on every poll.
func (b *base) await(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	return browser.Until(ctx, timeout, func(ctx context.Context) (bool, error) {
		if err := b.check(ctx); err != nil {
			return false, err
		}
		return cond(ctx)
	})
}

// act runs one element action bounded by timeout.
func (b *base) act(ctx context.Context, timeout time.Duration, msg string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return pageError(b.name, msg, fn(ctx))
}

// retry runs step again each time it reports errReloaded.
func (b *base) retry(step func() error) error {
	for {
		err := step()
		if !errors.Is(err, errReloaded) {
			return err
		}
	}
}

// stamp marks a finished result with inspector and time.
func (b *base) stamp(res document.Result) document.Result {
	res.Inspector = b.deps.Inspector
	res.CheckedAt = b.deps.Now()
	return res
}

// complete resolves registry addresses for both parties, checks the cited
// standards and sets the address verdict.
func (b *base) complete(ctx context.Context, res document.Result, cache *registry.Cache) (document.Result, error) {
	for _, p := range []*document.Party{&res.Applicant, &res.Manufacturer} {
		if p.RegNumber == "" || p.RegNumber == document.Unavailable {
			p.RegNumber = document.NoRegNumber
		}
		addr, err := b.deps.Lookup.Address(ctx, p.RegNumber, cache)
		if err != nil {
			return res, pageError(b.name, "registry lookup", err)
		}
		p.RegistryAddress = addr
	}

	if b.deps.Standards != nil {
		st, err := b.deps.Standards.Verify(ctx, res.Regulation, res.Standards)
		if err != nil {
			return res, pageError(b.name, "standards", err)
		}
		res.StandardStatus = st
	} else {
		res.StandardStatus = document.Unavailable
	}

	res.Verdict = b.deps.Comparator.Verdict(res.Applicant, res.Manufacturer)
	return b.stamp(res), nil
}

// sameNumber compares identifiers ignoring case and whitespace runs.
func sameNumber(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

// statusIs compares status strings ignoring case, surrounding space and ё/е.
func statusIs(got, want string) bool {
	fold := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "ё", "е")
	}
	return fold(got) == fold(want)
}
