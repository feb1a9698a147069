// Package standards finds standard references (ГОСТ numbers) in document
// text and reports their lifecycle status from a catalogue.
package standards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hazyhaar/regcheck/document"
)

// ErrNotFound is returned by a Checker when the catalogue has no entry.
var ErrNotFound = errors.New("standards: reference not found")

// StatusUnknown is reported for references the catalogue does not know.
const StatusUnknown = "Не найден"

// Checker returns the catalogue status of one normalized reference.
type Checker interface {
	Status(ctx context.Context, ref string) (string, error)
}

// refPattern matches "ГОСТ 12.2.007.0-75", "ГОСТ Р 52161.1-2004",
// "ГОСТ IEC 60335-1-2015", "ГОСТ Р МЭК 60065-2002" and similar.
var refPattern = regexp.MustCompile(`ГОСТ(?:\s+(?:[РP]|ISO/IEC|IEC|ISO|ИСО/МЭК|ИСО|МЭК|EN|CISPR))*\s*\d+(?:\.\d+)*(?:\s*-\s*\d+)*`)

// Extract returns the distinct references found in texts, normalized, in
// order of first appearance.
func Extract(texts ...string) []string {
	joined := strings.ToUpper(strings.Join(texts, " "))
	seen := make(map[string]bool)
	var refs []string
	for _, m := range refPattern.FindAllString(joined, -1) {
		ref := Normalize(m)
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

var gluedNumber = regexp.MustCompile(`^ГОСТ(\d)`)

// Normalize collapses whitespace, removes spaces around dashes, and maps the
// Latin P designator to its Cyrillic form.
func Normalize(ref string) string {
	ref = strings.Join(strings.Fields(strings.ToUpper(ref)), " ")
	ref = gluedNumber.ReplaceAllString(ref, "ГОСТ $1")
	ref = strings.ReplaceAll(ref, " - ", "-")
	ref = strings.ReplaceAll(ref, " -", "-")
	ref = strings.ReplaceAll(ref, "- ", "-")
	return strings.Replace(ref, "ГОСТ P ", "ГОСТ Р ", 1)
}

// Verifier resolves statuses through a Checker, querying each distinct
// reference at most once per run.
type Verifier struct {
	checker Checker
	memo    map[string]string
	log     *slog.Logger
}

// NewVerifier returns a Verifier with an empty memo.
func NewVerifier(c Checker, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{checker: c, memo: make(map[string]string), log: logger}
}

// Verify extracts references from the regulation and standards fields and
// returns their distinct statuses joined by a space. No reference yields
// document.Unavailable.
func (v *Verifier) Verify(ctx context.Context, regulation, standards string) (string, error) {
	refs := Extract(regulation, standards)
	if len(refs) == 0 {
		return document.Unavailable, nil
	}

	var statuses []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		st, err := v.status(ctx, ref)
		if err != nil {
			return "", err
		}
		if !seen[st] {
			seen[st] = true
			statuses = append(statuses, st)
		}
	}
	return strings.Join(statuses, " "), nil
}

func (v *Verifier) status(ctx context.Context, ref string) (string, error) {
	if st, ok := v.memo[ref]; ok {
		return st, nil
	}
	st, err := v.checker.Status(ctx, ref)
	switch {
	case errors.Is(err, ErrNotFound):
		v.log.Warn("standards: not in catalogue", "ref", ref)
		st = StatusUnknown
	case err != nil:
		return "", fmt.Errorf("standards: status %s: %w", ref, err)
	}
	v.memo[ref] = st
	return st, nil
}
