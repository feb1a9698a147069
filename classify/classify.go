// Package classify decides which verification strategy applies to a
// document identifier from its lexical form.
package classify

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/regcheck/document"
)

// Kind is the classification outcome tag.
type Kind int

const (
	Unclassifiable Kind = iota
	Declaration
	Certificate
	RegistrationRecord
	PreviouslySeen
)

func (k Kind) String() string {
	switch k {
	case Declaration:
		return "declaration"
	case Certificate:
		return "certificate"
	case RegistrationRecord:
		return "registration_record"
	case PreviouslySeen:
		return "previously_seen"
	default:
		return "unclassifiable"
	}
}

// Kinds lists the outcomes that route to a source verifier.
var Kinds = []Kind{Declaration, Certificate, RegistrationRecord}

// Outcome is the result of classifying one identifier.
type Outcome struct {
	Kind Kind
	// Previous is the stored result when Kind is PreviouslySeen.
	Previous *document.Row
}

// Seen maps canonical identifiers (see Canonical) already present in the
// result table to their row.
type Seen map[string]*document.Row

// The grammars are disjoint by construction: declarations carry the "Д-"
// infix, certificates "С-", registration records have no scheme prefix.
// Letters are accepted in both Latin and Cyrillic form.
var (
	declarationRe = regexp.MustCompile(
		`^(?:ЕАЭС\s*(?:N|№)?\s*RU|РОСС\s*RU)\s*Д-[A-ZА-Я]{2}\.[A-ZА-Я0-9]{4}\.[A-ZА-Я]\.\d{5}(?:/\d{2})?$`)
	certificateRe = regexp.MustCompile(
		`^(?:ЕАЭС\s*(?:N|№)?\s*RU|РОСС\s*RU)\s*[СC]-[A-ZА-Я]{2}\.[A-ZА-Я0-9]{4}\.[A-ZА-Я]\.\d{5}(?:/\d{2})?$`)
	registrationRe = regexp.MustCompile(
		`^[A-ZА-Я]{2}\.\d{2}\.\d{2}\.\d{2}\.\d{3}\.[A-ZА-Я]\.\d{6}\.\d{2}\.\d{2}$`)
)

var grammars = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{Declaration, declarationRe},
	{Certificate, certificateRe},
	{RegistrationRecord, registrationRe},
}

// Canonical trims and collapses whitespace and upper-cases the identifier.
func Canonical(id string) string {
	return strings.ToUpper(strings.Join(strings.Fields(id), " "))
}

// Classify returns the outcome for identifier. An identifier already in seen
// is PreviouslySeen regardless of its form. Classify never fails: no matching
// grammar yields Unclassifiable.
func Classify(identifier string, seen Seen) Outcome {
	id := Canonical(identifier)
	if id == "" {
		return Outcome{Kind: Unclassifiable}
	}
	if row, ok := seen[id]; ok {
		return Outcome{Kind: PreviouslySeen, Previous: row}
	}
	for _, g := range grammars {
		if g.re.MatchString(id) {
			return Outcome{Kind: g.kind}
		}
	}
	return Outcome{Kind: Unclassifiable}
}
