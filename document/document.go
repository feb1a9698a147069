// Package document defines the unit of work of the verification pipeline:
// a checklist Record, the Result collected for it from the external sources,
// and the Row that pairs them in the result table.
package document

import "time"

// Sentinel values written into result cells. They stand for an intentionally
// absent value and are distinct from errors.
const (
	// NoRegNumber marks a registrant without a registration number (OGRN).
	NoRegNumber = "no registration number"
	// Unavailable fills fields a source did not provide or could not be read.
	Unavailable = "-"
	// StatusNotFound is the final status when no listed row qualifies.
	StatusNotFound = "Not found, verify number and date"
)

// Verdict is the outcome of reconciling registrant addresses.
type Verdict string

const (
	VerdictNotEvaluated Verdict = ""
	VerdictMatch        Verdict = "Match"
	VerdictMismatch     Verdict = "Mismatch"
	VerdictNoRegNumber  Verdict = "No-Registration-Number"
)

// ParseVerdict maps a stored cell back to a Verdict. Unknown text is
// treated as not evaluated.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictMatch, VerdictMismatch, VerdictNoRegNumber:
		return Verdict(s)
	}
	return VerdictNotEvaluated
}

// Record is one checklist row as supplied by the inventory feed.
type Record struct {
	// Index is the zero-based position in the checklist and the unit of
	// checkpoint progress.
	Index        int
	ProductCode  string
	ProductName  string
	Identifier   string
	ExpiresOn    string // dd.mm.yyyy as displayed by the sources
	Manufacturer string
	Applicant    string
}

// Party is a registrant named on a document.
type Party struct {
	RegNumber string
	// Address is the address as stated by the document source.
	Address string
	// RegistryAddress is the official address found by registration number.
	RegistryAddress string
}

// HasRegNumber reports whether the party carries a usable registration number.
func (p Party) HasRegNumber() bool {
	return p.RegNumber != "" && p.RegNumber != NoRegNumber && p.RegNumber != Unavailable
}

// Result holds the attributes collected while verifying one document.
type Result struct {
	Status         string
	Applicant      Party
	Manufacturer   Party
	DocumentName   string
	Regulation     string
	Standards      string
	StandardStatus string
	Verdict        Verdict
	Inspector      string
	CheckedAt      time.Time
}

// Placeholder returns a result carrying only status, with every other
// source field set to Unavailable.
func Placeholder(status string) Result {
	return Result{
		Status:         status,
		Applicant:      Party{RegNumber: Unavailable, Address: Unavailable, RegistryAddress: Unavailable},
		Manufacturer:   Party{RegNumber: Unavailable, Address: Unavailable, RegistryAddress: Unavailable},
		DocumentName:   Unavailable,
		Regulation:     Unavailable,
		Standards:      Unavailable,
		StandardStatus: Unavailable,
		Verdict:        VerdictNotEvaluated,
	}
}

// Row is one line of the result table. Rows are never mutated after they
// are appended.
type Row struct {
	Record Record
	Result Result
	// Verified is false for rows passed through without verification
	// (unclassifiable identifiers).
	Verified bool
}
