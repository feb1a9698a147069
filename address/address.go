// Package address canonicalises free-text postal addresses and compares them.
//
// Registries disagree wildly on abbreviation style and token order, so two
// addresses are compared as character bags: designators such as "ул.",
// "улица", "д." are stripped, whitespace removed and the remaining runes
// sorted. Reordering and abbreviation variance are tolerated; a missing or
// extra house-number digit is not.
package address

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/regcheck/document"
)

//go:embed abbreviations.yaml
var defaultDictionary []byte

// Dictionary lists the designators removed before comparison.
type Dictionary struct {
	Tokens  []string `yaml:"tokens"`
	Phrases []string `yaml:"phrases"`
}

// ParseDictionary decodes a YAML dictionary.
func ParseDictionary(data []byte) (Dictionary, error) {
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Dictionary{}, fmt.Errorf("address: parse dictionary: %w", err)
	}
	if len(d.Tokens) == 0 && len(d.Phrases) == 0 {
		return Dictionary{}, fmt.Errorf("address: dictionary is empty")
	}
	return d, nil
}

// LoadDictionary reads a YAML dictionary file.
func LoadDictionary(path string) (Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dictionary{}, fmt.Errorf("address: read dictionary: %w", err)
	}
	return ParseDictionary(data)
}

// Comparator normalises and compares addresses with a fixed dictionary.
// It is immutable and safe for concurrent use.
type Comparator struct {
	tokens   map[string]struct{}
	prefixes []string // tokens, longest first
	phrases  []string
}

// New builds a Comparator from d. Entries are upper-cased.
func New(d Dictionary) *Comparator {
	c := &Comparator{tokens: make(map[string]struct{}, len(d.Tokens))}
	for _, t := range d.Tokens {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := c.tokens[t]; dup {
			continue
		}
		c.tokens[t] = struct{}{}
		c.prefixes = append(c.prefixes, t)
	}
	sort.SliceStable(c.prefixes, func(i, j int) bool {
		return utf8.RuneCountInString(c.prefixes[i]) > utf8.RuneCountInString(c.prefixes[j])
	})
	for _, p := range d.Phrases {
		p = strings.Join(strings.Fields(strings.ToUpper(p)), " ")
		if p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	return c
}

var std = func() *Comparator {
	d, err := ParseDictionary(defaultDictionary)
	if err != nil {
		panic(err)
	}
	return New(d)
}()

// Default returns the comparator built from the embedded dictionary.
func Default() *Comparator { return std }

var punctuation = strings.NewReplacer(".", " ", "(", " ", ")", " ", ",", " ")

// Normalize returns the canonical form of addr: the sorted multiset of its
// characters once case, punctuation, whitespace and designators are removed.
func (c *Comparator) Normalize(addr string) string {
	s := strings.ToUpper(addr)
	s = strings.ReplaceAll(s, "Ё", "Е")
	s = punctuation.Replace(s)
	s = " " + strings.Join(strings.Fields(s), " ") + " "

	for _, p := range c.phrases {
		needle := " " + p + " "
		for strings.Contains(s, needle) {
			s = strings.ReplaceAll(s, needle, " ")
		}
	}

	var b strings.Builder
	for _, tok := range strings.Fields(s) {
		b.WriteString(c.stripToken(tok))
	}

	runes := []rune(b.String())
	slices.Sort(runes)
	return string(runes)
}

// stripToken drops tok when it is a designator, or drops the designator
// prefix when it is glued to a number ("ДОМ5" -> "5").
func (c *Comparator) stripToken(tok string) string {
	if _, ok := c.tokens[tok]; ok {
		return ""
	}
	for _, p := range c.prefixes {
		rest, ok := strings.CutPrefix(tok, p)
		if !ok || rest == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsDigit(r) {
			return rest
		}
	}
	return tok
}

// Equal reports whether a and b normalise to the same character bag.
func (c *Comparator) Equal(a, b string) bool {
	return c.Normalize(a) == c.Normalize(b)
}

// Match compares the applicant pair (a1, a2) and the manufacturer pair
// (m1, m2). Both pairs must match for VerdictMatch.
func (c *Comparator) Match(a1, a2, m1, m2 string) document.Verdict {
	if c.Equal(a1, a2) && c.Equal(m1, m2) {
		return document.VerdictMatch
	}
	return document.VerdictMismatch
}

// Verdict reconciles the stated and registry addresses of both registrants.
// A missing registration number on either registrant yields
// VerdictNoRegNumber whatever the addresses say.
func (c *Comparator) Verdict(applicant, manufacturer document.Party) document.Verdict {
	if !applicant.HasRegNumber() || !manufacturer.HasRegNumber() {
		return document.VerdictNoRegNumber
	}
	return c.Match(applicant.Address, applicant.RegistryAddress,
		manufacturer.Address, manufacturer.RegistryAddress)
}

// Normalize uses the default comparator.
func Normalize(addr string) string { return std.Normalize(addr) }

// Equal uses the default comparator.
func Equal(a, b string) bool { return std.Equal(a, b) }
