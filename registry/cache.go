// Package registry resolves a legal entity's official address from its
// registration number, remembering every answer for the rest of the run.
package registry

import (
	"strings"

	"github.com/hazyhaar/regcheck/document"
)

// Cache maps registration number to registry address. Entries are never
// removed or overwritten. Not safe for concurrent use.
type Cache struct {
	m map[string]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]string)}
}

// Get returns the cached address for reg.
func (c *Cache) Get(reg string) (string, bool) {
	a, ok := c.m[key(reg)]
	return a, ok
}

// Put records reg -> address unless reg is unusable or already present.
// It reports whether an entry was added.
func (c *Cache) Put(reg, address string) bool {
	k := key(reg)
	if !usable(k) || address == "" {
		return false
	}
	if _, ok := c.m[k]; ok {
		return false
	}
	c.m[k] = address
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.m) }

// Seed loads every registration number / registry address pair found in
// previously written result rows. It returns the number of entries added.
func (c *Cache) Seed(rows []document.Row) int {
	n := 0
	for _, r := range rows {
		for _, p := range []document.Party{r.Result.Applicant, r.Result.Manufacturer} {
			if c.Put(p.RegNumber, p.RegistryAddress) {
				n++
			}
		}
	}
	return n
}

func key(reg string) string { return strings.TrimSpace(reg) }

func usable(reg string) bool {
	return document.Party{RegNumber: reg}.HasRegNumber()
}
