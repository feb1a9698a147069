package verifier

import (
	"context"
	"strings"
	"time"

	"github.com/hazyhaar/regcheck/browser"
	"github.com/hazyhaar/regcheck/document"
	"github.com/hazyhaar/regcheck/registry"
)

// RegistrationConfig describes the registration-record registry.
type RegistrationConfig struct {
	URL     string
	Timeout time.Duration

	Search string
	Submit string
	NoData string
	// Record is the flat record card shown for a hit.
	Record string

	Guard Guard
}

func (c *RegistrationConfig) defaults() {
	if c.URL == "" {
		c.URL = "https://nsi.eaeunion.org/portal/1995"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Search == "" {
		c.Search = "input[name='docNumber']"
	}
	if c.Submit == "" {
		c.Submit = "button.search-submit"
	}
	if c.NoData == "" {
		c.NoData = ".no-data, .empty-result"
	}
	if c.Record == "" {
		c.Record = ".record-card"
	}
	c.Guard.defaults()
}

// Registration verifies registration records. The record is a single flat
// card: submit the number, then either read the card or see "no data".
type Registration struct {
	base
	cfg RegistrationConfig
}

var _ Verifier = (*Registration)(nil)

// NewRegistration returns the registration-record verifier.
func NewRegistration(drv browser.Driver, cfg RegistrationConfig, deps Deps) *Registration {
	cfg.defaults()
	deps.defaults()
	return &Registration{
		base: base{name: "registration", drv: drv, guard: cfg.Guard, deps: deps},
		cfg:  cfg,
	}
}

// CyrillicNumber replaces the Latin letter segment of a registration
// number with its Cyrillic homoglyph. The registry indexes only the
// Cyrillic form: "RU.77.01.34.001.E.000123.01.23" is stored with "Е".
func CyrillicNumber(id string) string {
	parts := strings.Split(strings.TrimSpace(id), ".")
	for i, p := range parts {
		if i == 0 {
			continue
		}
		if r, ok := homoglyphs[p]; ok {
			parts[i] = r
		}
	}
	return strings.Join(parts, ".")
}

var homoglyphs = map[string]string{
	"E": "Е", "A": "А", "B": "В", "C": "С", "H": "Н", "K": "К",
	"M": "М", "O": "О", "P": "Р", "T": "Т", "X": "Х",
}

func (r *Registration) Verify(ctx context.Context, rec document.Record, cache *registry.Cache) (document.Result, error) {
	r.recoveries = 0
	number := CyrillicNumber(rec.Identifier)

	var html string
	err := r.retry(func() error {
		var err error
		html, err = r.read(ctx, number)
		return err
	})
	if err != nil {
		return document.Result{}, err
	}
	if html == "" {
		r.deps.Logger.Info("verifier: no data", "source", r.name, "index", rec.Index, "identifier", rec.Identifier)
		return r.stamp(document.Placeholder(document.StatusNotFound)), nil
	}

	pairs, err := parsePairs(html)
	if err != nil {
		return document.Result{}, pageError(r.name, "parse record", err)
	}
	return r.complete(ctx, recordResult(pairs), cache)
}

// read submits number and returns the record markup, or "" for no data.
func (r *Registration) read(ctx context.Context, number string) (string, error) {
	if err := r.act(ctx, r.cfg.Timeout, "open registry", func(ctx context.Context) error {
		return r.drv.Open(ctx, r.cfg.URL)
	}); err != nil {
		return "", err
	}
	if err := r.check(ctx); err != nil {
		return "", err
	}
	if err := r.act(ctx, r.cfg.Timeout, "input number", func(ctx context.Context) error {
		if err := r.drv.Fill(ctx, r.cfg.Search, number); err != nil {
			return err
		}
		return r.drv.Click(ctx, r.cfg.Submit)
	}); err != nil {
		return "", err
	}

	empty := false
	err := r.await(ctx, r.cfg.Timeout, func(ctx context.Context) (bool, error) {
		if v, err := r.drv.Visible(ctx, r.cfg.NoData); err != nil || v {
			empty = v
			return v, err
		}
		return r.drv.Visible(ctx, r.cfg.Record)
	})
	if err != nil {
		return "", pageError(r.name, "await record", err)
	}
	if empty {
		return "", nil
	}

	var html string
	err = r.act(ctx, r.cfg.Timeout, "read record", func(ctx context.Context) error {
		var err error
		html, err = r.drv.HTML(ctx, r.cfg.Record)
		return err
	})
	return html, err
}

// recordResult maps the flat record. Registration records name registrants
// without registration numbers, so the address verdict is always
// No-Registration-Number.
func recordResult(pairs []pair) document.Result {
	f := make(document.Fields)
	status := ""
	for _, p := range pairs {
		l := strings.ToLower(p.label)
		switch {
		case strings.HasPrefix(l, "статус"):
			if status == "" {
				status = p.value
			}
		case strings.Contains(l, "адрес") && strings.Contains(l, "изготовител"):
			f.Set(document.SectionManufacturer, document.FieldAddress, p.value)
		case strings.Contains(l, "адрес") && (strings.Contains(l, "получател") || strings.Contains(l, "заявител")):
			f.Set(document.SectionApplicant, document.FieldAddress, p.value)
		case strings.Contains(l, "наименование продукции"):
			f.Set(document.SectionDocument, document.FieldDocumentName, p.value)
		case strings.Contains(l, "регламент"):
			f.Set(document.SectionDocument, document.FieldRegulation, p.value)
		case strings.Contains(l, "нормативн"):
			f.Set(document.SectionDocument, document.FieldStandards, p.value)
		}
	}
	if status == "" {
		status = document.Unavailable
	}
	return document.Result{
		Status: status,
		Applicant: document.Party{
			RegNumber: document.NoRegNumber,
			Address:   f.Get(document.SectionApplicant, document.FieldAddress),
		},
		Manufacturer: document.Party{
			RegNumber: document.NoRegNumber,
			Address:   f.Get(document.SectionManufacturer, document.FieldAddress),
		},
		DocumentName: f.Get(document.SectionDocument, document.FieldDocumentName),
		Regulation:   f.Get(document.SectionDocument, document.FieldRegulation),
		Standards:    f.Get(document.SectionDocument, document.FieldStandards),
	}
}
