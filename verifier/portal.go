package verifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hazyhaar/regcheck/browser"
	"github.com/hazyhaar/regcheck/document"
	"github.com/hazyhaar/regcheck/registry"
)

// Status strings shown by the declaration and certificate portals.
const (
	StatusValid      = "Действует"
	StatusReinstated = "Возобновлён"
)

// maxVisibleRows is how many list rows the portal renders before the
// scroll-triggered load.
const maxVisibleRows = 5

// PortalConfig describes a declaration or certificate search portal.
type PortalConfig struct {
	URL string
	// ListTimeout bounds the wait for the results list to refresh.
	ListTimeout time.Duration
	// PageTimeout bounds element actions and the details page.
	PageTimeout time.Duration
	// ScrollSettle is the pause after scrolling for the next batch of rows.
	ScrollSettle time.Duration

	Search    string
	Submit    string
	NoRecords string
	// Row cells; the n-th element of each belongs to the n-th row.
	RowNumber string
	RowExpiry string
	RowStatus string
	// RowOpen is the clickable element of each row.
	RowOpen string

	DetailsStatus string
	// Chapters are the details navigation entries; ChapterBody is the
	// content pane they switch.
	Chapters    string
	ChapterBody string

	Guard Guard
}

func (c *PortalConfig) defaults(url string) {
	if c.URL == "" {
		c.URL = url
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = 60 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.ScrollSettle <= 0 {
		c.ScrollSettle = 2 * time.Second
	}
	if c.Search == "" {
		c.Search = "fgis-search-input input"
	}
	if c.Submit == "" {
		c.Submit = "fgis-search-input button[type='submit']"
	}
	if c.NoRecords == "" {
		c.NoRecords = ".table-empty, .no-records"
	}
	if c.RowNumber == "" {
		c.RowNumber = "fgis-table tbody tr td.col-number"
	}
	if c.RowExpiry == "" {
		c.RowExpiry = "fgis-table tbody tr td.col-end-date"
	}
	if c.RowStatus == "" {
		c.RowStatus = "fgis-table tbody tr td.col-status"
	}
	if c.RowOpen == "" {
		c.RowOpen = "fgis-table tbody tr td.col-number a"
	}
	if c.DetailsStatus == "" {
		c.DetailsStatus = "fgis-card-header .card-status"
	}
	if c.Chapters == "" {
		c.Chapters = "fgis-card-nav li a"
	}
	if c.ChapterBody == "" {
		c.ChapterBody = "fgis-card-content"
	}
	c.Guard.defaults()
}

// Portal verifies declarations or certificates. Both portals share one
// layout: a search list, then a details card split into chapters.
type Portal struct {
	base
	cfg PortalConfig
}

var _ Verifier = (*Portal)(nil)

// NewDeclaration returns the declaration verifier.
func NewDeclaration(drv browser.Driver, cfg PortalConfig, deps Deps) *Portal {
	cfg.defaults("https://pub.fsa.gov.ru/rds/declaration")
	return newPortal("declaration", drv, cfg, deps)
}

// NewCertificate returns the certificate verifier.
func NewCertificate(drv browser.Driver, cfg PortalConfig, deps Deps) *Portal {
	cfg.defaults("https://pub.fsa.gov.ru/rss/certificate")
	return newPortal("certificate", drv, cfg, deps)
}

func newPortal(name string, drv browser.Driver, cfg PortalConfig, deps Deps) *Portal {
	deps.defaults()
	return &Portal{
		base: base{name: name, drv: drv, guard: cfg.Guard, deps: deps},
		cfg:  cfg,
	}
}

// Verify runs InputNumber, AwaitResultsList, SelectMatchingRow, then the
// details card. Documents that are not found or not valid come back as a
// placeholder carrying only their status.
func (p *Portal) Verify(ctx context.Context, rec document.Record, cache *registry.Cache) (document.Result, error) {
	p.recoveries = 0
	log := p.deps.Logger.With("source", p.name, "index", rec.Index, "identifier", rec.Identifier)

	var status string
	err := p.retry(func() error {
		var err error
		status, err = p.find(ctx, rec)
		return err
	})
	if err != nil {
		return document.Result{}, err
	}
	if status != "" {
		log.Info("verifier: no valid row", "status", status)
		return p.stamp(document.Placeholder(status)), nil
	}

	var details string
	err = p.retry(func() error {
		var err error
		details, err = p.detailsStatus(ctx)
		return err
	})
	if err != nil {
		return document.Result{}, err
	}
	if !statusIs(details, StatusValid) {
		log.Info("verifier: document not valid", "status", details)
		return p.stamp(document.Placeholder(details)), nil
	}

	fields, err := p.collectChapters(ctx)
	if err != nil {
		return document.Result{}, err
	}
	res := resultFromFields(details, fields)
	log.Debug("verifier: chapters collected", "fields", len(fields))
	return p.complete(ctx, res, cache)
}

// find submits the identifier and opens the matching row. It returns a
// non-empty status when the document ends here (not found, or the only
// matching row is not valid) and "" when the details card is open.
func (p *Portal) find(ctx context.Context, rec document.Record) (string, error) {
	if err := p.act(ctx, p.cfg.PageTimeout, "open portal", func(ctx context.Context) error {
		return p.drv.Open(ctx, p.cfg.URL)
	}); err != nil {
		return "", err
	}
	if err := p.check(ctx); err != nil {
		return "", err
	}
	if err := p.act(ctx, p.cfg.PageTimeout, "input number", func(ctx context.Context) error {
		if err := p.drv.Fill(ctx, p.cfg.Search, rec.Identifier); err != nil {
			return err
		}
		return p.drv.Click(ctx, p.cfg.Submit)
	}); err != nil {
		return "", err
	}

	empty := false
	err := p.await(ctx, p.cfg.ListTimeout, func(ctx context.Context) (bool, error) {
		if v, err := p.drv.Visible(ctx, p.cfg.NoRecords); err != nil || v {
			empty = v
			return v, err
		}
		numbers, err := p.drv.Texts(ctx, p.cfg.RowNumber)
		if err != nil {
			return false, err
		}
		for _, n := range numbers {
			if sameNumber(n, rec.Identifier) {
				return true, nil
			}
		}
		return false, nil
	})
	switch {
	case errors.Is(err, browser.ErrTimeout):
		// A stale list and a genuine absence look the same here.
		p.deps.Logger.Warn("verifier: results list did not refresh, treating as not found",
			"source", p.name, "identifier", rec.Identifier)
		return document.StatusNotFound, nil
	case err != nil:
		return "", pageError(p.name, "await results", err)
	case empty:
		return document.StatusNotFound, nil
	}

	return p.selectRow(ctx, rec)
}

type listRow struct {
	number, expiry, status string
}

func (p *Portal) rows(ctx context.Context) ([]listRow, error) {
	numbers, err := p.drv.Texts(ctx, p.cfg.RowNumber)
	if err != nil {
		return nil, pageError(p.name, "read rows", err)
	}
	expiries, err := p.drv.Texts(ctx, p.cfg.RowExpiry)
	if err != nil {
		return nil, pageError(p.name, "read rows", err)
	}
	statuses, err := p.drv.Texts(ctx, p.cfg.RowStatus)
	if err != nil {
		return nil, pageError(p.name, "read rows", err)
	}
	out := make([]listRow, len(numbers))
	for i := range numbers {
		out[i].number = numbers[i]
		if i < len(expiries) {
			out[i].expiry = expiries[i]
		}
		if i < len(statuses) {
			out[i].status = statuses[i]
		}
	}
	return out, nil
}

// selectRow scans at most maxVisibleRows rows, then scrolls once for the
// lazily loaded next batch. Only an Active or Reinstated row whose number
// and expiry both match is opened.
func (p *Portal) selectRow(ctx context.Context, rec document.Record) (string, error) {
	rows, err := p.rows(ctx)
	if err != nil {
		return "", err
	}
	limit := min(len(rows), maxVisibleRows)
	if i := matchRow(rows[:limit], rec); i >= 0 {
		return "", p.openRow(ctx, i)
	}

	if len(rows) >= maxVisibleRows {
		if err := p.drv.ScrollBottom(ctx); err != nil {
			return "", pageError(p.name, "scroll", err)
		}
		settle := time.NewTimer(p.cfg.ScrollSettle)
		select {
		case <-ctx.Done():
			settle.Stop()
			return "", ctx.Err()
		case <-settle.C:
		}
		if rows, err = p.rows(ctx); err != nil {
			return "", err
		}
		limit = min(len(rows), 2*maxVisibleRows)
		if i := matchRow(rows[:limit], rec); i >= 0 {
			return "", p.openRow(ctx, i)
		}
	}

	// A lone row with the right number but an invalid status is the
	// document itself; its status is the answer. A lone valid row reaching
	// here has the wrong expiry and is reported as not found.
	if len(rows) == 1 && sameNumber(rows[0].number, rec.Identifier) && invalidStatus(rows[0].status) {
		return rows[0].status, nil
	}
	return document.StatusNotFound, nil
}

func invalidStatus(s string) bool {
	return strings.TrimSpace(s) != "" && !statusIs(s, StatusValid) && !statusIs(s, StatusReinstated)
}

func matchRow(rows []listRow, rec document.Record) int {
	for i, r := range rows {
		if !sameNumber(r.number, rec.Identifier) || strings.TrimSpace(r.expiry) != strings.TrimSpace(rec.ExpiresOn) {
			continue
		}
		if statusIs(r.status, StatusValid) || statusIs(r.status, StatusReinstated) {
			return i
		}
	}
	return -1
}

func (p *Portal) openRow(ctx context.Context, i int) error {
	return p.act(ctx, p.cfg.PageTimeout, "open row", func(ctx context.Context) error {
		return p.drv.ClickNth(ctx, p.cfg.RowOpen, i)
	})
}

func (p *Portal) detailsStatus(ctx context.Context) (string, error) {
	var status string
	err := p.await(ctx, p.cfg.PageTimeout, func(ctx context.Context) (bool, error) {
		texts, err := p.drv.Texts(ctx, p.cfg.DetailsStatus)
		if err != nil || len(texts) == 0 || texts[0] == "" {
			return false, err
		}
		status = texts[0]
		return true, nil
	})
	if err != nil {
		return "", pageError(p.name, "details status", err)
	}
	return status, nil
}

// collectChapters visits every chapter advertised by the navigation list
// and gathers its key/value pairs. A chapter that fails to render leaves
// its fields unset.
func (p *Portal) collectChapters(ctx context.Context) (document.Fields, error) {
	names, err := p.drv.Texts(ctx, p.cfg.Chapters)
	if err != nil {
		return nil, pageError(p.name, "read chapters", err)
	}
	fields := make(document.Fields)
	for i, name := range names {
		if err := p.act(ctx, p.cfg.PageTimeout, "open chapter", func(ctx context.Context) error {
			return p.drv.ClickNth(ctx, p.cfg.Chapters, i)
		}); err != nil {
			return nil, err
		}
		var html string
		err := p.act(ctx, p.cfg.PageTimeout, "read chapter", func(ctx context.Context) error {
			var err error
			html, err = p.drv.HTML(ctx, p.cfg.ChapterBody)
			return err
		})
		if KindOf(err) == KindTimeout {
			p.deps.Logger.Warn("verifier: chapter did not render", "source", p.name, "chapter", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		section := sectionOf(name)
		pairs, err := parsePairs(html)
		if err != nil {
			return nil, pageError(p.name, "parse chapter", err)
		}
		addPairs(fields, section, pairs)
	}
	return fields, nil
}

func resultFromFields(status string, f document.Fields) document.Result {
	return document.Result{
		Status: status,
		Applicant: document.Party{
			RegNumber: f.Get(document.SectionApplicant, document.FieldRegNumber),
			Address:   f.Get(document.SectionApplicant, document.FieldAddress),
		},
		Manufacturer: document.Party{
			RegNumber: f.Get(document.SectionManufacturer, document.FieldRegNumber),
			Address:   f.Get(document.SectionManufacturer, document.FieldAddress),
		},
		DocumentName: f.Get(document.SectionDocument, document.FieldDocumentName),
		Regulation:   f.Get(document.SectionDocument, document.FieldRegulation),
		Standards:    f.Get(document.SectionDocument, document.FieldStandards),
	}
}
