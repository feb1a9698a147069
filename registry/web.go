package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hazyhaar/regcheck/browser"
)

// WebConfig describes the registry search form.
type WebConfig struct {
	URL     string
	Timeout time.Duration

	Input     string
	Submit    string
	Result    string
	NoData    string
	Challenge string
	// Extract is the link on a result row that downloads the PDF extract.
	Extract string
}

func (c *WebConfig) defaults() {
	if c.URL == "" {
		c.URL = "https://egrul.nalog.ru/index.html"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Input == "" {
		c.Input = "#query"
	}
	if c.Submit == "" {
		c.Submit = "#btnSearch"
	}
	if c.Result == "" {
		c.Result = ".res-row .res-text"
	}
	if c.NoData == "" {
		c.NoData = ".no-data"
	}
	if c.Challenge == "" {
		c.Challenge = "#captcha, .captcha, iframe[src*='captcha']"
	}
	if c.Extract == "" {
		c.Extract = ".res-row button.btn-with-icon"
	}
}

// WebSource reads the address from the registry's search result summary.
type WebSource struct {
	cfg WebConfig
	drv browser.Driver
}

// NewWebSource returns the fast lookup strategy.
func NewWebSource(drv browser.Driver, cfg WebConfig) *WebSource {
	cfg.defaults()
	return &WebSource{cfg: cfg, drv: drv}
}

func (w *WebSource) Name() string { return "registry-web" }

// Challenged opens the search form and reports whether it shows a captcha.
func (w *WebSource) Challenged(ctx context.Context) (bool, error) {
	if err := w.drv.Open(ctx, w.cfg.URL); err != nil {
		return false, err
	}
	return w.drv.Visible(ctx, w.cfg.Challenge)
}

func (w *WebSource) Address(ctx context.Context, reg string) (string, error) {
	if err := search(ctx, w.drv, w.cfg, reg, w.cfg.Challenge); err != nil {
		return "", err
	}
	texts, err := w.drv.Texts(ctx, w.cfg.Result)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", ErrAddressNotFound
	}
	addr := addressFromSummary(texts[0])
	if addr == "" {
		return "", fmt.Errorf("registry: no address in %q", texts[0])
	}
	return addr, nil
}

// search submits reg and waits for either a result row or the no-data
// marker. No data maps to ErrAddressNotFound. When challenge is set, a
// visible challenge ends the wait with ErrChallenged.
func search(ctx context.Context, drv browser.Driver, cfg WebConfig, reg, challenge string) error {
	if err := drv.Open(ctx, cfg.URL); err != nil {
		return err
	}
	if err := drv.Fill(ctx, cfg.Input, reg); err != nil {
		return err
	}
	if err := drv.Click(ctx, cfg.Submit); err != nil {
		return err
	}

	noData, challenged := false, false
	err := browser.Until(ctx, cfg.Timeout, func(ctx context.Context) (bool, error) {
		if challenge != "" {
			if v, err := drv.Visible(ctx, challenge); err != nil || v {
				challenged = v
				return v, err
			}
		}
		if v, err := drv.Visible(ctx, cfg.NoData); err != nil || v {
			noData = v
			return v, err
		}
		return drv.Visible(ctx, cfg.Result)
	})
	if err != nil {
		return fmt.Errorf("registry: await results for %s: %w", reg, err)
	}
	if challenged {
		return fmt.Errorf("registry: search %s: %w", reg, ErrChallenged)
	}
	if noData {
		return ErrAddressNotFound
	}
	return nil
}

// ogrnMarker starts the identifier tail of a registry summary line:
// "<address>, ОГРН: 1027700132195, Дата присвоения ОГРН: ..."
var ogrnMarker = regexp.MustCompile(`(?i)[,;]?\s*(ОГРН|ОГРНИП|ИНН)\s*:`)

func addressFromSummary(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if loc := ogrnMarker.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.Trim(text, " ,;")
}
