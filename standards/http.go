package standards

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// HTTPChecker queries a standards catalogue search page and reads the
// status of the first entry whose designation matches the reference.
type HTTPChecker struct {
	base    string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	ua      string
	item    string
	title   string
	status  string
	logger  *slog.Logger
}

// Option configures an HTTPChecker.
type Option func(*HTTPChecker)

// WithClient sets a custom HTTP client. Its cookie jar is left untouched.
func WithClient(c *http.Client) Option {
	return func(h *HTTPChecker) { h.client = c }
}

// WithTimeout bounds each catalogue request. It applies to a copy of the
// client, so a client passed to WithClient is left as it was.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPChecker) { h.timeout = d }
}

// WithInterval sets the minimum spacing between catalogue requests.
func WithInterval(d time.Duration) Option {
	return func(h *HTTPChecker) { h.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithSelectors sets the result item, designation and status selectors.
func WithSelectors(item, title, status string) Option {
	return func(h *HTTPChecker) { h.item, h.title, h.status = item, title, status }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPChecker) { h.logger = l }
}

// NewHTTPChecker returns a checker for the catalogue at baseURL. The search
// term is passed as the "q" query parameter.
func NewHTTPChecker(baseURL string, opts ...Option) *HTTPChecker {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	h := &HTTPChecker{
		base:    baseURL,
		client:  &http.Client{Timeout: 30 * time.Second, Jar: jar},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		item:    ".search-result",
		title:   ".designation",
		status:  ".status",
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.timeout > 0 {
		c := *h.client
		c.Timeout = h.timeout
		h.client = &c
	}
	return h
}

func (h *HTTPChecker) Status(ctx context.Context, ref string) (string, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("standards: rate limit: %w", err)
	}

	u, err := url.Parse(h.base)
	if err != nil {
		return "", fmt.Errorf("standards: base url: %w", err)
	}
	q := u.Query()
	q.Set("q", ref)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("standards: new request: %w", err)
	}
	req.Header.Set("User-Agent", h.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("standards: do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("standards: %s: unexpected status %d", ref, resp.StatusCode)
	}

	// Cap read to 5MB.
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("standards: parse: %w", err)
	}

	var status string
	doc.Find(h.item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if Normalize(s.Find(h.title).Text()) != ref {
			return true
		}
		status = strings.Join(strings.Fields(s.Find(h.status).Text()), " ")
		return false
	})
	h.logger.Debug("standards: checked", "ref", ref, "status", status)
	if status == "" {
		return "", ErrNotFound
	}
	return status, nil
}
