package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Session is one stealth page. It implements Driver.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	router  *rod.HijackRouter
	cfg     Config
	log     *slog.Logger
}

var _ Driver = (*Session)(nil)

func openSession(ctx context.Context, b *rod.Browser, cfg Config) (*Session, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	s := &Session{browser: b, page: page, cfg: cfg, log: cfg.Logger}
	if len(cfg.ResourceBlocking) > 0 {
		s.router = blockResources(page, cfg.ResourceBlocking)
	}
	return s, nil
}

// Close closes the page.
func (s *Session) Close() error {
	if s.router != nil {
		s.router.Stop()
	}
	return s.page.Close()
}

func (s *Session) Open(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	p := s.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, timeoutErr(err))
	}
	if err := p.WaitLoad(); err != nil {
		s.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

func (s *Session) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: element %q: %w", selector, timeoutErr(err))
	}
	return el, nil
}

func (s *Session) Fill(ctx context.Context, selector, text string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("browser: select %q: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: input %q: %w", selector, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

func (s *Session) ClickNth(ctx context.Context, selector string, n int) error {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("browser: elements %q: %w", selector, err)
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("browser: %q[%d] of %d: %w", selector, n, len(els), ErrNoElement)
	}
	if err := els[n].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q[%d]: %w", selector, n, err)
	}
	return nil
}

func (s *Session) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: elements %q: %w", selector, err)
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		txt, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("browser: text %q: %w", selector, err)
		}
		out = append(out, strings.TrimSpace(txt))
	}
	return out, nil
}

func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("browser: has %q: %w", selector, err)
	}
	if !has {
		return false, nil
	}
	v, err := el.Visible()
	if err != nil {
		return false, fmt.Errorf("browser: visible %q: %w", selector, err)
	}
	return v, nil
}

func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return "", err
	}
	html, err := el.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html %q: %w", selector, err)
	}
	return html, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("browser: title: %w", err)
	}
	return res.Value.Str(), nil
}

func (s *Session) ScrollBottom(ctx context.Context) error {
	_, err := s.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", timeoutErr(err))
	}
	if err := p.WaitLoad(); err != nil {
		s.log.Warn("browser: wait load after reload", "error", err)
	}
	return nil
}

func (s *Session) Download(ctx context.Context, selector string) ([]byte, error) {
	dir := s.cfg.DownloadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("browser: mkdir %s: %w", dir, err)
	}

	wait := s.browser.Context(ctx).WaitDownload(dir)
	if err := s.Click(ctx, selector); err != nil {
		return nil, err
	}
	info := wait()
	if info == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("browser: download: %w", timeoutErr(err))
		}
		return nil, fmt.Errorf("browser: download did not start")
	}

	path := filepath.Join(dir, info.GUID)
	defer os.Remove(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("browser: read download: %w", err)
	}
	s.log.Debug("browser: downloaded", "file", info.SuggestedFilename, "bytes", len(data))
	return data, nil
}

// timeoutErr maps context expiry to ErrTimeout so callers test one sentinel.
func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// pollInterval is the default WaitFor interval for page conditions.
const pollInterval = 500 * time.Millisecond

// Until is WaitFor with the default page polling interval.
func Until(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	return WaitFor(ctx, timeout, pollInterval, cond)
}
