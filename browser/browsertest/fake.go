// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/regcheck/browser"
)

// Fake is an in-memory page. Tests describe what is on screen by setting
// Elements, Markup and PageTitle, and react to actions through the On*
// hooks, which run with the fake unlocked.
type Fake struct {
	mu sync.Mutex

	// Elements maps a selector to the text of each matching element.
	Elements map[string][]string
	// Markup maps a selector to its outer HTML.
	Markup map[string]string
	// Files maps a download trigger selector to the file it serves.
	Files     map[string][]byte
	PageTitle string

	OnOpen   func(f *Fake, url string)
	OnFill   func(f *Fake, selector, text string)
	OnClick  func(f *Fake, selector string, n int)
	OnScroll func(f *Fake)
	OnReload func(f *Fake)

	// Recorded actions.
	Opened    []string
	Filled    []string
	Clicked   []string
	Reloads   int
	Scrolls   int
	Downloads int
}

var _ browser.Driver = (*Fake)(nil)

// New returns an empty page.
func New() *Fake {
	return &Fake{
		Elements: make(map[string][]string),
		Markup:   make(map[string]string),
		Files:    make(map[string][]byte),
	}
}

// Set replaces the elements matching selector. No texts removes them.
func (f *Fake) Set(selector string, texts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(texts) == 0 {
		delete(f.Elements, selector)
		return
	}
	f.Elements[selector] = texts
}

// SetHTML sets the markup returned for selector.
func (f *Fake) SetHTML(selector, html string) {
	f.mu.Lock()
	f.Markup[selector] = html
	f.mu.Unlock()
}

// SetTitle sets the document title.
func (f *Fake) SetTitle(title string) {
	f.mu.Lock()
	f.PageTitle = title
	f.mu.Unlock()
}

func (f *Fake) Open(ctx context.Context, url string) error {
	f.mu.Lock()
	f.Opened = append(f.Opened, url)
	hook := f.OnOpen
	f.mu.Unlock()
	if hook != nil {
		hook(f, url)
	}
	return ctx.Err()
}

func (f *Fake) Fill(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	if _, ok := f.Elements[selector]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("fill %q: %w", selector, browser.ErrNoElement)
	}
	f.Filled = append(f.Filled, text)
	hook := f.OnFill
	f.mu.Unlock()
	if hook != nil {
		hook(f, selector, text)
	}
	return nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	return f.ClickNth(ctx, selector, 0)
}

func (f *Fake) ClickNth(ctx context.Context, selector string, n int) error {
	f.mu.Lock()
	if n < 0 || n >= len(f.Elements[selector]) {
		f.mu.Unlock()
		return fmt.Errorf("click %q[%d]: %w", selector, n, browser.ErrNoElement)
	}
	f.Clicked = append(f.Clicked, fmt.Sprintf("%s[%d]", selector, n))
	hook := f.OnClick
	f.mu.Unlock()
	if hook != nil {
		hook(f, selector, n)
	}
	return nil
}

func (f *Fake) Texts(ctx context.Context, selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Elements[selector]...), nil
}

func (f *Fake) Visible(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Elements[selector]) > 0, nil
}

func (f *Fake) HTML(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	html, ok := f.Markup[selector]
	if !ok {
		return "", fmt.Errorf("html %q: %w", selector, browser.ErrNoElement)
	}
	return html, nil
}

func (f *Fake) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageTitle, nil
}

func (f *Fake) ScrollBottom(ctx context.Context) error {
	f.mu.Lock()
	f.Scrolls++
	hook := f.OnScroll
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) Reload(ctx context.Context) error {
	f.mu.Lock()
	f.Reloads++
	hook := f.OnReload
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) Download(ctx context.Context, selector string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Files[selector]
	if !ok {
		return nil, fmt.Errorf("download %q: %w", selector, browser.ErrNoElement)
	}
	f.Downloads++
	return data, nil
}
