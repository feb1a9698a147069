package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a bounded wait expires.
var ErrTimeout = errors.New("browser: wait timed out")

// ErrNoElement is returned when a selector matches nothing to act on.
var ErrNoElement = errors.New("browser: element not found")

// Driver is the page capability the web sources are written against.
// Methods that act on an element (Fill, Click, HTML, Download) wait for it
// until ctx expires. Texts and Visible report the current page state
// without waiting.
type Driver interface {
	Open(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the n-th (0-based) element matching selector.
	ClickNth(ctx context.Context, selector string, n int) error
	Texts(ctx context.Context, selector string) ([]string, error)
	Visible(ctx context.Context, selector string) (bool, error)
	HTML(ctx context.Context, selector string) (string, error)
	Title(ctx context.Context) (string, error)
	ScrollBottom(ctx context.Context) error
	Reload(ctx context.Context) error
	// Download clicks selector and returns the bytes of the file it triggers.
	Download(ctx context.Context, selector string) ([]byte, error)
}

// WaitFor polls cond every interval until it reports true, returns an
// error, or timeout elapses. Expiry yields ErrTimeout; cancellation of ctx
// yields ctx.Err().
func WaitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-tick.C:
		}
	}
}
