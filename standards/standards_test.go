package standards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/hazyhaar/regcheck/document"
)

type mapChecker struct {
	statuses map[string]string
	calls    map[string]int
}

func (m *mapChecker) Status(_ context.Context, ref string) (string, error) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[ref]++
	st, ok := m.statuses[ref]
	if !ok {
		return "", ErrNotFound
	}
	return st, nil
}

func TestExtract(t *testing.T) {
	got := Extract(
		"ТР ТС 004/2011 О безопасности низковольтного оборудования",
		"ГОСТ 12.2.007.0-75; ГОСТ Р 52161.1 - 2004, ГОСТ IEC 60335-1-2015, гост 12.2.007.0-75, ГОСТ P 52161.1-2004, ГОСТ30804.3.2-2013 (IEC 61000-3-2:2009)",
	)
	want := []string{
		"ГОСТ 12.2.007.0-75",
		"ГОСТ Р 52161.1-2004",
		"ГОСТ IEC 60335-1-2015",
		"ГОСТ 30804.3.2-2013",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("extract:\n got %q\nwant %q", got, want)
	}
}

func TestVerify_NoReferences(t *testing.T) {
	v := NewVerifier(&mapChecker{}, nil)
	got, err := v.Verify(context.Background(), "ТР ТС 004/2011", "-")
	if err != nil {
		t.Fatal(err)
	}
	if got != document.Unavailable {
		t.Fatalf("got %q, want %q", got, document.Unavailable)
	}
}

func TestVerify_DistinctStatusesSideBySide(t *testing.T) {
	// WHAT: Different statuses for different standards are all kept; repeats collapse.
	c := &mapChecker{statuses: map[string]string{
		"ГОСТ 1-1": "Действует",
		"ГОСТ 2-2": "Отменен",
		"ГОСТ 3-3": "Действует",
	}}
	v := NewVerifier(c, nil)
	got, err := v.Verify(context.Background(), "ГОСТ 1-1", "ГОСТ 2-2, ГОСТ 3-3")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Действует Отменен" {
		t.Fatalf("got %q, want %q", got, "Действует Отменен")
	}
}

func TestVerify_Memo(t *testing.T) {
	c := &mapChecker{statuses: map[string]string{"ГОСТ 1-1": "Действует"}}
	v := NewVerifier(c, nil)
	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), "", "ГОСТ 1-1, ГОСТ 9-9"); err != nil {
			t.Fatal(err)
		}
	}
	if c.calls["ГОСТ 1-1"] != 1 || c.calls["ГОСТ 9-9"] != 1 {
		t.Fatalf("calls: got %v, want one per reference", c.calls)
	}
}

func TestVerify_UnknownReference(t *testing.T) {
	v := NewVerifier(&mapChecker{}, nil)
	got, _ := v.Verify(context.Background(), "", "ГОСТ 9-9")
	if got != StatusUnknown {
		t.Fatalf("got %q, want %q", got, StatusUnknown)
	}
}

type failingChecker struct{}

func (failingChecker) Status(context.Context, string) (string, error) {
	return "", errors.New("dial tcp: refused")
}

func TestVerify_CheckerError(t *testing.T) {
	v := NewVerifier(failingChecker{}, nil)
	if _, err := v.Verify(context.Background(), "", "ГОСТ 1-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Query().Get("q") {
		case "ГОСТ Р 52161.1-2004":
			fmt.Fprint(w, `<html><body>
<div class="search-result"><span class="designation">ГОСТ Р 52161.1-2004 изм. 1</span><span class="status">Заменен</span></div>
<div class="search-result"><span class="designation">ГОСТ Р  52161.1 - 2004</span><span class="status"> Действует </span></div>
</body></html>`)
		default:
			fmt.Fprint(w, `<html><body><p>Ничего не найдено</p></body></html>`)
		}
	}))
	defer srv.Close()

	h := NewHTTPChecker(srv.URL+"/search", WithInterval(time.Millisecond))
	got, err := h.Status(context.Background(), "ГОСТ Р 52161.1-2004")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got != "Действует" {
		t.Fatalf("status: got %q, want Действует", got)
	}
	if _, err := h.Status(context.Background(), "ГОСТ 1-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown: got %v, want ErrNotFound", err)
	}
}

func TestHTTPChecker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHTTPChecker(srv.URL, WithInterval(time.Millisecond))
	if _, err := h.Status(context.Background(), "ГОСТ 1-1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want a non-NotFound error", err)
	}
}

func TestWithTimeout_LeavesSharedClient(t *testing.T) {
	// WHAT: The timeout applies to the checker only, in either option order.
	shared := &http.Client{Timeout: time.Minute}
	checkers := []*HTTPChecker{
		NewHTTPChecker("http://catalogue.test/", WithClient(shared), WithTimeout(5*time.Second)),
		NewHTTPChecker("http://catalogue.test/", WithTimeout(5*time.Second), WithClient(shared)),
	}
	if shared.Timeout != time.Minute {
		t.Fatalf("shared client timeout: got %s, want 1m", shared.Timeout)
	}
	for i, h := range checkers {
		if h.client == shared || h.client.Timeout != 5*time.Second {
			t.Fatalf("checker %d timeout: got %s, want 5s", i, h.client.Timeout)
		}
	}
}
