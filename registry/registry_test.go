package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/regcheck/browser/browsertest"
	"github.com/hazyhaar/regcheck/document"
)

type countingSource struct {
	name  string
	addrs map[string]string
	err   error
	calls int
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) Address(ctx context.Context, reg string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	a, ok := s.addrs[reg]
	if !ok {
		return "", ErrAddressNotFound
	}
	return a, nil
}

type staticDetector bool

func (d staticDetector) Challenged(context.Context) (bool, error) { return bool(d), nil }

type countingObserver struct{ hits, queries int }

func (o *countingObserver) CacheHit()     { o.hits++ }
func (o *countingObserver) Query(string) { o.queries++ }

func TestCache_AddOnly(t *testing.T) {
	c := NewCache()
	if !c.Put("1027700132195", "МОСКВА") {
		t.Fatal("first put must add")
	}
	if c.Put("1027700132195", "ТВЕРЬ") {
		t.Fatal("second put must not overwrite")
	}
	if a, _ := c.Get(" 1027700132195 "); a != "МОСКВА" {
		t.Fatalf("get: got %q, want МОСКВА", a)
	}
	for _, reg := range []string{"", document.NoRegNumber, document.Unavailable} {
		if c.Put(reg, "X") {
			t.Errorf("put(%q) must be refused", reg)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("len: got %d, want 1", c.Len())
	}
}

func TestCache_Seed(t *testing.T) {
	rows := []document.Row{
		{Result: document.Result{
			Applicant:    document.Party{RegNumber: "111", RegistryAddress: "A"},
			Manufacturer: document.Party{RegNumber: document.NoRegNumber, RegistryAddress: document.NoRegNumber},
		}},
		{Result: document.Placeholder("Прекращён")},
		{Result: document.Result{
			Applicant:    document.Party{RegNumber: "111", RegistryAddress: "A"},
			Manufacturer: document.Party{RegNumber: "222", RegistryAddress: "B"},
		}},
	}
	c := NewCache()
	if n := c.Seed(rows); n != 2 {
		t.Fatalf("seeded: got %d, want 2", n)
	}
	if a, ok := c.Get("222"); !ok || a != "B" {
		t.Fatalf("get 222: got %q, %v", a, ok)
	}
}

func TestLookup_SentinelNoQuery(t *testing.T) {
	// WHAT: Missing registration numbers never reach a source.
	src := &countingSource{name: "web"}
	l := &Lookup{Primary: src}
	cache := NewCache()
	for _, reg := range []string{"", document.NoRegNumber} {
		got, err := l.Address(context.Background(), reg, cache)
		if err != nil {
			t.Fatal(err)
		}
		if got != document.NoRegNumber {
			t.Fatalf("address(%q): got %q, want sentinel", reg, got)
		}
	}
	if src.calls != 0 {
		t.Fatalf("queries: got %d, want 0", src.calls)
	}
}

func TestLookup_SecondCallCached(t *testing.T) {
	// WHAT: Two documents sharing a registrant cost one query.
	src := &countingSource{name: "web", addrs: map[string]string{"111": "МОСКВА УЛ ЛЕНИНА 5"}}
	obs := &countingObserver{}
	l := &Lookup{Primary: src, Observer: obs}
	cache := NewCache()

	first, err := l.Address(context.Background(), "111", cache)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Address(context.Background(), "111", cache)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("cached answer differs: %q vs %q", first, second)
	}
	if src.calls != 1 || obs.queries != 1 || obs.hits != 1 {
		t.Fatalf("calls=%d queries=%d hits=%d, want 1/1/1", src.calls, obs.queries, obs.hits)
	}
}

func TestLookup_ChallengeUsesFallback(t *testing.T) {
	web := &countingSource{name: "web", addrs: map[string]string{"111": "W"}}
	pdf := &countingSource{name: "pdf", addrs: map[string]string{"111": "P"}}
	l := &Lookup{Primary: web, Fallback: pdf, Detector: staticDetector(true)}

	got, err := l.Address(context.Background(), "111", NewCache())
	if err != nil {
		t.Fatal(err)
	}
	if got != "P" || web.calls != 0 || pdf.calls != 1 {
		t.Fatalf("got %q web=%d pdf=%d", got, web.calls, pdf.calls)
	}
}

func TestLookup_NotFoundCached(t *testing.T) {
	src := &countingSource{name: "web"}
	l := &Lookup{Primary: src}
	cache := NewCache()
	for i := 0; i < 2; i++ {
		got, err := l.Address(context.Background(), "999", cache)
		if err != nil || got != document.Unavailable {
			t.Fatalf("got %q, %v; want %q", got, err, document.Unavailable)
		}
	}
	if src.calls != 1 {
		t.Fatalf("calls: got %d, want 1", src.calls)
	}
}

func TestLookup_ErrorNotCached(t *testing.T) {
	boom := errors.New("connection reset")
	src := &countingSource{name: "web", err: boom}
	l := &Lookup{Primary: src}
	cache := NewCache()
	if _, err := l.Address(context.Background(), "111", cache); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
	if cache.Len() != 0 {
		t.Fatal("failed query must not be cached")
	}
}

func registryPage(results map[string]string) *browsertest.Fake {
	f := browsertest.New()
	f.OnOpen = func(f *browsertest.Fake, url string) {
		f.Set("#query", "")
		f.Set("#btnSearch", "Найти")
		f.Set(".res-row .res-text")
		f.Set(".no-data")
	}
	var query string
	f.OnFill = func(f *browsertest.Fake, sel, text string) { query = text }
	f.OnClick = func(f *browsertest.Fake, sel string, n int) {
		if sel != "#btnSearch" {
			return
		}
		if r, ok := results[query]; ok {
			f.Set(".res-row .res-text", r)
		} else {
			f.Set(".no-data", "Нет данных")
		}
	}
	return f
}

func TestWebSource(t *testing.T) {
	page := registryPage(map[string]string{
		"1027700132195": "123456, Г.МОСКВА, УЛ. ЛЕНИНА, Д.5, ОГРН: 1027700132195, Дата присвоения ОГРН: 01.01.2002, ИНН: 7700000000",
	})
	w := NewWebSource(page, WebConfig{URL: "https://registry.test/", Timeout: time.Second})

	got, err := w.Address(context.Background(), "1027700132195")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if got != "123456, Г.МОСКВА, УЛ. ЛЕНИНА, Д.5" {
		t.Fatalf("address: got %q", got)
	}
	if _, err := w.Address(context.Background(), "1"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("unknown reg: got %v, want ErrAddressNotFound", err)
	}
}

func TestWebSource_Challenged(t *testing.T) {
	// WHAT: The detector loads the form before looking for the captcha.
	page := browsertest.New()
	captcha := false
	page.OnOpen = func(f *browsertest.Fake, url string) {
		if captcha {
			f.Set("#captcha", "")
		}
	}
	w := NewWebSource(page, WebConfig{URL: "https://registry.test/", Challenge: "#captcha"})
	if c, err := w.Challenged(context.Background()); err != nil || c {
		t.Fatalf("plain form: got %v, %v; want false", c, err)
	}
	captcha = true
	if c, err := w.Challenged(context.Background()); err != nil || !c {
		t.Fatalf("captcha form: got %v, %v; want true", c, err)
	}
	if len(page.Opened) != 2 || page.Opened[1] != "https://registry.test/" {
		t.Fatalf("opened: got %v", page.Opened)
	}
}

func TestWebSource_ChallengeOnSubmit(t *testing.T) {
	page := registryPage(map[string]string{"111": "Г.МОСКВА, ОГРН: 111"})
	page.OnClick = func(f *browsertest.Fake, sel string, n int) {
		if sel == "#btnSearch" {
			f.Set("#captcha", "")
		}
	}
	w := NewWebSource(page, WebConfig{Timeout: time.Minute, Challenge: "#captcha"})

	start := time.Now()
	_, err := w.Address(context.Background(), "111")
	if !errors.Is(err, ErrChallenged) {
		t.Fatalf("address: got %v, want ErrChallenged", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("captcha must end the wait, not the timeout")
	}
}

func TestLookup_ChallengeOnSubmitUsesFallback(t *testing.T) {
	// WHAT: A captcha shown only after submitting switches to the extract.
	page := registryPage(map[string]string{"111": "ООО РОМАШКА, ОГРН: 111"})
	page.Files[".res-row button.btn-with-icon"] = []byte("%PDF")
	submits := 0
	results := page.OnClick
	page.OnClick = func(f *browsertest.Fake, sel string, n int) {
		if sel == "#btnSearch" {
			submits++
			if submits == 1 {
				f.Set("#captcha", "")
				return
			}
		}
		results(f, sel, n)
	}
	opened := page.OnOpen
	page.OnOpen = func(f *browsertest.Fake, url string) {
		opened(f, url)
		f.Set("#captcha")
	}

	cfg := WebConfig{URL: "https://registry.test/", Timeout: time.Second, Challenge: "#captcha"}
	web := NewWebSource(page, cfg)
	pdf := NewPDFSource(page, cfg)
	pdf.text = func([]byte) (string, error) {
		return "Адрес юридического лица 141800, г. Дмитров, ул. Заводская, д. 1 ГРН и дата внесения 1", nil
	}
	obs := &countingObserver{}
	l := &Lookup{Primary: web, Fallback: pdf, Detector: web, Observer: obs}

	got, err := l.Address(context.Background(), "111", NewCache())
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if got != "141800, г. Дмитров, ул. Заводская, д. 1" {
		t.Fatalf("address: got %q", got)
	}
	if page.Downloads != 1 || obs.queries != 2 {
		t.Fatalf("downloads=%d queries=%d, want 1/2", page.Downloads, obs.queries)
	}
}

func TestLookup_ChallengeWithoutFallback(t *testing.T) {
	src := &countingSource{name: "web", err: ErrChallenged}
	l := &Lookup{Primary: src}
	if _, err := l.Address(context.Background(), "111", NewCache()); !errors.Is(err, ErrChallenged) {
		t.Fatalf("got %v, want ErrChallenged", err)
	}
	if src.calls != 1 {
		t.Fatalf("calls: got %d, want 1", src.calls)
	}
}

func TestPDFSource(t *testing.T) {
	page := registryPage(map[string]string{"111": "ООО РОМАШКА"})
	page.Files[".res-row button.btn-with-icon"] = []byte("%PDF")
	p := NewPDFSource(page, WebConfig{Timeout: time.Second})
	p.text = func([]byte) (string, error) {
		return "Сведения о юридическом лице Адрес юридического лица 141800, Московская обл., г. Дмитров, ул. Заводская, д. 1 ГРН и дата внесения 1025000000000", nil
	}
	got, err := p.Address(context.Background(), "111")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if got != "141800, Московская обл., г. Дмитров, ул. Заводская, д. 1" {
		t.Fatalf("address: got %q", got)
	}
	if page.Downloads != 1 {
		t.Fatalf("downloads: got %d, want 1", page.Downloads)
	}
}

func TestTextFromStream(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n(Hello) Tj\n10 0 Td\n[(Wor) -20 (ld)] TJ\nT*\n(\\101\\102) Tj\nET\n")
	if got := textFromStream(stream); got != "Hello World AB" {
		t.Fatalf("got %q, want %q", got, "Hello World AB")
	}
}
