package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/regcheck/browser"
)

// PDFSource downloads the registry extract for the entity and reads the
// address from its text. Slower than WebSource but not gated by the captcha.
type PDFSource struct {
	cfg WebConfig
	drv browser.Driver
	// text turns PDF bytes into plain text. Replaced in tests.
	text func([]byte) (string, error)
}

// NewPDFSource returns the fallback lookup strategy.
func NewPDFSource(drv browser.Driver, cfg WebConfig) *PDFSource {
	cfg.defaults()
	return &PDFSource{cfg: cfg, drv: drv, text: pdfText}
}

func (p *PDFSource) Name() string { return "registry-pdf" }

func (p *PDFSource) Address(ctx context.Context, reg string) (string, error) {
	if err := search(ctx, p.drv, p.cfg, reg, ""); err != nil {
		return "", err
	}
	data, err := p.drv.Download(ctx, p.cfg.Extract)
	if err != nil {
		return "", fmt.Errorf("registry: download extract: %w", err)
	}
	text, err := p.text(data)
	if err != nil {
		return "", err
	}
	addr := addressFromExtract(text)
	if addr == "" {
		return "", ErrAddressNotFound
	}
	return addr, nil
}

// extractAddress matches the address block of a registry extract up to the
// next section label.
var extractAddress = regexp.MustCompile(`(?is)Адрес(?:\s+юридического\s+лица|\s*\(место\s+нахождения\))?\s*:?\s*(.+?)\s*(?:ГРН\s+и\s+дата|Сведения\s+о|Дата\s+внесения|ОГРН|ИНН|$)`)

func addressFromExtract(text string) string {
	m := extractAddress.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.Trim(strings.Join(strings.Fields(m[1]), " "), " ,;")
}

// pdfText extracts the text of every page using pdfcpu.
func pdfText(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("registry: pdfcpu read: %w", err)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil || len(content) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(textFromStream(content))
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("registry: no text in extract")
	}
	return sb.String(), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// textFromStream collects the operands of text-showing operators
// (Tj, TJ, ') and turns positioning operators into whitespace.
func textFromStream(data []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0:
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}
	return collapseSpace(sb.String())
}

// decodePDFString handles the basic escape sequences of a literal string.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; {
		case c == 'n':
			sb.WriteByte('\n')
		case c == 'r':
			sb.WriteByte('\r')
		case c == 't':
			sb.WriteByte('\t')
		case c >= '0' && c <= '7':
			val := int(c - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func collapseSpace(s string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			prevSpace = true
			continue
		}
		if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
