package verifier

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/regcheck/document"
)

// pair is one label/value line of a details chapter.
type pair struct {
	label, value string
}

// parsePairs reads label/value lines from chapter markup. Three layouts
// occur on the portals: definition lists, two-cell table rows, and
// .info-row blocks with a header and a text child.
func parsePairs(html string) ([]pair, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse chapter: %w", err)
	}

	var out []pair
	add := func(label, value string) {
		label, value = clean(label), clean(value)
		if label != "" {
			out = append(out, pair{label, value})
		}
	}

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		add(dt.Text(), dt.NextFiltered("dd").Text())
	})
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("th, td")
		if cells.Length() == 2 {
			add(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})
	doc.Find(".info-row").Each(func(_ int, row *goquery.Selection) {
		add(row.Find(".info-row__header").First().Text(), row.Find(".info-row__text").First().Text())
	})
	return out, nil
}

func clean(s string) string {
	return strings.TrimRight(strings.Join(strings.Fields(s), " "), ":")
}

// sectionOf maps a chapter title to the registrant it describes.
func sectionOf(chapter string) document.Section {
	lower := strings.ToLower(chapter)
	switch {
	case strings.Contains(lower, "заявител"):
		return document.SectionApplicant
	case strings.Contains(lower, "изготовител"):
		return document.SectionManufacturer
	default:
		return document.SectionDocument
	}
}

// fieldOf maps a chapter label to the field it carries. Registrant
// chapters carry registration numbers, names and addresses; the others
// carry document attributes.
func fieldOf(section document.Section, label string) (document.Field, bool) {
	l := strings.ToLower(label)
	if section != document.SectionDocument {
		switch {
		case l == "огрн" || l == "огрнип" || strings.Contains(l, "основной государственный регистрационный номер"):
			return document.FieldRegNumber, true
		case strings.HasPrefix(l, "адрес места нахождения") || l == "адрес" || l == "юридический адрес":
			return document.FieldAddress, true
		case strings.Contains(l, "полное наименование"):
			return document.FieldName, true
		}
		return 0, false
	}
	switch {
	case strings.Contains(l, "регламент"):
		return document.FieldRegulation, true
	case strings.Contains(l, "стандарт") || strings.Contains(l, "нормативн"):
		return document.FieldStandards, true
	case strings.Contains(l, "наименование продукции") || strings.Contains(l, "наименование документа"):
		return document.FieldDocumentName, true
	}
	return 0, false
}

// addPairs stores the recognized pairs of one chapter. Standards may span
// several lines and are joined; other fields keep their first value.
func addPairs(fields document.Fields, section document.Section, pairs []pair) {
	var standards []string
	for _, p := range pairs {
		f, ok := fieldOf(section, p.label)
		if !ok || p.value == "" {
			continue
		}
		if f == document.FieldStandards {
			standards = append(standards, p.value)
			continue
		}
		fields.Set(section, f, p.value)
	}
	if len(standards) > 0 {
		fields.Set(section, document.FieldStandards, strings.Join(standards, "; "))
	}
}
