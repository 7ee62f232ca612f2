package scraping

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aeroport/internal/payload"
)

// HTMLAdapter is an ItemAdapter that selects raw items with a CSS selector
// and converts each with Adapt.
type HTMLAdapter struct {
	Selector string
	Adapt    func(raw *goquery.Selection) (*payload.Payload, error)
}

func (a *HTMLAdapter) ExtractRawItems(content string) ([]*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(a.Selector)
	items := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		items = append(items, s)
	})
	return items, nil
}

func (a *HTMLAdapter) AdaptRawItem(raw *goquery.Selection) (*payload.Payload, error) {
	return a.Adapt(raw)
}

// Text returns the trimmed text of the first node matching selector.
func Text(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).First().Text())
}

// Attr returns the trimmed attribute of the first node matching selector, or
// of s itself when selector is empty.
func Attr(s *goquery.Selection, selector, name string) string {
	if selector != "" {
		s = s.Find(selector).First()
	}
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}
