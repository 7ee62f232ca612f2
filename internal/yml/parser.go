// Package yml reads market feeds in the YML (Yandex Market Language) format:
// an XML catalog with a categories section and an offers section.
package yml

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"sync/atomic"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"
)

var ErrConsumed = errors.New("feed already consumed")

// ItemType is the kind of a feed record.
type ItemType string

const (
	TypeCategory ItemType = "category"
	TypeOffer    ItemType = "offer"
)

// Element is a copy of one XML element of a record. Depth is relative to the
// record root, which has depth 0.
type Element struct {
	Name  string
	Attrs map[string]string
	Text  string
	Depth int
}

// Attr returns the value of the first attribute present among names.
func (e Element) Attr(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := e.Attrs[n]; ok {
			return v, true
		}
	}
	return "", false
}

// IntAttr is Attr with integer coercion. A present but non-numeric value is
// an error.
func (e Element) IntAttr(names ...string) (int64, bool, error) {
	v, ok := e.Attr(names...)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("attribute %s: %w", strings.Join(names, "|"), err)
	}
	return n, true, nil
}

// RawItem is one complete category or offer: the root element followed by
// its descendants in document order.
type RawItem struct {
	Type     ItemType
	Elements []Element
}

// Root returns the record element itself.
func (r RawItem) Root() Element {
	if len(r.Elements) == 0 {
		return Element{}
	}
	return r.Elements[0]
}

// Child returns the first descendant named name.
func (r RawItem) Child(name string) (Element, bool) {
	for _, e := range r.Elements[min(1, len(r.Elements)):] {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// ChildText returns the text of the first descendant named name, or "".
func (r RawItem) ChildText(name string) string {
	e, _ := r.Child(name)
	return e.Text
}

// Children returns every descendant named name.
func (r RawItem) Children(name string) []Element {
	var out []Element
	for _, e := range r.Elements[min(1, len(r.Elements)):] {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type state int

const (
	stateOutside state = iota
	stateInCategories
	stateInOffers
)

// Parser pulls records from a feed without loading the document. Only one
// record is held in memory at a time.
type Parser struct {
	x        *xpp.XMLPullParser
	sections map[ItemType]bool
	used     atomic.Bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithSections limits the records yielded to types. Other sections are read
// through without accumulating anything.
func WithSections(types ...ItemType) ParserOption {
	return func(p *Parser) {
		p.sections = make(map[ItemType]bool, len(types))
		for _, t := range types {
			p.sections[t] = true
		}
	}
}

// NewParser reads a feed from r. The encoding declared in the XML prolog is
// honored.
func NewParser(r io.Reader, opts ...ParserOption) *Parser {
	p := &Parser{
		x:        xpp.NewXMLPullParser(r, false, charset.NewReaderLabel),
		sections: map[ItemType]bool{TypeCategory: true, TypeOffer: true},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Items yields records in document order. The sequence can be ranged once;
// later calls yield ErrConsumed. A parse error is yielded last.
func (p *Parser) Items() iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		if !p.used.CompareAndSwap(false, true) {
			yield(RawItem{}, ErrConsumed)
			return
		}

		st := stateOutside
		var (
			rec      *RawItem
			rootAt   int
			open     []int
			textBufs []*strings.Builder
		)
		for {
			ev, err := p.x.Next()
			if err != nil {
				yield(RawItem{}, fmt.Errorf("parse feed: %w", err))
				return
			}
			switch ev {
			case xpp.EndDocument:
				return

			case xpp.StartTag:
				switch {
				case rec != nil:
					rec.Elements = append(rec.Elements, p.element(rootAt))
					textBufs = append(textBufs, &strings.Builder{})
					open = append(open, len(rec.Elements)-1)
				case st == stateOutside && p.x.Name == "categories":
					st = stateInCategories
				case st == stateOutside && p.x.Name == "offers":
					st = stateInOffers
				case st != stateOutside:
					typ := sectionType(st)
					if p.x.Name != string(typ) || !p.sections[typ] {
						continue
					}
					rootAt = p.x.Depth
					rec = &RawItem{Type: typ, Elements: []Element{p.element(rootAt)}}
					textBufs = append(textBufs[:0], &strings.Builder{})
					open = append(open[:0], 0)
				}

			case xpp.Text:
				if rec != nil && len(open) > 0 {
					textBufs[open[len(open)-1]].WriteString(p.x.Text)
				}

			case xpp.EndTag:
				switch {
				case rec != nil:
					idx := open[len(open)-1]
					open = open[:len(open)-1]
					rec.Elements[idx].Text = strings.TrimSpace(textBufs[idx].String())
					if len(open) == 0 {
						item := *rec
						rec = nil
						if !yield(item, nil) {
							return
						}
					}
				case st == stateInCategories && p.x.Name == "categories",
					st == stateInOffers && p.x.Name == "offers":
					st = stateOutside
				}
			}
		}
	}
}

func (p *Parser) element(rootAt int) Element {
	attrs := make(map[string]string, len(p.x.Attrs))
	for _, a := range p.x.Attrs {
		attrs[a.Name.Local] = a.Value
	}
	return Element{Name: p.x.Name, Attrs: attrs, Depth: p.x.Depth - rootAt}
}

func sectionType(st state) ItemType {
	if st == stateInCategories {
		return TypeCategory
	}
	return TypeOffer
}
