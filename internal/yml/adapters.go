package yml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"aeroport/internal/payload"
)

var (
	ErrMissingID    = errors.New("record has no id")
	ErrMissingPrice = errors.New("offer has no price")
)

var (
	CategorySchema = payload.NewSchema("ymlcategory",
		"original_id", "parent_id", "title", "shop_name")

	OfferSchema = payload.NewSchema("ymloffer",
		"original_id", "category_id", "url", "title", "vendor", "price", "oldprice",
		"currency", "thumbnail_uri", "available", "description", "shop_name")
)

// Adapter converts a raw record into a payload. Returning (nil, nil) skips
// the record.
type Adapter interface {
	AdaptRawItem(raw RawItem) (*payload.Payload, error)
}

// AdapterFunc lets a function serve as an Adapter.
type AdapterFunc func(raw RawItem) (*payload.Payload, error)

func (f AdapterFunc) AdaptRawItem(raw RawItem) (*payload.Payload, error) { return f(raw) }

// CategoryAdapter maps <category id parentId>name</category>.
type CategoryAdapter struct{}

func (CategoryAdapter) AdaptRawItem(raw RawItem) (*payload.Payload, error) {
	root := raw.Root()
	id, ok := root.Attr("id")
	if !ok || id == "" {
		return nil, ErrMissingID
	}
	p := CategorySchema.New()
	p.MustSet("original_id", id)
	p.MustSet("title", root.Text)
	if parent, ok := root.Attr("parentId", "parent_id", "parentid"); ok && parent != "" {
		p.MustSet("parent_id", parent)
	}
	return p, nil
}

// OfferAdapter maps an <offer> with simple or vendor.model layout.
type OfferAdapter struct{}

func (OfferAdapter) AdaptRawItem(raw RawItem) (*payload.Payload, error) {
	root := raw.Root()
	id, ok := root.Attr("id")
	if !ok || id == "" {
		return nil, ErrMissingID
	}
	price, err := ParsePrice(raw.ChildText("price"))
	if err != nil {
		return nil, fmt.Errorf("offer %s: %w", id, err)
	}

	p := OfferSchema.New()
	p.MustSet("original_id", id)
	p.MustSet("price", price)
	p.MustSet("title", OfferTitle(raw))
	p.MustSet("url", raw.ChildText("url"))
	p.MustSet("category_id", raw.ChildText("categoryId"))
	p.MustSet("available", root.Attrs["available"] != "false")
	setIfPresent(p, "vendor", raw.ChildText("vendor"))
	setIfPresent(p, "currency", raw.ChildText("currencyId"))
	setIfPresent(p, "thumbnail_uri", raw.ChildText("picture"))
	setIfPresent(p, "description", raw.ChildText("description"))
	if old := raw.ChildText("oldprice"); old != "" {
		if v, err := ParsePrice(old); err == nil {
			p.MustSet("oldprice", v)
		}
	}
	return p, nil
}

// OfferTitle returns <name>, or "typePrefix vendor model" for vendor.model
// offers.
func OfferTitle(raw RawItem) string {
	if name := raw.ChildText("name"); name != "" {
		return name
	}
	parts := make([]string, 0, 3)
	for _, tag := range []string{"typePrefix", "vendor", "model"} {
		if v := raw.ChildText(tag); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// ParsePrice accepts "1234.50" and "1234,50".
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMissingPrice
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return v, nil
}

func setIfPresent(p *payload.Payload, key, v string) {
	if v != "" {
		p.MustSet(key, v)
	}
}
