// Package like is the "Like That Bag" airline: bag shops scraped from their
// listing pages plus partner shops that publish YML feeds.
package like

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"aeroport/internal/airline"
	"aeroport/internal/payload"
	"aeroport/internal/scraping"
)

const (
	Name  = "like"
	Title = "Like That Bag"
)

var (
	// ShopItem is a bag offered by a shop.
	ShopItem = payload.NewSchema("shopitem",
		"original_id", "url", "thumbnail_uri", "brand_title", "title",
		"price", "oldprice", "discount", "brand_id", "shop_title", "shop_name",
		"primary_local_category_id", "category_name")

	// Brand is a bag brand seen on a shop listing.
	Brand = payload.NewSchema("brand", "title", "logo_url")
)

// New returns the airline with all of its origins.
func New() *airline.Airline {
	return airline.New(Name, Title,
		zapposSpec(zappos),
		zapposSpec(sixPM),
		ebagsSpec(),
		feedsSpec(),
		arrivalsSpec(),
	)
}

// shop identifies the store a payload came from.
type shop struct {
	name  string
	title string
	url   string
}

// postprocess copies the category context and shop identity into items and
// computes their discount.
func (s shop) postprocess(categoryKey string) scraping.Postprocess {
	return func(p *payload.Payload, info scraping.URLInfo) {
		if p.Schema() != ShopItem {
			return
		}
		if v, ok := info.Get(categoryKey); ok {
			p.MustSet("primary_local_category_id", v)
		}
		if v := info.String("category_name"); v != "" {
			p.MustSet("category_name", v)
		}
		p.MustSet("shop_title", s.title)
		p.MustSet("shop_name", s.name)
		SetDiscount(p)
	}
}

// SetDiscount stores the discount percentage derived from price and
// oldprice, or 0 when there is no old price.
func SetDiscount(p *payload.Payload) {
	price, _ := p.Float("price")
	old, ok := p.Float("oldprice")
	if !ok || old <= 0 {
		p.MustSet("discount", 0)
		return
	}
	p.MustSet("discount", Discount(price, old))
}

// Discount is the rounded percentage price is below oldprice.
func Discount(price, oldprice float64) int {
	return int(math.RoundToEven(100 - math.RoundToEven(100*price/oldprice)))
}

// ParseDollars parses "$129.95" style prices.
func ParseDollars(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "$", ""))
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	return v, nil
}

var oldPriceRe = regexp.MustCompile(`\$([0-9.]+)\)`)

// OldPrice extracts the original price from a "(MSRP $150.00)" style label.
func OldPrice(s string) float64 {
	m := oldPriceRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// absoluteImage turns protocol-relative image URLs into http ones.
func absoluteImage(src string) string {
	if strings.HasPrefix(src, "//") {
		return "http:" + src
	}
	return src
}
