package like

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aeroport/internal/airline"
	"aeroport/internal/fetcher"
	"aeroport/internal/payload"
	"aeroport/internal/scraping"
)

// zapposPattern is shared by zappos.com and its outlet 6pm.com.
const zapposPattern = "{shop_url}/{category_name}{code1}#!/{category_name_page}-page{page_number}/{code2}.zso?p={page_number_zero}"

type zapposShop struct {
	shop
	categories []map[string]any
}

var zappos = zapposShop{
	shop: shop{name: "zappos", title: "Zappos", url: "http://zappos.com"},
	categories: []map[string]any{
		zapposCategory("handbags", "handbags", "%7E5j", "COjWARCS1wHiAgIBAg", 1),
		zapposCategory("backpacks", "backpacks", "~1N", "COjWARCQ1wHiAgIBAg", 2),
		zapposCategory("luggage-bags", "luggage", "~5", "COjWARCT1wHiAgIBAg", 3),
		zapposCategory("wallets-accessories", "wallets-accessories", "%7Ew", "COjWARCW1wHiAgIBAg", 4),
		zapposCategory("duffle-bags", "duffle-bags", "~3", "COjWARCj1wHiAgIBAg", 5),
		zapposCategory("messenger-bags", "messenger-bags", "~L", "COjWARCU1wHiAgIBAg", 6),
		zapposCategory("laptop-bags", "laptop-bags", "~12", "COjWARCY1wHiAgIBAg", 7),
		zapposCategory("bags-packs-sporting-goods", "bags-packs", "~3", "CLDXARDJ2QHiAgIBAg", 8),
	},
}

var sixPM = zapposShop{
	shop: shop{name: "6pm", title: "6pm", url: "http://6pm.com"},
	categories: []map[string]any{
		zapposCategory("handbags", "handbags", "~4P", "COjWARCS1wHiAgIBAg", 1),
		zapposCategory("backpacks", "backpacks", "~1N", "COjWARCQ1wHiAgIBAg", 2),
		zapposCategory("luggage-bags", "luggage", "~5", "COjWARCT1wHiAgIBAg", 3),
		zapposCategory("wallets-accessories", "wallets-accessories", "~2", "COjWARCW1wHiAgIBAg", 4),
		zapposCategory("duffle-bags", "duffle-bags", "~3", "COjWARCj1wHiAgIBAg", 5),
		zapposCategory("messenger-bags", "messenger-bags", "~L", "COjWARCU1wHiAgIBAg", 6),
		zapposCategory("laptop-bags", "laptop-bags", "~L", "COjWARCY1wHiAgIBAg", 7),
	},
}

func zapposCategory(name, page, code1, code2 string, id int) map[string]any {
	return map[string]any{
		"category_name":             name,
		"category_name_page":        page,
		"code1":                     code1,
		"code2":                     code2,
		"primary_local_category_id": id,
	}
}

func zapposSpec(s zapposShop) airline.OriginSpec {
	return airline.OriginSpec{
		Name:               s.name,
		Title:              s.title,
		DefaultDestination: "console",
		New:                s.newOrigin,
	}
}

func (s zapposShop) newOrigin(env airline.Env) (airline.Origin, error) {
	maxPages, err := env.Settings.Int("max_pages", 0)
	if err != nil {
		return nil, err
	}
	retries, err := env.Settings.Int("page_count_retries", 2)
	if err != nil {
		return nil, err
	}
	pattern := s.pattern()
	return scraping.NewOrigin(scraping.Config{
		Airline: env.Airline,
		Origin:  env.Origin,
		Schemes: []scraping.SchemeItem{{
			Downloader: scraping.DownloaderHTTP,
			Generator: func(d fetcher.Downloader) scraping.URLGenerator {
				counter := &scraping.SelectorPageCounter{Downloader: d, Selector: "span.last a.pager", Retries: uint64(retries)}
				return scraping.NewPagedGenerator(pattern, s.categories, counter,
					scraping.WithMaxPages(maxPages), scraping.WithLogger(env.Log))
			},
			Adapters: []scraping.AdapterSpec{{New: s.newAdapter}},
		}},
		Downloaders: env.Downloaders,
		Postprocess: s.postprocess("primary_local_category_id"),
		Sink:        env.Sink,
		Log:         env.Log,
		Metrics:     env.Metrics,
	})
}

func (s zapposShop) pattern() string {
	return strings.ReplaceAll(zapposPattern, "{shop_url}", s.url)
}

func (s zapposShop) newAdapter(map[string]any) (scraping.ItemAdapter, error) {
	return &scraping.HTMLAdapter{
		Selector: "div#searchResults a.product",
		Adapt:    s.adaptItem,
	}, nil
}

// adaptItem reads one product tile. Tiles missing any identifying field are
// skipped.
func (s zapposShop) adaptItem(raw *goquery.Selection) (*payload.Payload, error) {
	href := scraping.Attr(raw, "", "href")
	productID := scraping.Attr(raw, "", "data-product-id")
	styleID := scraping.Attr(raw, "", "data-style-id")
	thumb := scraping.Attr(raw, "img.productImg", "src")
	brand := scraping.Text(raw, "span.brandName")
	title := scraping.Text(raw, "span.productName")
	priceText := scraping.Text(raw, "span.price")
	if href == "" || productID == "" || styleID == "" || thumb == "" || brand == "" || title == "" || priceText == "" {
		return nil, nil
	}
	price, err := ParseDollars(priceText)
	if err != nil {
		return nil, err
	}

	p := ShopItem.New()
	p.MustSet("url", s.url+href)
	p.MustSet("original_id", productID+styleID)
	p.MustSet("thumbnail_uri", thumb)
	p.MustSet("brand_title", brand)
	p.MustSet("title", title)
	p.MustSet("price", price)
	p.MustSet("oldprice", OldPrice(scraping.Text(raw, "span.discount")))
	return p, nil
}
