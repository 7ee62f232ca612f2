package like

import (
	"errors"

	"github.com/PuerkitoBio/goquery"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/fetcher"
	"aeroport/internal/payload"
	"aeroport/internal/scraping"
	"aeroport/internal/yml"
)

// feedsSpec is the origin for partner shops exporting YML catalogs. The
// exports are listed in the origin settings.
func feedsSpec() airline.OriginSpec {
	return airline.OriginSpec{
		Name:  "feeds",
		Title: "Partner YML feeds",
		New:   newFeedsOrigin,
	}
}

func newFeedsOrigin(env airline.Env) (airline.Origin, error) {
	if env.Cache == nil {
		return nil, errors.New("feeds: file cache is not configured")
	}
	infos := make([]scraping.URLInfo, 0, len(env.Settings.Feeds))
	for _, f := range env.Settings.Feeds {
		infos = append(infos, scraping.NewURLInfo(f.URL, feedKwargs(f)))
	}
	return yml.NewOrigin(yml.Config{
		Airline:     env.Airline,
		Origin:      env.Origin,
		Exports:     scraping.NewStaticGenerator(infos...),
		Cache:       env.Cache,
		Postprocess: feedPostprocess,
		Sink:        env.Sink,
		Log:         env.Log,
		Metrics:     env.Metrics,
	})
}

func feedKwargs(f config.FeedSettings) map[string]any {
	kwargs := make(map[string]any, len(f.Kwargs)+1)
	for k, v := range f.Kwargs {
		kwargs[k] = v
	}
	kwargs["shop_name"] = f.ShopName
	return kwargs
}

func feedPostprocess(p *payload.Payload, _ string, info scraping.URLInfo) {
	p.SetIfDeclared("shop_name", info.String("shop_name"))
}

// arrivalsSpec is the origin for shops announcing new arrivals in an
// RSS or Atom feed. Every linked product page is fetched and read from its
// Open Graph tags.
func arrivalsSpec() airline.OriginSpec {
	return airline.OriginSpec{
		Name:  "arrivals",
		Title: "New arrivals feeds",
		New:   newArrivalsOrigin,
	}
}

func newArrivalsOrigin(env airline.Env) (airline.Origin, error) {
	if env.Feeds == nil {
		return nil, errors.New("arrivals: feed fetcher is not configured")
	}
	schemes := make([]scraping.SchemeItem, 0, len(env.Settings.Feeds))
	for _, f := range env.Settings.Feeds {
		kwargs, feeds := feedKwargs(f), []string{f.URL}
		schemes = append(schemes, scraping.SchemeItem{
			Downloader: scraping.DownloaderHTTP,
			Generator: func(fetcher.Downloader) scraping.URLGenerator {
				return scraping.NewFeedLinkGenerator(env.Feeds, feeds, kwargs, env.Log)
			},
			Adapters: []scraping.AdapterSpec{{New: newProductPageAdapter}},
		})
	}
	return scraping.NewOrigin(scraping.Config{
		Airline:     env.Airline,
		Origin:      env.Origin,
		Schemes:     schemes,
		Downloaders: env.Downloaders,
		Postprocess: arrivalsPostprocess,
		Sink:        env.Sink,
		Log:         env.Log,
		Metrics:     env.Metrics,
	})
}

func newProductPageAdapter(map[string]any) (scraping.ItemAdapter, error) {
	return &scraping.HTMLAdapter{Selector: "head", Adapt: adaptProductPage}, nil
}

func adaptProductPage(head *goquery.Selection) (*payload.Payload, error) {
	meta := func(property string) string {
		return scraping.Attr(head, `meta[property="`+property+`"]`, "content")
	}
	title := meta("og:title")
	priceText := meta("product:price:amount")
	if title == "" || priceText == "" {
		return nil, nil
	}
	price, err := ParseDollars(priceText)
	if err != nil {
		return nil, err
	}
	p := ShopItem.New()
	p.MustSet("title", title)
	p.MustSet("price", price)
	if v := meta("og:image"); v != "" {
		p.MustSet("thumbnail_uri", absoluteImage(v))
	}
	if v := meta("product:brand"); v != "" {
		p.MustSet("brand_title", v)
	}
	if v := meta("product:original_price:amount"); v != "" {
		if old, err := ParseDollars(v); err == nil {
			p.MustSet("oldprice", old)
		}
	}
	return p, nil
}

// arrivalsPostprocess identifies a product page by its feed entry.
func arrivalsPostprocess(p *payload.Payload, info scraping.URLInfo) {
	id := info.String("feed_guid")
	if id == "" {
		id = info.URL
	}
	p.MustSet("original_id", id)
	p.MustSet("url", info.URL)
	p.MustSet("shop_name", info.String("shop_name"))
	if v := info.String("shop_title"); v != "" {
		p.MustSet("shop_title", v)
	}
	if v, ok := info.Get("category_name"); ok {
		p.MustSet("category_name", v)
	}
	SetDiscount(p)
}
