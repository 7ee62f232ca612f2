package like

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aeroport/internal/airline"
	"aeroport/internal/fetcher"
	"aeroport/internal/payload"
	"aeroport/internal/scraping"
)

// ebagsPageSize is the number of items on an ebags listing page.
const ebagsPageSize = 120

var ebags = shop{name: "ebags", title: "eBags", url: "http://www.ebags.com"}

var ebagsCategories = []map[string]any{
	ebagsCategory("handbags", "category/handbags/dept/handbags", 1),
	ebagsCategory("backpacks", "search/dept/backpacks", 2),
	ebagsCategory("luggage", "category/luggage/dept/luggage", 3),
	ebagsCategory("accessories", "category/wallets/dept/accessories", 4),
	ebagsCategory("business", "category/messenger-and-shoulder-bags/messenger-bags/dept/business", 6),
	ebagsCategory("business", "category/business-cases/laptop-bags/dept/business", 7),
	ebagsCategory("sports", "search/dept/sports", 8),
}

var ebagsProductID = regexp.MustCompile(`productid=(\d+)$`)

func ebagsCategory(name, url string, id int) map[string]any {
	return map[string]any{
		"category_name":        name,
		"category_url":         url,
		"matching_category_id": id,
	}
}

// ebags renders its listings client side, so pages go through the browser.
func ebagsSpec() airline.OriginSpec {
	return airline.OriginSpec{
		Name:               ebags.name,
		Title:              ebags.title,
		DefaultDestination: "stream",
		New:                newEbagsOrigin,
	}
}

func newEbagsOrigin(env airline.Env) (airline.Origin, error) {
	maxPages, err := env.Settings.Int("max_pages", 0)
	if err != nil {
		return nil, err
	}
	retries, err := env.Settings.Int("page_count_retries", 1)
	if err != nil {
		return nil, err
	}
	pattern := ebags.url + "/{category_url}#from{offset}"
	return scraping.NewOrigin(scraping.Config{
		Airline: env.Airline,
		Origin:  env.Origin,
		Schemes: []scraping.SchemeItem{{
			Downloader: scraping.DownloaderBrowser,
			Generator: func(d fetcher.Downloader) scraping.URLGenerator {
				counter := &scraping.SelectorPageCounter{Downloader: d, Selector: `span[data-bind="text:numPages"]`, Retries: uint64(retries)}
				return scraping.NewPagedGenerator(pattern, ebagsCategories, counter,
					scraping.WithPageVars(ebagsOffset),
					scraping.WithMaxPages(maxPages),
					scraping.WithLogger(env.Log))
			},
			Adapters: []scraping.AdapterSpec{
				{New: newEbagsAdapter(adaptEbagsItem)},
				{New: newEbagsAdapter(adaptEbagsBrand)},
			},
		}},
		Downloaders: env.Downloaders,
		Postprocess: ebags.postprocess("matching_category_id"),
		Sink:        env.Sink,
		Log:         env.Log,
		Metrics:     env.Metrics,
	})
}

func ebagsOffset(page int) map[string]string {
	return map[string]string{"offset": strconv.Itoa(ebagsPageSize * (page - 1))}
}

func newEbagsAdapter(adapt func(*goquery.Selection) (*payload.Payload, error)) scraping.AdapterFactory {
	return func(map[string]any) (scraping.ItemAdapter, error) {
		return &scraping.HTMLAdapter{Selector: "div#srNew div.listPageItem", Adapt: adapt}, nil
	}
}

func adaptEbagsItem(raw *goquery.Selection) (*payload.Payload, error) {
	thumb := lazyImage(raw.Find("div.listPageImage img.responsiveListItem").First(), "data-yo-src", "src")
	info := raw.Find("div.listPageItemInfo").First()
	link := info.Find("div.itemBrandName a").First()
	href, _ := link.Attr("href")
	m := ebagsProductID.FindStringSubmatch(href)
	title := scraping.Text(info, "div.itemProductName")
	priceText := scraping.Text(info, "div.itemProductPrice")
	if thumb == "" || m == nil || title == "" || priceText == "" {
		return nil, nil
	}
	price, err := ParseDollars(priceText)
	if err != nil {
		return nil, err
	}
	var oldprice float64
	if s := scraping.Text(info, "div.itemStrikeThroughPrice"); strings.Trim(s, "$ ") != "" {
		if oldprice, err = ParseDollars(s); err != nil {
			return nil, err
		}
	}

	p := ShopItem.New()
	p.MustSet("thumbnail_uri", thumb)
	p.MustSet("brand_title", strings.TrimSpace(link.Text()))
	p.MustSet("url", ebags.url+href)
	p.MustSet("original_id", m[1])
	p.MustSet("title", title)
	p.MustSet("price", price)
	p.MustSet("oldprice", oldprice)
	return p, nil
}

func adaptEbagsBrand(raw *goquery.Selection) (*payload.Payload, error) {
	title := scraping.Text(raw, "div.listPageItemInfo div.itemBrandName a")
	if title == "" {
		return nil, nil
	}
	p := Brand.New()
	p.MustSet("title", title)
	if logo := lazyImage(raw.Find("div.listPageBrand img").First(), "src", "data-yo-src"); logo != "" {
		p.MustSet("logo_url", logo)
	}
	return p, nil
}

// lazyImage reads a lazily loaded image: the primary attribute unless it is
// missing or an inline placeholder, then the secondary one.
func lazyImage(img *goquery.Selection, primary, secondary string) string {
	src := scraping.Attr(img, "", primary)
	if src == "" || strings.HasPrefix(src, "data:image/") {
		src = scraping.Attr(img, "", secondary)
	}
	if strings.HasPrefix(src, "data:image/") {
		return ""
	}
	return absoluteImage(src)
}
