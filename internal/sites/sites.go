package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// FieldSelectors holds the ordered CSS selector lists the DOM strategy
// queries, per record field. Each field is resolved independently; selectors
// earlier in the list are preferred.
type FieldSelectors struct {
	Title           []string `json:"title"`
	Price           []string `json:"price"`
	OldPrice        []string `json:"oldPrice"`
	Description     []string `json:"description"`
	Images          []string `json:"images"`
	Stock           []string `json:"stock"`
	Characteristics []string `json:"characteristics"`
}

// ImageRewrite substitutes a known low-resolution URL segment with its
// maximum-resolution equivalent.
type ImageRewrite struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// AggressiveLimits are the validation thresholds for the aggressive DOM
// strategy. They are tuned against observed pages and kept on the profile so
// retuning is a data change, not a code change.
type AggressiveLimits struct {
	MinTitleLen int      `json:"minTitleLen"`
	MinPrice    int      `json:"minPrice"`
	MaxPrice    int      `json:"maxPrice"`
	Exclude     []string `json:"exclude"` // lowercase challenge-page phrases
}

// Profile is the immutable per-marketplace configuration. Profiles are
// process-wide; nothing in the parse path mutates them.
type Profile struct {
	Name  string
	Hosts []string // hostname suffixes, matched in order

	// Ordered key candidates recognized by the usability predicate and the
	// normalizer. Sites have renamed these over time, so several are tried.
	TitleKeys    []string
	PriceKeys    []string
	OldPriceKeys []string
	CategoryKeys []string

	// MinorUnitPrice marks sites that historically store price x100. The
	// correction only fires above PriceMinorUnitFloor; whole-unit sites are
	// never corrected, regardless of magnitude.
	MinorUnitPrice bool

	// StateObjects are the well-known global object names probed before the
	// exhaustive scan. ScanTokens drive the exhaustive window-key scan.
	StateObjects []string
	ScanTokens   []string

	// ScriptGlobals are the assignment targets the script-payload strategy
	// looks for in raw inline script text.
	ScriptGlobals []string

	Selectors FieldSelectors

	ImageCap       int
	ImageRewrites  []ImageRewrite
	ImageHostHints []string // aggressive strategy keeps only hinted hosts

	// ImagesFromID synthesizes gallery URLs from a numeric product id for
	// sites whose CDN paths are derivable. Nil when not applicable.
	ImagesFromID func(id int64) []string

	// StripQuery removes the query string before navigation; some sites
	// re-trigger their challenge page on parameterized URLs.
	StripQuery bool

	BlockMarkers       []string // resolved-URL challenge indicators, lowercase
	UnavailablePhrases []string // lowercase DOM stock-status phrases

	Aggressive AggressiveLimits
}

// PriceMinorUnitFloor is the magnitude above which a minor-unit price is
// assumed to actually be stored x100. PriceSanityCap bounds any accepted
// price; values at or above it are treated as absent.
const (
	PriceMinorUnitFloor = 10_000
	PriceSanityCap      = 10_000_000
)

var cdnSizeRewrites = []ImageRewrite{
	{Pattern: regexp.MustCompile(`/w\d+/`), Replacement: "/w2000/"},
	{Pattern: regexp.MustCompile(`/h\d+/`), Replacement: "/h2000/"},
}

var defaultBlockMarkers = []string{"captcha", "challenge", "smartcaptcha"}

var defaultUnavailable = []string{"нет в наличии", "недоступен", "закончился", "out of stock"}

// Wildberries stores salePriceU/priceU in kopecks and names the title
// imt_name in its card payloads.
var Wildberries = &Profile{
	Name:           "wildberries",
	Hosts:          []string{"wildberries.ru", "wildberries.by", "wb.ru"},
	TitleKeys:      []string{"imt_name", "name", "title", "productName"},
	PriceKeys:      []string{"salePriceU", "priceU", "price"},
	OldPriceKeys:   []string{"priceU"},
	CategoryKeys:   []string{"subjectName", "category"},
	MinorUnitPrice: true,
	StateObjects: []string{
		"__WBLB_INITIAL_DATA__",
		"__WB_INITIAL_DATA__",
		"__WBL1_DATA__",
		"__WBL__",
	},
	ScanTokens:    []string{"WBL", "WB_", "INITIAL", "DATA", "STATE", "PRODUCT"},
	ScriptGlobals: []string{"__WBLB_INITIAL_DATA__", "__WB_INITIAL_DATA__"},
	Selectors: FieldSelectors{
		Title: []string{
			"h1",
			".product-page__title",
			"[data-product-name]",
			".product-card__title",
			`h1[itemprop="name"]`,
		},
		Price: []string{
			".price-block__final-price",
			`[class*="price-block"] span`,
			".product-page__price",
			`[data-auto="price"]`,
		},
		OldPrice: []string{
			".price-block__old-price",
			`[class*="old-price"]`,
		},
		Description: []string{
			".product-page__description",
			`[class*="description"]`,
			".j-description",
		},
		Images: []string{
			".product-page__gallery img",
			".product-page__slider img",
			`[class*="gallery"] img`,
			".swiper-slide img",
		},
		Stock: []string{
			`[class*="stock"]`,
			`[class*="available"]`,
		},
		Characteristics: []string{
			".product-params",
			`[class*="characteristic"]`,
		},
	},
	ImageCap:           10,
	ImageHostHints:     []string{"wb", "basket"},
	ImagesFromID:       wildberriesBasketImages,
	BlockMarkers:       defaultBlockMarkers,
	UnavailablePhrases: defaultUnavailable,
	Aggressive: AggressiveLimits{
		MinTitleLen: 6,
		MinPrice:    1,
		MaxPrice:    1_000_000,
		Exclude:     []string{"подтвердите", "бот"},
	},
}

// wildberriesBasketImages derives the CDN gallery path from the numeric
// product id; the vol/part shard scheme is how the basket hosts lay out
// product media.
func wildberriesBasketImages(id int64) []string {
	vol := id / 100_000
	part := id / 1_000
	urls := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		urls = append(urls, fmt.Sprintf(
			"https://basket-%02d.wbbasket.ru/vol%d/part%d/%d/images/big/%d.webp",
			vol, vol, part, id, i))
	}
	return urls
}

// Ozon moved from __APP_STATE__ to __INITIAL_STATE__ and keeps product data
// inside widgetStates; CDN image URLs carry size path segments.
var Ozon = &Profile{
	Name:           "ozon",
	Hosts:          []string{"ozon.ru", "ozon.by", "ozon.kz"},
	TitleKeys:      []string{"title", "name"},
	PriceKeys:      []string{"price", "finalPrice", "salePrice"},
	OldPriceKeys:   []string{"oldPrice", "originalPrice"},
	CategoryKeys:   []string{"category"},
	MinorUnitPrice: true,
	StateObjects: []string{
		"__INITIAL_STATE__",
		"__APP_STATE__",
	},
	ScanTokens:    []string{"APP", "STATE", "INITIAL", "DATA", "OZON", "PRODUCT"},
	ScriptGlobals: []string{"__INITIAL_STATE__", "__APP_STATE__"},
	Selectors: FieldSelectors{
		Title: []string{
			"h1",
			`[data-widget="webProductHeading"]`,
			".product-page__title",
			`[data-test-id="productTitle"]`,
			`h1[itemprop="name"]`,
		},
		Price: []string{
			`[data-widget="webPrice"]`,
			".product-page__price",
			`[data-test-id="price-current"]`,
			`[class*="final-price"]`,
			`[itemprop="price"]`,
		},
		OldPrice: []string{
			`[data-test-id="price-old"]`,
			".product-page__price-old",
			`[class*="old-price"]`,
			`[class*="price-old"]`,
		},
		Description: []string{
			`[data-widget="webProductDescription"]`,
			".product-page__description",
			`[data-test-id="productDescription"]`,
			`[class*="description"]`,
		},
		Images: []string{
			`[data-widget="webGallery"] img`,
			".product-page__gallery img",
			".product-page__slider img",
			`[class*="gallery"] img`,
		},
		Stock: []string{
			`[data-test-id="stock-status"]`,
			".product-page__stock",
		},
		Characteristics: []string{
			`[data-widget="webCharacteristics"]`,
			`[class*="characteristic"]`,
		},
	},
	ImageCap:           3,
	ImageRewrites:      cdnSizeRewrites,
	ImageHostHints:     []string{"ozon", "cdn"},
	StripQuery:         true,
	BlockMarkers:       defaultBlockMarkers,
	UnavailablePhrases: defaultUnavailable,
	Aggressive: AggressiveLimits{
		MinTitleLen: 4,
		MinPrice:    1,
		MaxPrice:    PriceSanityCap - 1,
		Exclude:     []string{"подтвердите", "бот"},
	},
}

// YandexMarket stores prices as whole rubles, often nested as {value: N}.
var YandexMarket = &Profile{
	Name:         "yandex_market",
	Hosts:        []string{"market.yandex.ru", "market.yandex.by"},
	TitleKeys:    []string{"title", "name"},
	PriceKeys:    []string{"price"},
	OldPriceKeys: []string{"oldPrice"},
	CategoryKeys: []string{"category"},
	StateObjects: []string{
		"__INITIAL_DATA__",
		"__INITIAL_STATE__",
	},
	ScanTokens:    []string{"INITIAL", "DATA", "STATE", "YANDEX", "MARKET", "PRODUCT"},
	ScriptGlobals: []string{"__INITIAL_DATA__"},
	Selectors: FieldSelectors{
		Title: []string{
			"h1",
			`[data-auto="product-title"]`,
			".product-title",
			`[data-zone-name="productTitle"]`,
			`h1[itemprop="name"]`,
		},
		Price: []string{
			`[data-auto="price"]`,
			`[data-zone-name="price"]`,
			`[itemprop="price"]`,
			".product-price",
		},
		OldPrice: []string{
			`[data-auto="old-price"]`,
			".product-price-old",
			`[class*="old-price"]`,
			`[class*="price-old"]`,
		},
		Description: []string{
			`[data-zone-name="productDescription"]`,
			".product-description",
			`[itemprop="description"]`,
		},
		Images: []string{
			`[data-zone-name="productGallery"] img`,
			".product-gallery img",
			".product-slider img",
			`[class*="gallery"] img`,
		},
		Stock: []string{
			`[data-auto="stock-status"]`,
			".product-stock",
		},
		Characteristics: []string{
			`[data-zone-name="productSpecifications"]`,
			".product-specifications",
		},
	},
	ImageCap:           3,
	ImageHostHints:     []string{"market.yandex", "mdata.yandex", "avatars.mds.yandex"},
	StripQuery:         true,
	BlockMarkers:       defaultBlockMarkers,
	UnavailablePhrases: defaultUnavailable,
	Aggressive: AggressiveLimits{
		MinTitleLen: 4,
		MinPrice:    10,
		MaxPrice:    PriceSanityCap - 1,
		Exclude:     []string{"подтвердите", "бот"},
	},
}

// All lists the supported profiles in selection order. The order is fixed so
// selection is deterministic.
var All = []*Profile{Wildberries, Ozon, YandexMarket}

// Select maps a product URL to its marketplace profile.
func Select(rawURL string) (*Profile, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range All {
		for _, h := range p.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p, nil
			}
		}
	}

	return nil, fmt.Errorf("no profile for host %q", host)
}

// CleanURL applies the profile's pre-navigation URL policy.
func (p *Profile) CleanURL(rawURL string) string {
	if !p.StripQuery {
		return rawURL
	}
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Blocked reports whether the resolved URL carries a challenge indicator.
// Only the URL is inspected: product titles can legitimately contain guard
// keywords, the URL cannot.
func (p *Profile) Blocked(resolvedURL string) bool {
	lower := strings.ToLower(resolvedURL)
	for _, marker := range p.BlockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
