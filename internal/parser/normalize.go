package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/surpriset/market-parser/internal/models"
	"github.com/surpriset/market-parser/internal/sites"
)

// compositionKeys are the characteristic names, localized variants included,
// that hold the product composition. First hit wins.
var compositionKeys = []string{"Состав", "Материал", "Composition", "Material", "Материалы"}

// Normalize converts a raw, site-specific object into the canonical record.
// It never returns nil; callers decide whether the record is complete.
func Normalize(raw RawProduct, profile *sites.Profile) *models.ProductRecord {
	rec := models.NewProductRecord()
	if raw == nil {
		return rec
	}

	rec.Title = normalizeTitle(raw.String(profile.TitleKeys...))
	rec.Description = raw.String("description", "text")
	rec.Category = raw.String(profile.CategoryKeys...)

	pricing := profile
	if raw.WholeUnitPrices() {
		// Selector strategies read rendered whole-ruble text, so the
		// minor-unit correction does not apply however large the value.
		p := *profile
		p.MinorUnitPrice = false
		pricing = &p
	}
	rec.Price = NormalizePrice(numberOrZero(raw, profile.PriceKeys...), pricing)
	rec.OldPrice = NormalizePrice(numberOrZero(raw, profile.OldPriceKeys...), pricing)
	if rec.OldPrice == rec.Price {
		// A matching "old" price is just the same field surfaced twice.
		rec.OldPrice = 0
	}

	rec.Characteristics = normalizeCharacteristics(raw)
	rec.Composition = compositionFrom(rec.Characteristics)
	rec.Images = normalizeImages(raw, profile)
	rec.InStock = normalizeStock(raw, profile)

	return rec
}

// Merge fills the blanks of dst from src without overwriting anything dst
// already has. Strategies disagree on which fields they can see, so a
// trusted-but-partial result gets supplemented by a less trusted one.
func Merge(dst, src *models.ProductRecord) {
	if dst.Price == 0 {
		dst.Price = src.Price
	}
	if dst.OldPrice == 0 {
		dst.OldPrice = src.OldPrice
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if len(dst.Images) == 0 {
		dst.Images = src.Images
	}
	if len(dst.Characteristics) == 0 && len(src.Characteristics) > 0 {
		dst.Characteristics = src.Characteristics
		if dst.Composition == "" {
			dst.Composition = compositionFrom(dst.Characteristics)
		}
	}
}

// Incomplete reports whether a record is missing fields a lower-trust
// source could still provide.
func Incomplete(rec *models.ProductRecord) bool {
	return rec.Price == 0 || rec.Description == "" || len(rec.Images) == 0
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < models.MinTitleLen {
		return ""
	}
	return title
}

// NormalizePrice coerces a raw price into whole currency units.
//
// Minor-unit sites historically stored price x100 and silently switched
// representations more than once, so the correction is a per-site flag plus
// a magnitude threshold, never magnitude alone. Out-of-band values are
// absent, not a price. The function is idempotent on in-band values.
func NormalizePrice(value float64, profile *sites.Profile) int {
	if value <= 0 {
		return 0
	}
	if profile.MinorUnitPrice && value > sites.PriceMinorUnitFloor {
		value = value / 100
	}
	if value <= 0 || value >= sites.PriceSanityCap {
		return 0
	}
	return int(value)
}

func numberOrZero(raw RawProduct, keys ...string) float64 {
	v, ok := raw.Number(keys...)
	if !ok {
		return 0
	}
	return v
}

// normalizeCharacteristics flattens every pair-shaped source into one
// string-valued map. Later duplicate keys overwrite earlier ones.
func normalizeCharacteristics(raw RawProduct) map[string]string {
	out := make(map[string]string)

	for _, key := range []string{"characteristics", "specifications"} {
		switch src := raw[key].(type) {
		case map[string]any:
			for name, value := range src {
				putCharacteristic(out, name, value)
			}
		case []any:
			for _, item := range src {
				pair, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name, _ := pair["name"].(string)
				if name == "" {
					name, _ = pair["key"].(string)
				}
				putCharacteristic(out, name, pair["value"])
			}
		}
	}

	return out
}

func putCharacteristic(out map[string]string, name string, value any) {
	name = strings.TrimSpace(name)
	if name == "" || value == nil {
		return
	}
	var text string
	switch v := value.(type) {
	case string:
		text = strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			text = fmt.Sprintf("%d", int64(v))
		} else {
			text = fmt.Sprintf("%g", v)
		}
	case bool:
		text = fmt.Sprintf("%t", v)
	default:
		text = strings.TrimSpace(fmt.Sprintf("%v", v))
	}
	if text != "" {
		out[name] = text
	}
}

func compositionFrom(characteristics map[string]string) string {
	for _, key := range compositionKeys {
		if v, ok := characteristics[key]; ok {
			return v
		}
	}
	return ""
}

// normalizeImages canonicalizes, upscales, deduplicates and caps the image
// list. Entries may be plain URLs or objects from any of the site payloads.
func normalizeImages(raw RawProduct, profile *sites.Profile) []string {
	var urls []string

	for _, key := range []string{"images", "photos", "pictures"} {
		list, ok := raw[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			switch v := item.(type) {
			case string:
				urls = append(urls, v)
			case map[string]any:
				for _, field := range []string{"url", "original", "src", "fullSize", "link"} {
					if u, ok := v[field].(string); ok && u != "" {
						urls = append(urls, u)
						break
					}
				}
			}
		}
		if len(urls) > 0 {
			break
		}
	}

	// Wildberries card payloads sometimes carry only the numeric product
	// id; the CDN path is derivable from it.
	if len(urls) == 0 && profile.ImagesFromID != nil {
		if id, ok := raw.Number("id", "nm_id", "nmId"); ok {
			urls = profile.ImagesFromID(int64(id))
		}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, profile.ImageCap)
	for _, u := range urls {
		u = canonicalizeImageURL(u, profile)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == profile.ImageCap {
			break
		}
	}
	return out
}

func canonicalizeImageURL(u string, profile *sites.Profile) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.HasPrefix(u, "data:") {
		return ""
	}

	switch {
	case strings.HasPrefix(u, "//"):
		u = "https:" + u
	case strings.HasPrefix(u, "/"):
		// A root-relative path carries no host to resolve against.
		return ""
	case !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://"):
		u = "https://" + u
	}

	// CDN URLs carry size parameters in the query string; the bare path
	// serves the original.
	if strings.Contains(u, "cdn") {
		if i := strings.IndexByte(u, '?'); i >= 0 {
			u = u[:i]
		}
	}

	for _, rw := range profile.ImageRewrites {
		u = rw.Pattern.ReplaceAllString(u, rw.Replacement)
	}
	return u
}

// normalizeStock defaults to in-stock; only explicit unavailability signals
// flip it.
func normalizeStock(raw RawProduct, profile *sites.Profile) bool {
	if avail, ok := raw.Bool("isAvailable", "available", "inStock"); ok {
		return avail
	}

	if stocks, ok := raw["stocks"].([]any); ok {
		// A present-but-empty stock list is an explicit signal, unlike a
		// missing one.
		if len(stocks) == 0 {
			return false
		}
		if first, ok := stocks[0].(map[string]any); ok {
			if in, ok := first["inStock"].(bool); ok {
				return in
			}
		}
	}

	if text := raw.String("stockText"); text != "" {
		lower := strings.ToLower(text)
		for _, phrase := range profile.UnavailablePhrases {
			if strings.Contains(lower, phrase) {
				return false
			}
		}
	}

	return true
}
