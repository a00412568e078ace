package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// RawProduct is the untyped, site-specific object one extraction strategy
// produced. Its shape varies per source; the normalizer consumes it and it
// never leaves a parse call.
type RawProduct map[string]any

// keyPriceWholeUnit marks a raw object whose prices were read from rendered
// text. Such values are already whole rubles and must never go through the
// minor-unit correction.
const keyPriceWholeUnit = "priceWholeUnit"

// MarkWholeUnitPrices tags the object for the normalizer's price handling.
func (r RawProduct) MarkWholeUnitPrices() {
	if r != nil {
		r[keyPriceWholeUnit] = true
	}
}

// WholeUnitPrices reports whether prices in this object are already whole
// currency units.
func (r RawProduct) WholeUnitPrices() bool {
	b, _ := r[keyPriceWholeUnit].(bool)
	return b
}

var digitsRe = regexp.MustCompile(`[^\d.]`)

// String returns the first non-empty trimmed string found under keys.
func (r RawProduct) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// Number returns the first positive numeric value found under keys,
// accepting raw numbers, numeric strings and nested {value: ...} shapes.
func (r RawProduct) Number(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		if f, ok := asNumber(v); ok && f > 0 {
			return f, true
		}
	}
	return 0, false
}

// Slice returns the first list value found under keys.
func (r RawProduct) Slice(keys ...string) []any {
	for _, k := range keys {
		if l, ok := r[k].([]any); ok && len(l) > 0 {
			return l
		}
	}
	return nil
}

// Bool returns the first boolean found under keys.
func (r RawProduct) Bool(keys ...string) (bool, bool) {
	for _, k := range keys {
		if b, ok := r[k].(bool); ok {
			return b, true
		}
	}
	return false, false
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		cleaned := digitsRe.ReplaceAllString(t, "")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	case map[string]any:
		for _, k := range []string{"value", "finalPrice", "price"} {
			if inner, ok := t[k]; ok {
				if f, ok := asNumber(inner); ok {
					return f, true
				}
			}
		}
	}
	return 0, false
}

// toRaw converts a script-evaluation result into a RawProduct. Anything
// that is not an object is discarded.
func toRaw(v any) RawProduct {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	return RawProduct(m)
}

// probeProductShape digs a product-like object out of a decoded state blob,
// trying the nesting layouts the marketplaces have used: a product field,
// catalog/data wrappers, a cards list, keyed widget-state entries, or the
// blob itself exposing name/price-like fields.
func probeProductShape(m map[string]any) RawProduct {
	if m == nil {
		return nil
	}
	if p, ok := m["product"].(map[string]any); ok {
		return RawProduct(p)
	}
	for _, wrapper := range []string{"data", "state", "catalog"} {
		if inner, ok := m[wrapper].(map[string]any); ok {
			if p, ok := inner["product"].(map[string]any); ok {
				return RawProduct(p)
			}
		}
	}
	if cards, ok := m["cards"].([]any); ok && len(cards) > 0 {
		if p, ok := cards[0].(map[string]any); ok {
			return RawProduct(p)
		}
	}
	if widgets, ok := m["widgetStates"].(map[string]any); ok {
		for _, v := range widgets {
			w, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if p, ok := w["product"].(map[string]any); ok {
				return RawProduct(p)
			}
			if hasProductFields(w) {
				return RawProduct(w)
			}
		}
	}
	if hasProductFields(m) {
		return RawProduct(m)
	}
	return nil
}

func hasProductFields(m map[string]any) bool {
	for _, k := range []string{"imt_name", "name", "title", "salePriceU", "priceU", "price"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
