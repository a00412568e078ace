package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/surpriset/market-parser/internal/sites"
)

// Strategy is one attempt at producing a raw product object from the page.
// A strategy that errors contributes nothing; the cascade moves on.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error)
}

const (
	StrategyStructuredData = "structured_data"
	StrategyGlobalState    = "global_state"
	StrategyGlobalScan     = "global_scan"
	StrategyScriptRegex    = "script_regex"
	StrategyDOM            = "dom"
	StrategyAggressiveDOM  = "aggressive_dom"
)

// CascadeStrategies is the full ordered strategy list, most trusted first.
func CascadeStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyStructuredData, Run: runStructuredData},
		{Name: StrategyGlobalState, Run: runGlobalState},
		{Name: StrategyGlobalScan, Run: runGlobalScan},
		{Name: StrategyScriptRegex, Run: runScriptRegex},
		{Name: StrategyDOM, Run: runDOM},
		{Name: StrategyAggressiveDOM, Run: runAggressiveDOM},
	}
}

// DOMStrategies is the reload-lost-the-state fallback: selectors only.
func DOMStrategies() []Strategy {
	return []Strategy{{Name: StrategyDOM, Run: runDOM}}
}

// AggressiveStrategies is the last escalation stage.
func AggressiveStrategies() []Strategy {
	return []Strategy{{Name: StrategyAggressiveDOM, Run: runAggressiveDOM}}
}

// runStructuredData scans embedded schema.org Product markup. It parses the
// page HTML directly rather than evaluating scripts: JSON-LD blocks are
// static text and goquery handles malformed marketplace markup well.
func runStructuredData(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error) {
	html, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var raw RawProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var decoded any
		if err := json.Unmarshal([]byte(s.Text()), &decoded); err != nil {
			return true
		}
		if product := findLDProduct(decoded); product != nil {
			raw = ldToRaw(product)
			return raw == nil
		}
		return true
	})

	if raw == nil {
		return nil, nil
	}
	return raw, nil
}

func findLDProduct(decoded any) map[string]any {
	switch t := decoded.(type) {
	case map[string]any:
		if isLDProduct(t) {
			return t
		}
		if graph, ok := t["@graph"].([]any); ok {
			return findLDProduct(graph)
		}
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok && isLDProduct(m) {
				return m
			}
		}
	}
	return nil
}

func isLDProduct(m map[string]any) bool {
	typ, _ := m["@type"].(string)
	return typ == "Product" || strings.HasSuffix(typ, "schema.org/Product")
}

// ldToRaw flattens a JSON-LD Product into the key shapes the normalizer
// understands. Offer prices come through as-is; the normalizer owns unit
// conventions.
func ldToRaw(ld map[string]any) RawProduct {
	raw := RawProduct{}

	if name, ok := ld["name"].(string); ok && strings.TrimSpace(name) != "" {
		raw["name"] = name
	}
	if desc, ok := ld["description"].(string); ok {
		raw["description"] = desc
	}

	switch offers := ld["offers"].(type) {
	case map[string]any:
		if p, ok := offers["price"]; ok {
			raw["price"] = p
		}
	case []any:
		if len(offers) > 0 {
			if offer, ok := offers[0].(map[string]any); ok {
				if p, ok := offer["price"]; ok {
					raw["price"] = p
				}
			}
		}
	}

	switch img := ld["image"].(type) {
	case string:
		raw["images"] = []any{img}
	case []any:
		raw["images"] = img
	}

	if len(raw) == 0 {
		return nil
	}
	return raw
}

// globalStateScript probes a fixed list of well-known state object names.
// Sites rename these without notice, so every historical candidate is tried.
const globalStateScript = `(names) => {
	for (const name of names) {
		let data;
		try { data = window[name]; } catch (e) { continue; }
		if (!data || typeof data !== 'object') continue;
		if (data.product) return data.product;
		if (data.data && data.data.product) return data.data.product;
		if (data.state && data.state.product) return data.state.product;
		if (data.catalog && data.catalog.product) return data.catalog.product;
		if (data.cards && data.cards[0]) return data.cards[0];
		if (data.widgetStates) {
			for (const key in data.widgetStates) {
				const widget = data.widgetStates[key];
				if (widget && widget.product) return widget.product;
				if (widget && (widget.name || widget.title || widget.price)) return widget;
			}
		}
		if (data.imt_name || data.name || data.title || data.salePriceU || data.priceU || data.price) return data;
	}
	return null;
}`

func runGlobalState(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error) {
	result, err := page.Evaluate(ctx, globalStateScript, profile.StateObjects)
	if err != nil {
		return nil, err
	}
	return toRaw(result), nil
}

// globalScanScript enumerates every global binding whose name contains one
// of the profile tokens and probes each for product-shaped fields. This is
// the net for when the known names have silently changed.
const globalScanScript = `(tokens) => {
	const keys = Object.keys(window).filter(k => tokens.some(t => k.includes(t)));
	for (const key of keys) {
		try {
			const obj = window[key];
			if (!obj || typeof obj !== 'object') continue;
			if (obj.product) return obj.product;
			if (obj.data && obj.data.product) return obj.data.product;
			if (obj.catalog && obj.catalog.product) return obj.catalog.product;
			if (obj.cards && obj.cards[0]) return obj.cards[0];
			if (obj.widgetStates) {
				for (const wkey in obj.widgetStates) {
					const widget = obj.widgetStates[wkey];
					if (widget && widget.product) return widget.product;
				}
			}
			if (obj.imt_name || obj.name || obj.title || obj.salePriceU || obj.price) return obj;
		} catch (e) {}
	}
	return null;
}`

func runGlobalScan(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error) {
	result, err := page.Evaluate(ctx, globalScanScript, profile.ScanTokens)
	if err != nil {
		return nil, err
	}
	return toRaw(result), nil
}

// runScriptRegex scans raw inline script text for assignments to known
// global names and for application/json payloads, the last resort before
// falling back to selectors.
func runScriptRegex(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error) {
	html, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var raw RawProduct
	doc.Find(`script[type="application/json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &decoded); err != nil {
			return true
		}
		raw = probeProductShape(decoded)
		return raw == nil
	})
	if raw != nil {
		return raw, nil
	}

	patterns := make([]*regexp.Regexp, 0, len(profile.ScriptGlobals))
	for _, name := range profile.ScriptGlobals {
		patterns = append(patterns, regexp.MustCompile(
			`(?s)window\.`+regexp.QuoteMeta(name)+`\s*=\s*(\{.*?\});`))
	}

	doc.Find("script:not([src])").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, re := range patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			var decoded map[string]any
			if err := json.Unmarshal([]byte(m[1]), &decoded); err != nil {
				continue
			}
			if raw = probeProductShape(decoded); raw != nil {
				return false
			}
		}
		return true
	})

	return raw, nil
}

// domExtractScript resolves each record field independently through its own
// ordered selector list; fields do not have to come from the same selector.
const domExtractScript = `(cfg) => {
	const data = {};

	const firstText = (selectors, minLen) => {
		for (const sel of selectors) {
			try {
				const el = document.querySelector(sel);
				if (!el) continue;
				const text = el.textContent.trim();
				if (text && text.length >= (minLen || 1)) return text;
			} catch (e) {}
		}
		return null;
	};

	const firstPrice = (selectors) => {
		for (const sel of selectors) {
			try {
				const el = document.querySelector(sel);
				if (!el) continue;
				const digits = el.textContent.replace(/[^\d]/g, '');
				if (!digits) continue;
				const value = parseInt(digits);
				if (value > 0 && value < cfg.priceCap) return value;
			} catch (e) {}
		}
		return 0;
	};

	const title = firstText(cfg.selectors.title, 1);
	if (title) data.name = title;

	const price = firstPrice(cfg.selectors.price);
	if (price) data.price = price;

	const oldPrice = firstPrice(cfg.selectors.oldPrice);
	if (oldPrice) data.oldPrice = oldPrice;

	const description = firstText(cfg.selectors.description, 10);
	if (description) data.description = description;

	const images = [];
	for (const sel of cfg.selectors.images) {
		let found;
		try { found = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const img of found) {
			const src = img.src || img.getAttribute('data-src') ||
				img.getAttribute('data-lazy') || img.getAttribute('data-original');
			if (src && src.startsWith('http') && !src.includes('data:image') && !images.includes(src)) {
				images.push(src);
			}
		}
		if (images.length > 0) break;
	}
	if (images.length > 0) data.images = images.slice(0, 20);

	const specs = {};
	for (const sel of cfg.selectors.characteristics) {
		let container;
		try { container = document.querySelector(sel); } catch (e) { continue; }
		if (!container) continue;
		const names = container.querySelectorAll('dt, .spec-name, [class*="spec-name"], [class*="char-name"]');
		const values = container.querySelectorAll('dd, .spec-value, [class*="spec-value"], [class*="char-value"]');
		for (let i = 0; i < Math.min(names.length, values.length); i++) {
			const name = names[i].textContent.trim();
			const value = values[i].textContent.trim();
			if (name && value) specs[name] = value;
		}
		if (Object.keys(specs).length > 0) break;
	}
	if (Object.keys(specs).length > 0) data.specifications = specs;

	for (const sel of cfg.selectors.stock) {
		let el;
		try { el = document.querySelector(sel); } catch (e) { continue; }
		if (!el) continue;
		const text = el.textContent.toLowerCase();
		data.available = !cfg.unavailable.some(phrase => text.includes(phrase));
		break;
	}

	return data;
}`

type domConfig struct {
	Selectors   sites.FieldSelectors `json:"selectors"`
	Unavailable []string             `json:"unavailable"`
	PriceCap    int                  `json:"priceCap"`
}

func runDOM(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error) {
	cfg := domConfig{
		Selectors:   profile.Selectors,
		Unavailable: profile.UnavailablePhrases,
		PriceCap:    sites.PriceSanityCap,
	}
	result, err := page.Evaluate(ctx, domExtractScript, cfg)
	if err != nil {
		return nil, err
	}
	raw := toRaw(result)
	raw.MarkWholeUnitPrices()
	return raw, nil
}

// aggressiveDOMScript broadens the search to every h1 and every
// class-substring price element. It is the most false-positive-prone
// strategy, so everything it accepts passes the profile's post-hoc limits.
const aggressiveDOMScript = `(cfg) => {
	const data = {};

	for (const h1 of document.querySelectorAll('h1')) {
		const text = h1.textContent.trim();
		if (text.length < cfg.minTitleLen) continue;
		const lower = text.toLowerCase();
		if (cfg.exclude.some(phrase => lower.includes(phrase))) continue;
		data.name = text;
		break;
	}

	const priceCandidates = document.querySelectorAll(
		'[class*="price"], [class*="Price"], [data-qa="price"], [itemprop="price"]');
	for (const el of priceCandidates) {
		const digits = el.textContent.replace(/[^\d]/g, '');
		if (!digits) continue;
		const value = parseInt(digits);
		if (value >= cfg.minPrice && value <= cfg.maxPrice) {
			data.price = value;
			break;
		}
	}

	const images = [];
	for (const img of document.querySelectorAll('img')) {
		const src = img.src || img.getAttribute('data-src') || img.getAttribute('data-original');
		if (!src || !src.startsWith('http')) continue;
		if (src.includes('data:image') || src.includes('logo') || src.includes('icon')) continue;
		if (!cfg.hostHints.some(hint => src.includes(hint)) && images.length >= 5) continue;
		if (!images.includes(src)) images.push(src);
	}
	if (images.length > 0) data.images = images.slice(0, 10);

	const descContainers = document.querySelectorAll('[class*="description"]');
	for (const el of descContainers) {
		const text = el.textContent.trim();
		if (text.length > 20 && text.length < 10000) {
			data.description = text.substring(0, 5000);
			break;
		}
	}

	return data;
}`

type aggressiveConfig struct {
	MinTitleLen int      `json:"minTitleLen"`
	MinPrice    int      `json:"minPrice"`
	MaxPrice    int      `json:"maxPrice"`
	Exclude     []string `json:"exclude"`
	HostHints   []string `json:"hostHints"`
}

func runAggressiveDOM(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, error) {
	cfg := aggressiveConfig{
		MinTitleLen: profile.Aggressive.MinTitleLen,
		MinPrice:    profile.Aggressive.MinPrice,
		MaxPrice:    profile.Aggressive.MaxPrice,
		Exclude:     profile.Aggressive.Exclude,
		HostHints:   profile.ImageHostHints,
	}
	result, err := page.Evaluate(ctx, aggressiveDOMScript, cfg)
	if err != nil {
		return nil, err
	}
	raw := toRaw(result)
	raw.MarkWholeUnitPrices()
	return raw, nil
}
