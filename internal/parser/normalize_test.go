package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surpriset/market-parser/internal/sites"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		profile  *sites.Profile
		value    float64
		expected int
	}{
		{
			name:     "kopeck price above floor is divided",
			profile:  sites.Wildberries,
			value:    132900,
			expected: 1329,
		},
		{
			name:     "minor-unit price below floor is kept",
			profile:  sites.Wildberries,
			value:    5000,
			expected: 5000,
		},
		{
			name:     "whole-unit site is never divided",
			profile:  sites.YandexMarket,
			value:    132900,
			expected: 132900,
		},
		{
			name:     "zero is absent",
			profile:  sites.Wildberries,
			value:    0,
			expected: 0,
		},
		{
			name:     "negative is absent",
			profile:  sites.Ozon,
			value:    -500,
			expected: 0,
		},
		{
			name:     "value above sanity cap is absent",
			profile:  sites.YandexMarket,
			value:    25_000_000,
			expected: 0,
		},
		{
			name:     "minor-unit correction can rescue an out-of-band value",
			profile:  sites.Ozon,
			value:    999_999_900,
			expected: 9_999_999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePrice(tt.value, tt.profile))
		})
	}
}

func TestNormalizePriceIsIdempotentInBand(t *testing.T) {
	// A value the correction already produced must survive a second pass.
	for _, v := range []float64{1, 99, 1329, 9999} {
		once := NormalizePrice(v, sites.Wildberries)
		twice := NormalizePrice(float64(once), sites.Wildberries)
		assert.Equal(t, once, twice, "value %v", v)
	}
}

func TestNormalizeTitleAndPrices(t *testing.T) {
	raw := RawProduct{
		"imt_name":   "  Футболка хлопковая  ",
		"salePriceU": float64(132900),
		"priceU":     float64(189900),
	}

	rec := Normalize(raw, sites.Wildberries)

	assert.Equal(t, "Футболка хлопковая", rec.Title)
	assert.Equal(t, 1329, rec.Price)
	assert.Equal(t, 1899, rec.OldPrice)
}

func TestNormalizeKeepsSelectorPricesWhole(t *testing.T) {
	// Rendered price text is already whole rubles even on a minor-unit
	// site, no matter how far above the correction floor it sits.
	raw := RawProduct{
		"name":  "Куртка пуховая зимняя",
		"price": float64(25000),
	}
	raw.MarkWholeUnitPrices()

	rec := Normalize(raw, sites.Wildberries)

	assert.Equal(t, 25000, rec.Price)
}

func TestNormalizeDropsMatchingOldPrice(t *testing.T) {
	raw := RawProduct{
		"name":     "Товар без скидки",
		"price":    float64(4990),
		"oldPrice": float64(4990),
	}

	rec := Normalize(raw, sites.YandexMarket)

	assert.Equal(t, 4990, rec.Price)
	assert.Zero(t, rec.OldPrice)
}

func TestNormalizeShortTitleIsDropped(t *testing.T) {
	raw := RawProduct{"name": "ab", "price": float64(100)}

	rec := Normalize(raw, sites.Ozon)

	assert.Empty(t, rec.Title)
}

func TestNormalizeCharacteristics(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawProduct
		expected map[string]string
	}{
		{
			name: "map shaped characteristics",
			raw: RawProduct{
				"characteristics": map[string]any{
					"Состав": "100% хлопок",
					"Вес":    float64(250),
				},
			},
			expected: map[string]string{"Состав": "100% хлопок", "Вес": "250"},
		},
		{
			name: "list of name value pairs",
			raw: RawProduct{
				"specifications": []any{
					map[string]any{"name": "Материал", "value": "лен"},
					map[string]any{"key": "Цвет", "value": "синий"},
				},
			},
			expected: map[string]string{"Материал": "лен", "Цвет": "синий"},
		},
		{
			name: "entries without a name are skipped",
			raw: RawProduct{
				"specifications": []any{
					map[string]any{"value": "потерянное значение"},
					map[string]any{"name": "Бренд", "value": "Acme"},
				},
			},
			expected: map[string]string{"Бренд": "Acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeCharacteristics(tt.raw))
		})
	}
}

func TestCompositionFromCharacteristics(t *testing.T) {
	raw := RawProduct{
		"name": "Рубашка классическая",
		"characteristics": map[string]any{
			"Состав": "100% хлопок",
			"Цвет":   "белый",
		},
	}

	rec := Normalize(raw, sites.Wildberries)

	assert.Equal(t, "100% хлопок", rec.Composition)
}

func TestNormalizeImages(t *testing.T) {
	t.Run("dedupe preserves first occurrence order", func(t *testing.T) {
		raw := RawProduct{
			"name": "Товар с картинками",
			"images": []any{
				"https://a.example/1.jpg",
				"https://a.example/2.jpg",
				"https://a.example/1.jpg",
			},
		}
		rec := Normalize(raw, sites.YandexMarket)
		assert.Equal(t, []string{"https://a.example/1.jpg", "https://a.example/2.jpg"}, rec.Images)
	})

	t.Run("cap is enforced", func(t *testing.T) {
		var imgs []any
		for i := 0; i < 8; i++ {
			imgs = append(imgs, map[string]any{"url": "https://a.example/" + string(rune('a'+i)) + ".jpg"})
		}
		raw := RawProduct{"name": "Много картинок", "images": imgs}
		rec := Normalize(raw, sites.Ozon)
		assert.Len(t, rec.Images, sites.Ozon.ImageCap)
	})

	t.Run("data uris are dropped", func(t *testing.T) {
		raw := RawProduct{
			"name":   "Товар с плейсхолдером",
			"images": []any{"data:image/png;base64,AAAA", "https://a.example/real.jpg"},
		}
		rec := Normalize(raw, sites.YandexMarket)
		assert.Equal(t, []string{"https://a.example/real.jpg"}, rec.Images)
	})

	t.Run("root relative paths are dropped", func(t *testing.T) {
		raw := RawProduct{
			"name":   "Товар с битой ссылкой",
			"images": []any{"/images/1.jpg", "https://a.example/real.jpg"},
		}
		rec := Normalize(raw, sites.YandexMarket)
		assert.Equal(t, []string{"https://a.example/real.jpg"}, rec.Images)
	})

	t.Run("protocol relative urls get https", func(t *testing.T) {
		raw := RawProduct{
			"name":   "Товар с относительной ссылкой",
			"images": []any{"//ir.ozone.ru/s3/multimedia/c1000/1.jpg"},
		}
		rec := Normalize(raw, sites.Ozon)
		assert.Equal(t, []string{"https://ir.ozone.ru/s3/multimedia/c1000/1.jpg"}, rec.Images)
	})

	t.Run("size segments are upscaled", func(t *testing.T) {
		raw := RawProduct{
			"name":   "Товар с превью",
			"images": []any{"https://ir.ozone.ru/s3/multimedia/w450/6123.jpg"},
		}
		rec := Normalize(raw, sites.Ozon)
		assert.Equal(t, []string{"https://ir.ozone.ru/s3/multimedia/w2000/6123.jpg"}, rec.Images)
	})

	t.Run("gallery derived from numeric id when absent", func(t *testing.T) {
		raw := RawProduct{
			"imt_name": "Товар без галереи",
			"id":       float64(148234567),
		}
		rec := Normalize(raw, sites.Wildberries)
		require.NotEmpty(t, rec.Images)
		assert.Contains(t, rec.Images[0], "wbbasket.ru")
		assert.Contains(t, rec.Images[0], "148234567")
	})
}

func TestNormalizeStock(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawProduct
		expected bool
	}{
		{
			name:     "explicit available flag wins",
			raw:      RawProduct{"available": false},
			expected: false,
		},
		{
			name:     "stocks list first entry",
			raw:      RawProduct{"stocks": []any{map[string]any{"inStock": false}}},
			expected: false,
		},
		{
			name:     "explicitly empty stocks list",
			raw:      RawProduct{"stocks": []any{}},
			expected: false,
		},
		{
			name:     "unavailability phrase in stock text",
			raw:      RawProduct{"stockText": "Товара нет в наличии"},
			expected: false,
		},
		{
			name:     "no signal defaults to in stock",
			raw:      RawProduct{"name": "Товар"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeStock(tt.raw, sites.Ozon))
		})
	}
}

func TestMergeFillsOnlyBlanks(t *testing.T) {
	dst := Normalize(RawProduct{
		"name":  "Основной результат",
		"price": float64(1500),
	}, sites.YandexMarket)
	src := Normalize(RawProduct{
		"name":        "Дополнение из разметки",
		"price":       float64(9999),
		"description": "Описание из разметки",
		"images":      []any{"https://a.example/1.jpg"},
	}, sites.YandexMarket)

	Merge(dst, src)

	assert.Equal(t, "Основной результат", dst.Title)
	assert.Equal(t, 1500, dst.Price, "existing price must not be replaced")
	assert.Equal(t, "Описание из разметки", dst.Description)
	assert.Equal(t, []string{"https://a.example/1.jpg"}, dst.Images)
}

func TestIncomplete(t *testing.T) {
	complete := Normalize(RawProduct{
		"name":        "Полный товар",
		"price":       float64(100),
		"description": "Описание",
		"images":      []any{"https://a.example/1.jpg"},
	}, sites.YandexMarket)
	assert.False(t, Incomplete(complete))

	missingPrice := Normalize(RawProduct{
		"name":        "Товар без цены",
		"description": "Описание",
		"images":      []any{"https://a.example/1.jpg"},
	}, sites.YandexMarket)
	assert.True(t, Incomplete(missingPrice))
}
