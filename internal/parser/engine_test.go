package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAcquirer struct {
	page *stubPage
	err  error

	requestedURL string
}

func (a *stubAcquirer) Acquire(ctx context.Context, url string) (Page, error) {
	a.requestedURL = url
	if a.err != nil {
		return nil, a.err
	}
	return a.page, nil
}

func newTestEngine(acquirer Acquirer) *Engine {
	return NewEngine(acquirer, nil, testLogger(), &Options{SettleDelay: time.Millisecond})
}

const completeLDPage = `<html><head><script type="application/ld+json">
	{"@type":"Product","name":"Беспроводные наушники","description":"До 30 часов работы",
	 "image":["https://a.example/1.jpg","https://a.example/2.jpg"],
	 "offers":{"price":"5990"}}
</script></head><body></body></html>`

func TestEngineParseFromStructuredData(t *testing.T) {
	page := &stubPage{html: completeLDPage, url: "https://www.ozon.ru/product/naushniki-1/"}
	acquirer := &stubAcquirer{page: page}

	rec, err := newTestEngine(acquirer).Parse(context.Background(),
		"https://www.ozon.ru/product/naushniki-1/?from=search")

	require.NoError(t, err)
	assert.Equal(t, "Беспроводные наушники", rec.Title)
	assert.Equal(t, 5990, rec.Price)
	assert.Len(t, rec.Images, 2)
	assert.True(t, rec.InStock)

	// Complete structured data means no scripts ever ran in the page.
	assert.Zero(t, page.evalCalls)
	assert.Zero(t, page.reloadCalls)
	assert.True(t, page.closed)

	// The query string is stripped before navigation.
	assert.Equal(t, "https://www.ozon.ru/product/naushniki-1/", acquirer.requestedURL)
}

func TestEngineUnsupportedMarketplace(t *testing.T) {
	acquirer := &stubAcquirer{page: &stubPage{}}

	_, err := newTestEngine(acquirer).Parse(context.Background(), "https://example.com/item/1")

	assert.ErrorIs(t, err, ErrUnsupportedMarketplace)
	assert.Empty(t, acquirer.requestedURL, "no page must be acquired for an unknown host")
}

func TestEngineBlockedBeforeExtraction(t *testing.T) {
	page := &stubPage{
		html: completeLDPage,
		url:  "https://www.ozon.ru/captcha/?redirect=/product/naushniki-1/",
	}

	_, err := newTestEngine(&stubAcquirer{page: page}).Parse(context.Background(),
		"https://www.ozon.ru/product/naushniki-1/")

	assert.ErrorIs(t, err, ErrBlockedByAntiBot)
	assert.Zero(t, page.evalCalls, "a blocked session must do no extraction work")
	assert.Zero(t, page.contentCalls)
	assert.True(t, page.closed)
}

func TestEngineAcquireTimeout(t *testing.T) {
	acquirer := &stubAcquirer{err: errors.New("goto: Timeout 30000ms exceeded")}

	_, err := newTestEngine(acquirer).Parse(context.Background(),
		"https://www.wildberries.ru/catalog/1/detail.aspx")

	assert.ErrorIs(t, err, ErrPageLoadTimeout)
}

func TestEngineDeadlineDuringExtractionIsTimeout(t *testing.T) {
	page := &stubPage{
		html: `<html><body><h1></h1></body></html>`,
		url:  "https://www.wildberries.ru/catalog/1/detail.aspx",
	}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := newTestEngine(&stubAcquirer{page: page}).Parse(ctx,
		"https://www.wildberries.ru/catalog/1/detail.aspx")

	assert.ErrorIs(t, err, ErrPageLoadTimeout)
	assert.NotErrorIs(t, err, ErrProductDataNotFound)
	assert.Zero(t, page.reloadCalls, "no stage runs once the deadline has fired")
	assert.True(t, page.closed)
}

func TestEngineReloadsExactlyOnce(t *testing.T) {
	page := &stubPage{
		html: `<html><body><h1></h1></body></html>`,
		url:  "https://www.wildberries.ru/catalog/1/detail.aspx",
	}

	_, err := newTestEngine(&stubAcquirer{page: page}).Parse(context.Background(),
		"https://www.wildberries.ru/catalog/1/detail.aspx")

	assert.ErrorIs(t, err, ErrProductDataNotFound)
	assert.Equal(t, 1, page.reloadCalls, "escalation is bounded to a single reload")
	assert.True(t, page.closed)
}

func TestEngineReloadIntoChallengeIsBlocked(t *testing.T) {
	page := &stubPage{
		html:      `<html><body></body></html>`,
		url:       "https://www.wildberries.ru/catalog/1/detail.aspx",
		reloadURL: "https://www.wildberries.ru/captcha?return=/catalog/1/detail.aspx",
	}

	_, err := newTestEngine(&stubAcquirer{page: page}).Parse(context.Background(),
		"https://www.wildberries.ru/catalog/1/detail.aspx")

	assert.ErrorIs(t, err, ErrBlockedByAntiBot)
	assert.Equal(t, 1, page.reloadCalls)
}

func TestEngineContinuesWhenReloadFails(t *testing.T) {
	page := &stubPage{
		html:      `<html><body></body></html>`,
		url:       "https://www.wildberries.ru/catalog/1/detail.aspx",
		reloadErr: errors.New("net::ERR_CONNECTION_RESET"),
	}

	_, err := newTestEngine(&stubAcquirer{page: page}).Parse(context.Background(),
		"https://www.wildberries.ru/catalog/1/detail.aspx")

	// The reload failure is absorbed; the remaining stages still ran.
	assert.ErrorIs(t, err, ErrProductDataNotFound)
	assert.Equal(t, 1, page.reloadCalls)
	assert.Positive(t, page.evalCalls)
}

func TestEngineSupplementsPartialResult(t *testing.T) {
	// Structured data carries only the title; selector extraction fills
	// price and images without touching the title.
	page := &stubPage{
		html: `<html><head><script type="application/ld+json">
			{"@type":"Product","name":"Кофеварка капельная"}
		</script></head><body></body></html>`,
		url: "https://www.ozon.ru/product/kofevarka-1/",
		evalResult: map[string]any{
			"name":        "Заголовок из разметки",
			"price":       float64(3490),
			"description": "Описание из разметки",
			"images":      []any{"https://cdn.example/kofevarka.jpg"},
		},
	}

	rec, err := newTestEngine(&stubAcquirer{page: page}).Parse(context.Background(),
		"https://www.ozon.ru/product/kofevarka-1/")

	require.NoError(t, err)
	assert.Equal(t, "Кофеварка капельная", rec.Title, "the trusted title wins")
	assert.Equal(t, 3490, rec.Price)
	assert.Equal(t, []string{"https://cdn.example/kofevarka.jpg"}, rec.Images)
	assert.Equal(t, 1, page.evalCalls, "exactly one selector pass supplements the record")
}

func TestEngineFallsBackToGlobalState(t *testing.T) {
	page := &stubPage{
		html: `<html><body></body></html>`,
		url:  "https://www.wildberries.ru/catalog/148234567/detail.aspx",
		evalResult: map[string]any{
			"imt_name":    "Плед флисовый",
			"salePriceU":  float64(129900),
			"description": "Мягкий плед",
			"images":      []any{"https://basket-01.wbbasket.ru/1.webp"},
		},
	}

	rec, err := newTestEngine(&stubAcquirer{page: page}).Parse(context.Background(),
		"https://www.wildberries.ru/catalog/148234567/detail.aspx")

	require.NoError(t, err)
	assert.Equal(t, "Плед флисовый", rec.Title)
	assert.Equal(t, 1299, rec.Price, "kopeck price is converted to rubles")
}
