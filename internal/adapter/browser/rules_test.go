package browser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tottusPage = `<html><body><section>
<div class="pod"><b class="pod-subTitle"> Aceite Vegetal Primor 900ml </b>
  <ul><li data-internet-price="9,90">S/ 9,90</li></ul></div>
<div class="pod"><b class="pod-subTitle">Aceite de Oliva Borges 500ml</b>
  <ul><li data-internet-price="0">S/ 0</li></ul></div>
<div class="pod"><b class="pod-subTitle">Aceite Cil 1L</b>
  <ul><li data-internet-price="12.50">S/ 12.50</li></ul></div>
<div class="pod"><b class="pod-subTitle">Aceite Ideal 1L</b>
  <ul><li data-internet-price="precio">-</li></ul></div>
<div class="pod"><b class="pod-subTitle">Aceite Cocinero 1L</b></div>
</section></body></html>`

const makroPage = `<html><body>
<div class="showcase-description">
  <a href="/aceite-primor-caja-12/p"><img src="//cdn.makro.example/primor.jpg"></a>
  <span class="Showcase-mk__name">Aceite Primor Caja 12 un</span>
  <span class="Showcase-mk__unitPrice" data-price="118.80"></span>
  <span class="Showcase-mk__biPrice" data-price="110.00"></span>
</div>
<div class="showcase-description">
  <span class="Showcase-mk__name">Aceite Cil Bidón 5L</span>
  <span class="Showcase-mk__biPrice" data-price="45.5"></span>
</div>
<div class="showcase-description">
  <span class="Showcase-mk__name">Sin precio</span>
</div>
<div class="showcase-description">
  <span class="Showcase-mk__unitPrice" data-price="3"></span>
</div>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractTottus(t *testing.T) {
	got := extractTottus(parse(t, tottusPage), 10)

	require.Len(t, got, 2)
	assert.Equal(t, Listing{Name: "Aceite Vegetal Primor 900ml", Price: 9.90}, got[0])
	assert.Equal(t, Listing{Name: "Aceite Cil 1L", Price: 12.50}, got[1])
}

func TestExtractTottus_LimitCountsRawPairs(t *testing.T) {
	got := extractTottus(parse(t, tottusPage), 2)

	// The second pair has a zero price and is dropped after the limit is applied.
	require.Len(t, got, 1)
	assert.Equal(t, "Aceite Vegetal Primor 900ml", got[0].Name)
}

func TestExtractTottus_DropsNonFinitePrices(t *testing.T) {
	page := `<html><body>
<div class="pod"><b class="pod-subTitle">Leche Gloria</b><ul><li data-internet-price="NaN">-</li></ul></div>
<div class="pod"><b class="pod-subTitle">Leche Laive</b><ul><li data-internet-price="Infinity">-</li></ul></div>
<div class="pod"><b class="pod-subTitle">Leche Pura Vida</b><ul><li data-internet-price="4,20">S/ 4,20</li></ul></div>
</body></html>`

	got := extractTottus(parse(t, page), 10)

	require.Len(t, got, 1)
	assert.Equal(t, Listing{Name: "Leche Pura Vida", Price: 4.20}, got[0])
}

func TestExtractMakro(t *testing.T) {
	got := extractMakro(parse(t, makroPage), 10)

	require.Len(t, got, 2)
	assert.Equal(t, "Aceite Primor Caja 12 un", got[0].Name)
	assert.Equal(t, 118.80, got[0].Price, "unit price wins over bulk price")
	assert.Equal(t, "/aceite-primor-caja-12/p", got[0].URL)
	assert.Equal(t, "//cdn.makro.example/primor.jpg", got[0].ImageURL)
	assert.Equal(t, 45.5, got[1].Price, "falls back to bulk price")
}

func TestExtractMakro_Limit(t *testing.T) {
	got := extractMakro(parse(t, makroPage), 1)
	assert.Len(t, got, 1)
}

func TestParsePrice(t *testing.T) {
	cases := map[string]struct {
		price float64
		ok    bool
	}{
		"12.90":    {12.90, true},
		"12,90":    {12.90, true},
		"S/ 7.5":   {7.5, true},
		" 3 ":      {3, true},
		"0":        {0, false},
		"-1":       {0, false},
		"":         {0, false},
		"gratis":   {0, false},
		"1.234,50": {0, false},
		"NaN":      {0, false},
		"nan":      {0, false},
		"Inf":      {0, false},
		"Infinity": {0, false},
		"1e400":    {0, false},
	}
	for raw, want := range cases {
		price, ok := parsePrice(raw)
		assert.Equal(t, want.ok, ok, raw)
		if want.ok {
			assert.InDelta(t, want.price, price, 1e-9, raw)
		}
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	require.Contains(t, rules, "tottus")
	require.Contains(t, rules, "makro")
	assert.Equal(t, "b.pod-subTitle", rules["tottus"].ReadySelector)
	assert.Equal(t, 3, rules["tottus"].Scrolls)
	assert.Equal(t, 2, rules["makro"].Scrolls)
}
