package services

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketbrief/backend-go/internal/config"
	"marketbrief/backend-go/internal/models"
)

const rowsPerCard = 5

// Category is one card of the carousel together with where its rows come from.
type Category struct {
	Key         string
	Title       string
	TTL         time.Duration
	Expected    int
	Sources     []Source
	Fallback    []models.Row
	ButtonLabel string
	ButtonURL   string
}

var fxCurrencies = []Currency{
	{Code: "USD", Label: "USD (미국 달러)", Keywords: []string{"미국"}, DunamuCode: "FRX.KRWUSD", Unit: 1},
	{Code: "JPY100", Label: "JPY100 (일본 엔)", Keywords: []string{"JPY", "일본"}, DunamuCode: "FRX.KRWJPY", Unit: 100},
	{Code: "EUR", Label: "EUR (유로)", Keywords: []string{"유로"}, DunamuCode: "FRX.KRWEUR", Unit: 1},
	{Code: "CNY", Label: "CNY (중국 위안)", Keywords: []string{"중국"}, DunamuCode: "FRX.KRWCNY", Unit: 1},
	{Code: "GBP", Label: "GBP (영국 파운드)", Keywords: []string{"영국"}, DunamuCode: "FRX.KRWGBP", Unit: 1},
}

var indexTargets = []Target{
	{Key: "KOSPI", Keywords: []string{"코스피"}, Label: "코스피"},
	{Key: "KOSDAQ", Keywords: []string{"코스닥"}, Label: "코스닥"},
	{Key: "NASDAQ", Keywords: []string{"나스닥"}, Label: "나스닥"},
	{Key: "DOW", Keywords: []string{"다우"}, Label: "다우존스"},
	{Key: "SP", Keywords: []string{"S&P"}, Label: "S&P 500"},
}

var commodityTargets = []Target{
	{Key: "GOLD", Keywords: []string{"금"}, Label: "금 (USD/oz)"},
	{Key: "SILVER", Keywords: []string{"은"}, Label: "은 (USD/oz)"},
	{Key: "WTI", Keywords: []string{"WTI"}, Label: "크루드오일 (USD/bbl)"},
	{Key: "GAS", Keywords: []string{"천연가스"}, Label: "천연가스 (USD/MMBtu)"},
	{Key: "COPPER", Keywords: []string{"구리"}, Label: "구리 (USD/lb)"},
}

var cryptoCoins = []Coin{
	{Symbol: "BTC", Label: "비트코인"},
	{Symbol: "ETH", Label: "이더리움"},
	{Symbol: "XRP", Label: "리플"},
	{Symbol: "SOL", Label: "솔라나"},
	{Symbol: "DOGE", Label: "도지코인"},
}

var rankCards = []struct{ key, title string }{
	{"kospi_up", "코스피 상승률 TOP5"},
	{"kospi_down", "코스피 하락률 TOP5"},
	{"kosdaq_up", "코스닥 상승률 TOP5"},
	{"kosdaq_down", "코스닥 하락률 TOP5"},
	{"mcap_top", "시가총액 TOP5"},
	{"nasdaq_vol", "나스닥 거래량 TOP5"},
}

func fxTargets() []Target {
	out := make([]Target, 0, len(fxCurrencies))
	for _, c := range fxCurrencies {
		out = append(out, Target{Key: c.Code, Keywords: c.Keywords[len(c.Keywords)-1:], Label: c.Label})
	}
	return out
}

// BuildCategories wires the upstream sources and fallback tables into the
// ordered card list.
func BuildCategories(cfg config.Config, cache Cache, tables FallbackTables) ([]Category, error) {
	hc := &http.Client{Timeout: cfg.RequestTimeout()}
	portal := NewPortalClient(hc, cfg.PortalURL, cache, cfg.PortalHTMLTTL())

	fxSources := make([]Source, 0, len(cfg.FXSources))
	for _, name := range cfg.FXSources {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "portal":
			fxSources = append(fxSources, NewPortalSource(portal, fxTargets()))
		case "dunamu":
			fxSources = append(fxSources, NewDunamuSource(hc, cfg.DunamuURL, fxCurrencies))
		case "naver":
			fxSources = append(fxSources, NewNaverSource(hc, cfg.NaverURL, fxCurrencies))
		case "":
		default:
			return nil, fmt.Errorf("unknown FX source %q", name)
		}
	}

	cats := []Category{
		{
			Key: "exchange", Title: "주요 환율", TTL: cfg.CacheTTL(), Sources: fxSources,
			ButtonLabel: "매일경제 마켓", ButtonURL: cfg.PortalURL,
		},
		{Key: "indices", Title: "주요 증시", TTL: cfg.CacheTTL(), Sources: []Source{NewPortalSource(portal, indexTargets)}},
		{Key: "commodities", Title: "주요 원자재 지수", TTL: cfg.CacheTTL(), Sources: []Source{NewPortalSource(portal, commodityTargets)}},
		{Key: "crypto", Title: "암호화폐", TTL: cfg.CryptoTTL(), Sources: []Source{NewBithumbSource(hc, cfg.BithumbURL, cryptoCoins)}},
	}
	for _, r := range rankCards {
		cats = append(cats, Category{Key: r.key, Title: r.title, TTL: cfg.CacheTTL()})
	}

	expected := make(map[string]int, len(cats))
	for i := range cats {
		cats[i].Expected = rowsPerCard
		expected[cats[i].Key] = rowsPerCard
	}
	if err := tables.Validate(expected); err != nil {
		return nil, err
	}
	for i := range cats {
		cats[i].Fallback = tables.Rows(cats[i].Key)
	}
	return cats, nil
}
