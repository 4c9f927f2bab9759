package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"marketbrief/backend-go/internal/models"
)

type Coin struct {
	Symbol string
	Label  string
}

// BithumbSource reads the public ALL_KRW ticker.
type BithumbSource struct {
	hc    *http.Client
	url   string
	coins []Coin
}

func NewBithumbSource(hc *http.Client, url string, coins []Coin) *BithumbSource {
	return &BithumbSource{hc: hc, url: url, coins: coins}
}

func (s *BithumbSource) Name() string { return "bithumb" }

type bithumbTicker struct {
	ClosingPrice    string `json:"closing_price"`
	Fluctate24H     string `json:"fluctate_24H"`
	FluctateRate24H string `json:"fluctate_rate_24H"`
}

func (s *BithumbSource) Fetch(ctx context.Context) ([]models.Row, error) {
	body, err := getBody(ctx, s.hc, s.Name(), s.url)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Status string                     `json:"status"`
		Data   map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("bithumb: decode: %w", err)
	}
	if payload.Status != "0000" {
		return nil, fmt.Errorf("bithumb: status %q", payload.Status)
	}

	rows := make([]models.Row, 0, len(s.coins))
	for _, coin := range s.coins {
		raw, ok := payload.Data[coin.Symbol]
		if !ok {
			return nil, fmt.Errorf("bithumb: %w: missing %s", ErrIncomplete, coin.Symbol)
		}
		var t bithumbTicker
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("bithumb: decode %s: %w", coin.Symbol, err)
		}
		row, err := bithumbRow(coin, t)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func bithumbRow(coin Coin, t bithumbTicker) (models.Row, error) {
	price, err := decimal.NewFromString(t.ClosingPrice)
	if err != nil {
		return models.Row{}, fmt.Errorf("bithumb: %s closing_price %q: %w", coin.Symbol, t.ClosingPrice, err)
	}
	places := pricePlaces(price)

	chg := decimal.Zero
	if t.Fluctate24H != "" {
		if chg, err = decimal.NewFromString(t.Fluctate24H); err != nil {
			return models.Row{}, fmt.Errorf("bithumb: %s fluctate_24H %q: %w", coin.Symbol, t.Fluctate24H, err)
		}
	}
	rate := decimal.Zero
	if t.FluctateRate24H != "" {
		if rate, err = decimal.NewFromString(t.FluctateRate24H); err != nil {
			return models.Row{}, fmt.Errorf("bithumb: %s fluctate_rate_24H %q: %w", coin.Symbol, t.FluctateRate24H, err)
		}
	}

	return models.Row{
		Label:   coin.Label,
		Value:   groupedNumber(price, places) + "원",
		Change:  signedNumber(chg, places),
		Percent: percentText(rate),
	}, nil
}
