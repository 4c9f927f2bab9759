package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"marketbrief/backend-go/internal/models"
)

// Currency is one FX row. Rates are quoted in KRW per Unit of the currency.
type Currency struct {
	Code       string
	Label      string
	Keywords   []string
	DunamuCode string
	Unit       int
}

// DunamuSource reads the forex quotation API.
type DunamuSource struct {
	hc         *http.Client
	url        string
	currencies []Currency
}

func NewDunamuSource(hc *http.Client, baseURL string, currencies []Currency) *DunamuSource {
	return &DunamuSource{hc: hc, url: baseURL, currencies: currencies}
}

func (s *DunamuSource) Name() string { return "dunamu" }

type dunamuQuote struct {
	Code              string           `json:"code"`
	BasePrice         decimal.Decimal  `json:"basePrice"`
	Change            string           `json:"change"`
	ChangePrice       decimal.Decimal  `json:"changePrice"`
	SignedChangePrice *decimal.Decimal `json:"signedChangePrice"`
	SignedChangeRate  *decimal.Decimal `json:"signedChangeRate"`
	CurrencyUnit      int              `json:"currencyUnit"`
}

func (s *DunamuSource) requestURL() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("dunamu: bad url: %w", err)
	}
	codes := make([]string, 0, len(s.currencies))
	for _, c := range s.currencies {
		codes = append(codes, c.DunamuCode)
	}
	q := u.Query()
	q.Set("codes", strings.Join(codes, ","))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *DunamuSource) Fetch(ctx context.Context) ([]models.Row, error) {
	reqURL, err := s.requestURL()
	if err != nil {
		return nil, err
	}
	body, err := getBody(ctx, s.hc, s.Name(), reqURL)
	if err != nil {
		return nil, err
	}

	var quotes []dunamuQuote
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("dunamu: decode: %w", err)
	}
	byCode := make(map[string]dunamuQuote, len(quotes))
	for _, q := range quotes {
		byCode[q.Code] = q
	}

	rows := make([]models.Row, 0, len(s.currencies))
	for _, c := range s.currencies {
		q, ok := byCode[c.DunamuCode]
		if !ok {
			return nil, fmt.Errorf("dunamu: %w: missing %s", ErrIncomplete, c.DunamuCode)
		}
		rows = append(rows, dunamuRow(c, q))
	}
	return rows, nil
}

func dunamuRow(c Currency, q dunamuQuote) models.Row {
	unit := q.CurrencyUnit
	if unit <= 0 {
		unit = 1
	}
	want := c.Unit
	if want <= 0 {
		want = 1
	}
	scale := decimal.NewFromInt(int64(want)).Div(decimal.NewFromInt(int64(unit)))

	chg := q.ChangePrice
	if q.SignedChangePrice != nil {
		chg = *q.SignedChangePrice
	} else if q.Change == "FALL" {
		chg = chg.Neg()
	}

	row := models.Row{
		Label:  c.Label,
		Value:  groupedNumber(q.BasePrice.Mul(scale), 2),
		Change: signedNumber(chg.Mul(scale), 2),
	}
	if q.SignedChangeRate != nil {
		row.Percent = percentText(q.SignedChangeRate.Mul(decimal.NewFromInt(100)))
	}
	return row
}

// NaverSource scrapes the market index page. Naver publishes no percent for
// FX, so rows carry only value and change.
type NaverSource struct {
	hc         *http.Client
	url        string
	currencies []Currency
}

func NewNaverSource(hc *http.Client, url string, currencies []Currency) *NaverSource {
	return &NaverSource{hc: hc, url: url, currencies: currencies}
}

func (s *NaverSource) Name() string { return "naver" }

func (s *NaverSource) Fetch(ctx context.Context) ([]models.Row, error) {
	body, err := getBody(ctx, s.hc, s.Name(), s.url)
	if err != nil {
		return nil, err
	}
	return parseNaverRows(body, s.currencies)
}

func parseNaverRows(body []byte, currencies []Currency) ([]models.Row, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("naver: parse html: %w", err)
	}

	found := make(map[string]models.Row, len(currencies))
	doc.Find("#exchangeList li").Each(func(_ int, li *goquery.Selection) {
		name := cellText(li.Find(".h_lst").First())
		value := cellText(li.Find(".value").First())
		if name == "" || value == "" {
			return
		}
		changeEl := li.Find(".change").First()
		chg := absChange(cellText(changeEl))

		switch naverDirection(li, changeEl) {
		case 1:
			chg = "+" + chg
		case -1:
			chg = "-" + chg
		default:
			chg = "0"
		}

		for _, c := range currencies {
			if _, done := found[c.Code]; done {
				continue
			}
			if containsAny(name, append([]string{c.Code}, c.Keywords...)) {
				found[c.Code] = models.Row{Label: c.Label, Value: value, Change: chg}
				break
			}
		}
	})

	rows := make([]models.Row, 0, len(currencies))
	for _, c := range currencies {
		if r, ok := found[c.Code]; ok {
			rows = append(rows, r)
		}
	}
	if len(rows) != len(currencies) {
		return nil, fmt.Errorf("naver: %w: matched %d of %d", ErrIncomplete, len(rows), len(currencies))
	}
	return rows, nil
}

// naverDirection reads the up/down marker either from the change element's
// own classes or from the enclosing .head_info block.
func naverDirection(li, changeEl *goquery.Selection) int {
	switch {
	case changeEl.HasClass("up") || changeEl.HasClass("plus"):
		return 1
	case changeEl.HasClass("down") || changeEl.HasClass("minus"):
		return -1
	}
	info := li.Find(".head_info").First()
	switch {
	case info.HasClass("point_up"):
		return 1
	case info.HasClass("point_dn"):
		return -1
	}
	return 0
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
