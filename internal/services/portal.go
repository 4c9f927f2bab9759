package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"

	"marketbrief/backend-go/internal/models"
)

const portalHTMLKey = "portal:html:v1"

// Target describes one row to pick out of the portal tables. A row matches
// when its first cell contains every keyword.
type Target struct {
	Key      string
	Keywords []string
	Label    string
}

// PortalClient downloads the finance portal front page. The page is shared by
// several categories, so the raw HTML is cached on its own short TTL.
type PortalClient struct {
	hc      *http.Client
	url     string
	cache   Cache
	htmlTTL time.Duration
	sf      singleflight.Group
}

func NewPortalClient(hc *http.Client, url string, cache Cache, htmlTTL time.Duration) *PortalClient {
	return &PortalClient{hc: hc, url: url, cache: cache, htmlTTL: htmlTTL}
}

func (c *PortalClient) html(ctx context.Context) ([]byte, error) {
	if c.cache != nil {
		if b, ok := c.cache.Get(ctx, portalHTMLKey); ok {
			return b, nil
		}
	}
	v, err, _ := c.sf.Do(portalHTMLKey, func() (any, error) {
		body, err := getBody(ctx, c.hc, "portal", c.url)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			_ = c.cache.Set(ctx, portalHTMLKey, body, c.htmlTTL)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Match scans every table row of the page and returns the cells of the first
// row matching each target, keyed by Target.Key.
func (c *PortalClient) Match(ctx context.Context, targets []Target) (map[string]models.Row, error) {
	body, err := c.html(ctx)
	if err != nil {
		return nil, err
	}
	return matchPortalRows(body, targets)
}

func matchPortalRows(body []byte, targets []Target) (map[string]models.Row, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("portal: parse html: %w", err)
	}

	found := make(map[string]models.Row, len(targets))
	doc.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		tds := tr.Find("td")
		if tds.Length() < 2 {
			return true
		}
		name := cellText(tds.Eq(0))
		value := cellText(tds.Eq(1))
		if value == "" {
			return true
		}
		chg := "0"
		if tds.Length() >= 3 {
			chg = cellText(tds.Eq(2))
		}
		pct := ""
		if tds.Length() >= 4 {
			pct = cellText(tds.Eq(3))
		}

		for _, t := range targets {
			if _, done := found[t.Key]; done {
				continue
			}
			if containsAll(name, t.Keywords) {
				found[t.Key] = models.Row{Label: t.Label, Value: value, Change: chg, Percent: pct}
			}
		}
		return len(found) < len(targets)
	})
	return found, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func containsAll(s string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(s, kw) {
			return false
		}
	}
	return len(keywords) > 0
}

// PortalSource adapts the portal to one category's target list.
type PortalSource struct {
	client  *PortalClient
	targets []Target
}

func NewPortalSource(client *PortalClient, targets []Target) *PortalSource {
	return &PortalSource{client: client, targets: targets}
}

func (s *PortalSource) Name() string { return "portal" }

func (s *PortalSource) Fetch(ctx context.Context) ([]models.Row, error) {
	found, err := s.client.Match(ctx, s.targets)
	if err != nil {
		return nil, err
	}
	rows := make([]models.Row, 0, len(s.targets))
	for _, t := range s.targets {
		if r, ok := found[t.Key]; ok {
			rows = append(rows, r)
		}
	}
	if len(rows) != len(s.targets) {
		return nil, fmt.Errorf("portal: %w: matched %d of %d", ErrIncomplete, len(rows), len(s.targets))
	}
	return rows, nil
}
