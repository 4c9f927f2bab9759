package models

// Row is one displayed line of a card. Change and Percent keep the upstream
// text (sign included); rendering decides the glyph.
type Row struct {
	Label   string `json:"label" yaml:"label"`
	Value   string `json:"value" yaml:"value"`
	Change  string `json:"chg" yaml:"chg"`
	Percent string `json:"pct,omitempty" yaml:"pct,omitempty"`
}

// CacheEntry is what the board stores per category.
type CacheEntry struct {
	Category  string `json:"category"`
	Rows      []Row  `json:"rows"`
	FetchedAt int64  `json:"fetched_at"`
	TTLMillis int64  `json:"ttl_ms"`
	Source    string `json:"source"`
}

// Card is one rendered category before it is wrapped into the skill envelope.
type Card struct {
	Key         string
	Title       string
	Rows        []Row
	ButtonLabel string
	ButtonURL   string
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Cache     string `json:"cache"`
	Version   string `json:"version,omitempty"`
}
