package services

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"marketbrief/backend-go/internal/models"
)

//go:embed fallback_tables.yaml
var embeddedFallback []byte

// FallbackTables maps a category key to its static rows.
type FallbackTables map[string][]models.Row

// LoadFallbackTables returns the tables compiled into the binary.
func LoadFallbackTables() (FallbackTables, error) {
	return ParseFallbackTables(embeddedFallback)
}

func ParseFallbackTables(b []byte) (FallbackTables, error) {
	var t FallbackTables
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse fallback tables: %w", err)
	}
	if t == nil {
		t = FallbackTables{}
	}
	return t, nil
}

// ReadFallbackFile parses a tables file on disk.
func ReadFallbackFile(path string) (FallbackTables, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback tables: %w", err)
	}
	return ParseFallbackTables(b)
}

// Rows returns a copy of the table for key.
func (t FallbackTables) Rows(key string) []models.Row {
	return cloneRows(t[key])
}

// Validate checks that every category has a complete table.
func (t FallbackTables) Validate(expected map[string]int) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := validateRows(t[k], expected[k]); err != nil {
			return fmt.Errorf("fallback table %s: %w", k, err)
		}
	}
	return nil
}

// Marshal renders the tables back to YAML with a generation header.
func (t FallbackTables) Marshal(generated time.Time) ([]byte, error) {
	body, err := yaml.Marshal(map[string][]models.Row(t))
	if err != nil {
		return nil, fmt.Errorf("marshal fallback tables: %w", err)
	}
	header := fmt.Sprintf("# Static rows served when every live source of a category fails.\n"+
		"# Rewritten by `marketbrief refresh-fallback` at %s.\n", generated.Format("2006-01-02 15:04"))
	return append([]byte(header), body...), nil
}

func cloneRows(rows []models.Row) []models.Row {
	if rows == nil {
		return nil
	}
	out := make([]models.Row, len(rows))
	copy(out, rows)
	return out
}
