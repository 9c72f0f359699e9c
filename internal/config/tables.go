package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tables holds the data-driven lookup tables used by catalog ingestion and
// order parsing. Keys absent from the YAML file keep their defaults.
type Tables struct {
	Aliases        map[string][]string `yaml:"aliases"`
	Blocklist      []string            `yaml:"blocklist"`
	NoisePhrases   []string            `yaml:"noise_phrases"`
	FoodCategories []string            `yaml:"food_categories"`
}

// DefaultTables returns a fresh copy of the built-in tables.
func DefaultTables() Tables {
	return Tables{
		Aliases: map[string][]string{
			"code":     {"item_code", "code", "product_code", "sku", "id", "item#"},
			"name":     {"item_name", "name", "product_name", "description", "title", "item description"},
			"quantity": {"order", "quantity", "qty"},
			"category": {"category", "type", "group", "department"},
			"brand":    {"brand", "manufacturer", "company"},
		},
		Blocklist: []string{
			"ITEM#", "ITEM DESCRIPTION", "ORDER", "CATEGORY", "BRAND",
			"PRODUCE BAGS", "OTHER ESSENTIALS", "COOKING OIL & GHEE", "GRAIN MARKET",
		},
		NoisePhrases:   []string{"grocery list", "shopping list", "order", "items"},
		FoodCategories: []string{"food", "grocery", "fresh"},
	}
}

// LoadTables reads path on top of DefaultTables. An empty path or a missing
// file yields the defaults.
func LoadTables(path string) (Tables, error) {
	tables := DefaultTables()
	if strings.TrimSpace(path) == "" {
		return tables, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tables, nil
		}
		return Tables{}, fmt.Errorf("read tables: %w", err)
	}
	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Tables{}, fmt.Errorf("parse tables %s: %w", path, err)
	}
	for field, headers := range override.Aliases {
		field = strings.ToLower(strings.TrimSpace(field))
		if _, ok := tables.Aliases[field]; !ok {
			return Tables{}, fmt.Errorf("tables %s: unknown alias field %q", path, field)
		}
		if len(headers) > 0 {
			tables.Aliases[field] = headers
		}
	}
	if override.Blocklist != nil {
		tables.Blocklist = override.Blocklist
	}
	if override.NoisePhrases != nil {
		tables.NoisePhrases = override.NoisePhrases
	}
	if override.FoodCategories != nil {
		tables.FoodCategories = override.FoodCategories
	}
	return tables, nil
}

// Save writes the tables as YAML, used by the CLI to dump an editable copy.
func (t Tables) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
