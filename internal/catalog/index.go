package catalog

import (
	"sort"
	"strings"

	"grocermap/internal"
)

const defaultSearchLimit = 10

// Index is an immutable view over a loaded catalog. Items keep load order and
// are not deduplicated by code.
type Index struct {
	items      []internal.CatalogItem
	lowerNames []string
}

func BuildIndex(items []internal.CatalogItem) *Index {
	idx := &Index{
		items:      make([]internal.CatalogItem, len(items)),
		lowerNames: make([]string, len(items)),
	}
	copy(idx.items, items)
	for i, item := range idx.items {
		idx.lowerNames[i] = strings.ToLower(item.Name)
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.items) }

// Item returns the i-th item in load order.
func (idx *Index) Item(i int) internal.CatalogItem { return idx.items[i] }

// Items returns a copy of all items.
func (idx *Index) Items() []internal.CatalogItem {
	out := make([]internal.CatalogItem, len(idx.items))
	copy(out, idx.items)
	return out
}

// LookupByCode returns the first item carrying code.
func (idx *Index) LookupByCode(code string) (internal.CatalogItem, bool) {
	code = strings.TrimSpace(code)
	for _, item := range idx.items {
		if item.Code == code {
			return item, true
		}
	}
	return internal.CatalogItem{}, false
}

// Search returns items whose name contains query, case-insensitively.
// Whitespace in query is significant; callers trim user input.
func (idx *Index) Search(query string, limit int) []internal.CatalogItem {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	needle := strings.ToLower(query)
	out := []internal.CatalogItem{}
	for i, name := range idx.lowerNames {
		if len(out) >= limit {
			break
		}
		if strings.Contains(name, needle) {
			out = append(out, idx.items[i])
		}
	}
	return out
}

func (idx *Index) Stats() internal.CatalogStats {
	stats := internal.CatalogStats{
		TotalItems:  len(idx.items),
		Categories:  map[string]int{},
		SourceFiles: map[string]int{},
	}
	for _, item := range idx.items {
		stats.Categories[item.Category]++
		stats.SourceFiles[item.SourceFile]++
	}
	return stats
}

func (idx *Index) Summary() internal.CatalogSummary {
	stats := idx.Stats()
	summary := internal.CatalogSummary{
		TotalItems:  stats.TotalItems,
		Categories:  stats.Categories,
		SourceFiles: idx.Sources(),
		ItemCodes:   make([]string, 0, len(idx.items)),
		ItemNames:   make([]string, 0, len(idx.items)),
	}
	for _, item := range idx.items {
		summary.ItemCodes = append(summary.ItemCodes, item.Code)
		summary.ItemNames = append(summary.ItemNames, item.Name)
	}
	return summary
}

// Categories returns the distinct categories, sorted.
func (idx *Index) Categories() []string {
	return distinct(idx.items, func(item internal.CatalogItem) string { return item.Category })
}

// Sources returns the distinct source files, sorted.
func (idx *Index) Sources() []string {
	return distinct(idx.items, func(item internal.CatalogItem) string { return item.SourceFile })
}

func (idx *Index) sheets() []string {
	return distinct(idx.items, func(item internal.CatalogItem) string { return item.SourceFile + "/" + item.SheetName })
}

func distinct(items []internal.CatalogItem, key func(internal.CatalogItem) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
