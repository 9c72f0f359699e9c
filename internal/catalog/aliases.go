package catalog

import (
	"regexp"
	"strings"

	"grocermap/internal/util"
)

// Canonical catalog fields, in resolution priority order.
const (
	FieldCode     = "code"
	FieldName     = "name"
	FieldQuantity = "quantity"
	FieldCategory = "category"
	FieldBrand    = "brand"
)

var canonicalFields = []string{FieldCode, FieldName, FieldQuantity, FieldCategory, FieldBrand}

// duplicate header suffix written by spreadsheet exporters: "ITEM#.1"
var reDupSuffix = regexp.MustCompile(`^(.+)\.(\d+)$`)

// AliasTable maps normalized header text onto canonical fields.
type AliasTable struct {
	byHeader map[string]string
}

func NewAliasTable(aliases map[string][]string) AliasTable {
	t := AliasTable{byHeader: map[string]string{}}
	for _, field := range canonicalFields {
		for _, header := range aliases[field] {
			key := util.NormalizeHeader(header)
			if key == "" {
				continue
			}
			if _, taken := t.byHeader[key]; !taken {
				t.byHeader[key] = field
			}
		}
	}
	return t
}

// Resolve returns the canonical field for a raw header. A numeric duplicate
// suffix is ignored when the bare header is a known alias.
func (t AliasTable) Resolve(header string) (string, bool) {
	key := util.NormalizeHeader(header)
	if key == "" {
		return "", false
	}
	if field, ok := t.byHeader[key]; ok {
		return field, true
	}
	if m := reDupSuffix.FindStringSubmatch(key); m != nil {
		if field, ok := t.byHeader[strings.TrimSpace(m[1])]; ok {
			return field, true
		}
	}
	return "", false
}

type columnGroup struct {
	code, name, quantity, category, brand int
}

func newColumnGroup() columnGroup {
	return columnGroup{code: -1, name: -1, quantity: -1, category: -1, brand: -1}
}

func (g *columnGroup) slot(field string) *int {
	switch field {
	case FieldCode:
		return &g.code
	case FieldName:
		return &g.name
	case FieldQuantity:
		return &g.quantity
	case FieldCategory:
		return &g.category
	case FieldBrand:
		return &g.brand
	}
	return nil
}

// sheetLayout is the per-sheet resolution of header columns. Group k holds
// the k-th occurrence of every canonical field.
type sheetLayout struct {
	groups   []columnGroup
	unmapped []int
}

func (t AliasTable) layout(headers []string) sheetLayout {
	var out sheetLayout
	seen := map[string]int{}
	for col, header := range headers {
		field, ok := t.Resolve(header)
		if !ok {
			out.unmapped = append(out.unmapped, col)
			continue
		}
		k := seen[field]
		seen[field]++
		for len(out.groups) <= k {
			out.groups = append(out.groups, newColumnGroup())
		}
		*out.groups[k].slot(field) = col
	}
	return out
}

// usable returns the groups that carry both a code and a name column.
// Shared fields (category, brand) fall back to the first group's column.
func (l sheetLayout) usable() []columnGroup {
	var out []columnGroup
	for _, g := range l.groups {
		if g.code < 0 || g.name < 0 {
			continue
		}
		if g.category < 0 && len(l.groups) > 0 {
			g.category = l.groups[0].category
		}
		if g.brand < 0 && len(l.groups) > 0 {
			g.brand = l.groups[0].brand
		}
		out = append(out, g)
	}
	return out
}
