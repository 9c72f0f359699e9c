package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"grocermap/internal/config"
)

func writeWorkbook(t *testing.T, path string, sheets map[string][][]any, order ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := f.GetSheetName(0)
	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(name, cell, v)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func defaultNormalizer() *Normalizer {
	tables := config.DefaultTables()
	return NewNormalizer(tables.Aliases, tables.Blocklist)
}

func TestNormalizeRowsMapsAliasesAndBagsUnmapped(t *testing.T) {
	rows := [][]string{
		{"SKU", "Product_Name", "Department", "Manufacturer", "Notes", "Origin"},
		{"A1", "Organic Apples", "Produce", "Orchard Co", "crisp", "WA"},
		{"B2", "Whole Milk", "Dairy", "", "", "local"},
	}
	items, report := defaultNormalizer().NormalizeRows(rows, "main.xlsx", "Sheet1")
	if len(items) != 2 || report.Kept != 2 || report.Skipped != 0 {
		t.Fatalf("items=%d report=%+v", len(items), report)
	}
	a := items[0]
	if a.Code != "A1" || a.Name != "Organic Apples" || a.Category != "Produce" || a.Brand != "Orchard Co" {
		t.Fatalf("a=%+v", a)
	}
	if !reflect.DeepEqual(a.Synonyms, []string{"crisp", "WA"}) {
		t.Fatalf("synonyms=%v", a.Synonyms)
	}
	if a.SourceFile != "main.xlsx" || a.SheetName != "Sheet1" {
		t.Fatalf("labels=%s/%s", a.SourceFile, a.SheetName)
	}
	if items[1].Brand != "Unknown" || !reflect.DeepEqual(items[1].Synonyms, []string{"local"}) {
		t.Fatalf("b=%+v", items[1])
	}
}

func TestNormalizeRowsStacksRepeatedGroups(t *testing.T) {
	rows := [][]string{
		{"ITEM#", "ITEM DESCRIPTION", "ORDER", "ITEM#.1", "ITEM DESCRIPTION.1", "ORDER.1", "ITEM#", "ITEM DESCRIPTION"},
		{"101", "Basmati Rice", "", "201", "Red Lentils", "", "301", "Chickpeas"},
		{"102", "Jasmine Rice", "", "202", "Moong Dal", "", "", ""},
	}
	items, report := defaultNormalizer().NormalizeRows(rows, "grain_market.xlsx", "Dry")
	codes := []string{}
	for _, it := range items {
		codes = append(codes, it.Code)
	}
	want := []string{"101", "102", "201", "202", "301"}
	if !reflect.DeepEqual(codes, want) {
		t.Fatalf("codes=%v want %v", codes, want)
	}
	if report.Rows != 6 || report.Skipped != 1 {
		t.Fatalf("report=%+v", report)
	}
	for _, it := range items {
		if it.Category != "Grain_Market" {
			t.Fatalf("category fallback=%q", it.Category)
		}
	}
}

func TestNormalizeRowsFiltersBlanksAndBlocklist(t *testing.T) {
	rows := [][]string{
		{"code", "name", "category"},
		{"X1", "  ", "Dairy"},
		{"", "Butter", "Dairy"},
		{"H1", "item description", "Dairy"},
		{"H2", "Produce Bags", "Produce"},
		{"C1", "Cheddar", ""},
	}
	items, report := defaultNormalizer().NormalizeRows(rows, "fresh-dairy.csv", "fresh-dairy")
	if len(items) != 1 || items[0].Code != "C1" {
		t.Fatalf("items=%+v", items)
	}
	if items[0].Category != "Fresh Dairy" {
		t.Fatalf("category=%q", items[0].Category)
	}
	if report.Skipped != 4 {
		t.Fatalf("report=%+v", report)
	}
}

func TestNormalizeRowsKeepsDuplicateCodes(t *testing.T) {
	rows := [][]string{
		{"code", "name", "category"},
		{"E1", "Eggs", "Dairy"},
		{"E1", "Eggs", "Breakfast"},
	}
	items, _ := defaultNormalizer().NormalizeRows(rows, "a.csv", "a")
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
}

func TestNormalizeRowsWithoutCodeColumnIsSheetError(t *testing.T) {
	rows := [][]string{{"foo", "bar"}, {"1", "2"}}
	items, report := defaultNormalizer().NormalizeRows(rows, "x.xlsx", "S")
	if len(items) != 0 || report.SheetErrors != 1 {
		t.Fatalf("items=%d report=%+v", len(items), report)
	}
}

func TestNormalizeDirReadsWorkbooksAndCSV(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, filepath.Join(dir, "produce.xlsx"), map[string][][]any{
		"Fruit": {{"Item_Code", "Item_Name"}, {"A1", "Organic Apples"}, {"A2", "Bananas"}},
		"Veg":   {{"code", "title", "group"}, {"V1", "Carrots", "Vegetables"}},
	}, "Fruit", "Veg")
	csvBody := "sku,description\nB2,Whole Milk\n"
	if err := os.WriteFile(filepath.Join(dir, "dairy.csv"), []byte(csvBody), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.xlsx"), []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	items, report, err := defaultNormalizer().NormalizeDir(dir)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	names := []string{}
	for _, it := range items {
		names = append(names, it.Name)
	}
	want := []string{"Whole Milk", "Organic Apples", "Bananas", "Carrots"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names=%v", names)
	}
	if items[0].Category != "Dairy" || items[0].SheetName != "dairy" {
		t.Fatalf("csv item=%+v", items[0])
	}
	if items[1].Category != "Produce" || items[3].Category != "Vegetables" || items[3].SheetName != "Veg" {
		t.Fatalf("xlsx items=%+v", items[1:])
	}
	if report.Sources != 3 || report.SheetErrors != 1 || report.Kept != 4 {
		t.Fatalf("report=%+v", report)
	}
}

func TestAliasTableResolve(t *testing.T) {
	table := NewAliasTable(config.DefaultTables().Aliases)
	cases := map[string]string{
		"ITEM#":              FieldCode,
		"Item#.2":            FieldCode,
		" item  description": FieldName,
		"QTY":                FieldQuantity,
		"Department":         FieldCategory,
		"company":            FieldBrand,
	}
	for header, want := range cases {
		got, ok := table.Resolve(header)
		if !ok || got != want {
			t.Fatalf("%q: got %q ok=%v", header, got, ok)
		}
	}
	if _, ok := table.Resolve("notes.1"); ok {
		t.Fatalf("notes.1 should not resolve")
	}
	if _, ok := table.Resolve(strings.Repeat(" ", 3)); ok {
		t.Fatalf("blank should not resolve")
	}
}
