package catalog

import (
	"reflect"
	"strings"
	"testing"

	"grocermap/internal"
)

func sampleItems() []internal.CatalogItem {
	return []internal.CatalogItem{
		{Code: "A1", Name: "Organic Apples", Category: "Produce", SourceFile: "produce.xlsx", SheetName: "Fruit"},
		{Code: "A2", Name: "Apple Juice", Category: "Beverages", SourceFile: "drinks.xlsx", SheetName: "Juice"},
		{Code: "B2", Name: "Whole Milk", Category: "Dairy", SourceFile: "dairy.csv", SheetName: "dairy"},
		{Code: "A1", Name: "Pineapple", Category: "Produce", SourceFile: "produce.xlsx", SheetName: "Tropical"},
		{Code: "C3", Name: "Brown Eggs", Category: "Dairy", SourceFile: "dairy.csv", SheetName: "dairy"},
	}
}

func TestSearchContainmentOrderAndLimit(t *testing.T) {
	idx := BuildIndex(sampleItems())

	got := idx.Search("APPLE", 10)
	names := []string{}
	for _, it := range got {
		if !strings.Contains(strings.ToLower(it.Name), "apple") {
			t.Fatalf("unexpected %q", it.Name)
		}
		names = append(names, it.Name)
	}
	if !reflect.DeepEqual(names, []string{"Organic Apples", "Apple Juice", "Pineapple"}) {
		t.Fatalf("names=%v", names)
	}

	if got := idx.Search("apple", 2); len(got) != 2 || got[1].Name != "Apple Juice" {
		t.Fatalf("limited=%v", got)
	}
	if got := idx.Search("zzz", 5); len(got) != 0 {
		t.Fatalf("len=%d", len(got))
	}
}

func TestSearchKeepsQueryWhitespace(t *testing.T) {
	idx := BuildIndex([]internal.CatalogItem{
		{Code: "M1", Name: "Milkshake"},
		{Code: "M2", Name: "Whole Milk"},
	})
	if got := idx.Search(" milk", 10); len(got) != 1 || got[0].Code != "M2" {
		t.Fatalf("got=%v", got)
	}
	if got := idx.Search("milk", 10); len(got) != 2 {
		t.Fatalf("got=%v", got)
	}
}

func TestLookupByCodeReturnsFirst(t *testing.T) {
	idx := BuildIndex(sampleItems())
	item, ok := idx.LookupByCode(" A1 ")
	if !ok || item.Name != "Organic Apples" {
		t.Fatalf("item=%+v ok=%v", item, ok)
	}
	if _, ok := idx.LookupByCode("nope"); ok {
		t.Fatalf("expected miss")
	}
}

func TestStatsAndSummary(t *testing.T) {
	idx := BuildIndex(sampleItems())
	stats := idx.Stats()
	if stats.TotalItems != 5 || stats.Categories["Produce"] != 2 || stats.Categories["Dairy"] != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.SourceFiles["dairy.csv"] != 2 || stats.SourceFiles["drinks.xlsx"] != 1 {
		t.Fatalf("sources=%v", stats.SourceFiles)
	}

	summary := idx.Summary()
	if !reflect.DeepEqual(summary.SourceFiles, []string{"dairy.csv", "drinks.xlsx", "produce.xlsx"}) {
		t.Fatalf("summary sources=%v", summary.SourceFiles)
	}
	if len(summary.ItemCodes) != 5 || summary.ItemNames[4] != "Brown Eggs" {
		t.Fatalf("summary=%+v", summary)
	}
}

func TestBuildIndexCopiesInput(t *testing.T) {
	items := sampleItems()
	idx := BuildIndex(items)
	items[0].Name = "changed"
	if idx.Item(0).Name != "Organic Apples" {
		t.Fatalf("index shares caller slice")
	}
	out := idx.Items()
	out[1].Name = "changed"
	if idx.Item(1).Name != "Apple Juice" {
		t.Fatalf("Items leaks internal slice")
	}
}
