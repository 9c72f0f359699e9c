package pipeline

import (
	"reflect"
	"testing"

	"grocermap/internal"
	"grocermap/internal/config"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		input string
		desc  string
		qty   float64
	}{
		{input: "Apples - 2 lbs", desc: "Apples", qty: 2},
		{input: "3 bananas", desc: "bananas", qty: 3},
		{input: "Milk", desc: "Milk", qty: 1},
		{input: "Whole milk 1 gal", desc: "Whole milk", qty: 1},
		{input: "2.5 kg of flour", desc: "flour", qty: 2.5},
		{input: "Bananas 6", desc: "Bananas", qty: 6},
		{input: "Cheese 200g", desc: "Cheese", qty: 200},
		{input: "Rice – 1,5 kg", desc: "Rice", qty: 1.5},
		{input: "4 x yogurt cups", desc: "yogurt cups", qty: 4},
		{input: "- Bread 2 loaves", desc: "Bread", qty: 2},
		{input: "• Eggs 1 dozen", desc: "Eggs", qty: 1},
		{input: "Apples -", desc: "Apples", qty: 1},
		{input: "2 large avocados", desc: "large avocados", qty: 2},
		{input: "Eggs 12 large", desc: "Eggs", qty: 12},
		{input: "Apples 2 lb bag", desc: "Apples", qty: 2},
		{input: "Tomatoes - 3 kg ripe please", desc: "Tomatoes", qty: 3},
		{input: "Gala apples", desc: "Gala apples", qty: 1},
		{input: "Milk 2 gallons", desc: "Milk", qty: 2},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			desc, qty := ParseLine(tc.input)
			if desc != tc.desc || qty != tc.qty {
				t.Fatalf("got (%q, %v) want (%q, %v)", desc, qty, tc.desc, tc.qty)
			}
		})
	}
}

func TestParseSkipsBlankAndNoise(t *testing.T) {
	p := NewLineParser(config.DefaultTables().NoisePhrases)
	text := "Grocery List:\n\n  Apples - 2 lbs \r\nORDER\n3 bananas\nitems\nMilk\n"
	got := p.Parse(text)
	want := []internal.ParsedLine{
		{Description: "Apples", Quantity: 2},
		{Description: "bananas", Quantity: 3},
		{Description: "Milk", Quantity: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

// Lines with an empty description or a non-positive quantity are dropped
// without reaching the mapped or unmapped lists.
func TestParseDropsEmptyAndZeroQuantityLines(t *testing.T) {
	p := NewLineParser(nil)
	got := p.Parse("0 apples\n-\n*\nMilk\n0 kg sugar")
	if len(got) != 1 || got[0].Description != "Milk" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseIsStateless(t *testing.T) {
	p := NewLineParser(nil)
	a := p.Parse("2 apples\nMilk")
	b := p.Parse("2 apples\nMilk")
	if !reflect.DeepEqual(a, b) || len(a) != 2 {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
}
