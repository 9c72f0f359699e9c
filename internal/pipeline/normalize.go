package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"

	"grocermap/internal"
	"grocermap/internal/util"
)

var reNonWordChars = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

type substitution struct {
	re   *regexp.Regexp
	with string
}

var canonicalForms = []substitution{
	{regexp.MustCompile(`\bapples?\b`), "apple"},
	{regexp.MustCompile(`\bbananas?\b`), "banana"},
	{regexp.MustCompile(`\boranges?\b`), "orange"},
	{regexp.MustCompile(`\btomato(?:es)?\b`), "tomato"},
	{regexp.MustCompile(`\bonions?\b`), "onion"},
	{regexp.MustCompile(`\bpotato(?:es)?\b`), "potato"},
	{regexp.MustCompile(`\beggs?\b`), "egg"},
	{regexp.MustCompile(`\bcarrots?\b`), "carrot"},
	{regexp.MustCompile(`\b(?:lbs?|pounds?)\b`), "lb"},
	{regexp.MustCompile(`\b(?:oz|ounces?)\b`), "oz"},
	{regexp.MustCompile(`\b(?:grams?|g)\b`), "g"},
	{regexp.MustCompile(`\b(?:ml|milliliters?)\b`), "ml"},
}

// keyword-triggered tokens appended to catalog composites
var variationTriggers = []struct {
	words []string
	adds  []string
}{
	{[]string{"lb", "pound"}, []string{"lb", "pound", "lbs", "pounds"}},
	{[]string{"oz", "ounce"}, []string{"oz", "ounce", "ounces"}},
	{[]string{"g", "gram"}, []string{"g", "gram", "grams"}},
	{[]string{"ml", "milliliter"}, []string{"ml", "milliliter", "milliliters"}},
	{[]string{"organic"}, []string{"organic"}},
	{[]string{"fresh"}, []string{"fresh"}},
	{[]string{"frozen"}, []string{"frozen"}},
}

// NormalizeText lowercases, drops punctuation, folds whitespace and rewrites
// plural food nouns and unit spellings to one canonical form.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = reNonWordChars.ReplaceAllString(s, " ")
	s = util.NormalizeSpaces(s)
	for _, sub := range canonicalForms {
		s = sub.re.ReplaceAllString(s, sub.with)
	}
	return util.NormalizeSpaces(s)
}

// CompositeText is the text embedded for a catalog item.
func CompositeText(item internal.CatalogItem) string {
	source := strings.TrimSuffix(item.SourceFile, filepath.Ext(item.SourceFile))
	source = strings.ReplaceAll(source, "_", " ")
	text := NormalizeText(strings.Join([]string{item.Name, item.Category, source}, " "))

	words := map[string]struct{}{}
	for _, w := range strings.Fields(text) {
		words[w] = struct{}{}
	}
	var extra []string
	for _, trig := range variationTriggers {
		for _, w := range trig.words {
			if _, ok := words[w]; ok {
				extra = append(extra, trig.adds...)
				break
			}
		}
	}
	if len(extra) > 0 {
		text += " " + strings.Join(extra, " ")
	}
	return text
}
