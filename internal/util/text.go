package util

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// NormalizeSpaces collapses whitespace runs and trims the result.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeHeader lowercases a sheet header and folds whitespace so that
// "Item  Code" and "item code" compare equal.
func NormalizeHeader(input string) string {
	s := strings.ReplaceAll(input, "\u00a0", " ")
	return strings.ToLower(NormalizeSpaces(s))
}

// Tokenize lowercases input, drops punctuation and splits on whitespace.
func Tokenize(input string) []string {
	s := reNonWord.ReplaceAllString(strings.ToLower(input), " ")
	return strings.Fields(s)
}

// FileLabel turns "fresh_produce.xlsx" into "Fresh_Produce". Separators are
// kept; a letter is upper-cased when it does not follow another letter.
func FileLabel(path string) string {
	base := filepath.Base(path)
	runes := []rune(strings.TrimSuffix(base, filepath.Ext(base)))
	afterLetter := false
	for i, r := range runes {
		if !unicode.IsLetter(r) {
			afterLetter = false
			continue
		}
		if afterLetter {
			runes[i] = unicode.ToLower(r)
		} else {
			runes[i] = unicode.ToUpper(r)
		}
		afterLetter = true
	}
	return strings.TrimSpace(string(runes))
}

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }
