package util

import (
	"regexp"
	"strconv"
	"strings"
)

// UnitPattern is the unit vocabulary accepted after a quantity.
const UnitPattern = `lbs?|kg|g|oz|ml|l|qt|gal|pcs?|pieces?|units?|bags?|bottles?|cans?|packets?|boxes?|case|box|dozen`

// NumberPattern matches a quantity token: 3, 2.5, 1,5, 1,000.
const NumberPattern = `\d+(?:[.,]\d+)*`

var (
	numberToken      = regexp.MustCompile(NumberPattern)
	thousandsDot     = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComma   = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	decimalWithDot   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	decimalWithComma = regexp.MustCompile(`^\d+,\d+$`)
)

// ParseNumber parses a quantity token. Grouped thousands ("1,000", "1.000")
// collapse to integers, a lone comma is read as a decimal separator.
func ParseNumber(token string) (float64, bool) {
	compact := strings.ReplaceAll(strings.TrimSpace(token), "\u00a0", "")
	compact = strings.ReplaceAll(compact, " ", "")
	if compact == "" {
		return 0, false
	}
	switch {
	case thousandsComma.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case thousandsDot.MatchString(compact) && !decimalWithDot.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
	case decimalWithComma.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", ".")
	}
	parsed, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// FirstNumber returns the first numeric token in s with its byte offsets.
func FirstNumber(s string) (string, int, int, bool) {
	loc := numberToken.FindStringIndex(s)
	if loc == nil {
		return "", 0, 0, false
	}
	return s[loc[0]:loc[1]], loc[0], loc[1], true
}
