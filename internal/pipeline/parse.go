package pipeline

import (
	"regexp"
	"strings"

	"grocermap/internal"
	"grocermap/internal/util"
)

type linePattern struct {
	re *regexp.Regexp
	// capture positions; -1 means the pattern has no unit and the
	// numeric group decides which capture is the quantity
	qty, desc int
}

var linePatterns = []linePattern{
	// Apples - 2 lbs [trailing words]
	{re: regexp.MustCompile(`(?i)^(.+?)\s*[-–—]\s*(` + util.NumberPattern + `)\s*(?:` + util.UnitPattern + `)\b`), qty: 2, desc: 1},
	// Apples 2 lbs [trailing words]
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(` + util.NumberPattern + `)\s*(?:` + util.UnitPattern + `)\b`), qty: 2, desc: 1},
	// 2 lbs apples
	{re: regexp.MustCompile(`(?i)^(` + util.NumberPattern + `)\s*(?:` + util.UnitPattern + `)\.?\s+(?:of\s+)?(.+)$`), qty: 1, desc: 2},
	// Apples 2 [trailing words]; text after the number is dropped
	{re: regexp.MustCompile(`^(.+?)\s+(` + util.NumberPattern + `)`), qty: -1, desc: -1},
	// 2 apples
	{re: regexp.MustCompile(`^(` + util.NumberPattern + `)\s*[x×]?\s+(.+)$`), qty: -1, desc: -1},
}

var (
	reLeadingBullet = regexp.MustCompile(`^[-–—•*]\s+`)
	reDescLeading   = regexp.MustCompile(`^[\s\-–—•*]+`)
	reDescTrailing  = regexp.MustCompile(`[\s\-–—•*:,;|]+$`)
)

// LineParser splits order text into (description, quantity) pairs. It holds
// no per-call state.
type LineParser struct {
	noise map[string]struct{}
}

func NewLineParser(noisePhrases []string) *LineParser {
	p := &LineParser{noise: map[string]struct{}{}}
	for _, phrase := range noisePhrases {
		p.noise[strings.ToLower(strings.TrimSpace(phrase))] = struct{}{}
	}
	return p
}

// Parse returns the accepted lines in input order. Lines whose final
// description is empty or whose quantity is not positive are dropped.
func (p *LineParser) Parse(text string) []internal.ParsedLine {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	out := []internal.ParsedLine{}
	for _, raw := range strings.Split(text, "\n") {
		line := util.NormalizeSpaces(raw)
		if line == "" || p.isNoise(line) {
			continue
		}
		desc, qty := ParseLine(line)
		if desc == "" || qty <= 0 {
			continue
		}
		out = append(out, internal.ParsedLine{Description: desc, Quantity: qty})
	}
	return out
}

func (p *LineParser) isNoise(line string) bool {
	key := strings.ToLower(strings.TrimRight(line, ":"))
	_, ok := p.noise[strings.TrimSpace(key)]
	return ok
}

// ParseLine extracts the description and quantity of one trimmed line.
func ParseLine(line string) (string, float64) {
	line = reLeadingBullet.ReplaceAllString(strings.TrimSpace(line), "")
	if desc, qty, _, ok := matchLine(line); ok {
		return desc, qty
	}

	if token, start, end, ok := util.FirstNumber(line); ok {
		desc := cleanDescription(line[:start] + " " + line[end:])
		if len([]rune(desc)) > 1 {
			qty, _ := util.ParseNumber(token)
			return desc, qty
		}
	}

	return cleanDescription(line), 1
}

// matchLine returns the first pattern reading with a usable description and
// a positive quantity. The third result reports whether a unit was matched.
func matchLine(line string) (string, float64, bool, bool) {
	for _, pat := range linePatterns {
		m := pat.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		desc, qty, ok := pat.extract(m)
		if ok && qty > 0 && len([]rune(desc)) > 1 {
			return desc, qty, pat.qty > 0, true
		}
	}
	return "", 0, false, false
}

func (pat linePattern) extract(m []string) (string, float64, bool) {
	if pat.qty > 0 {
		qty, ok := util.ParseNumber(m[pat.qty])
		return cleanDescription(m[pat.desc]), qty, ok
	}
	if qty, ok := util.ParseNumber(m[1]); ok {
		return cleanDescription(m[2]), qty, true
	}
	if qty, ok := util.ParseNumber(m[2]); ok {
		return cleanDescription(m[1]), qty, true
	}
	return "", 0, false
}

func cleanDescription(s string) string {
	s = util.NormalizeSpaces(s)
	s = reDescLeading.ReplaceAllString(s, "")
	s = reDescTrailing.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
