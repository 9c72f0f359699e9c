package pipeline

import (
	"fmt"
	"strings"

	"grocermap/internal"
)

const orderThreshold = 0.5

var orderWords = []string{"order", "grocer", "shopping", "restock", "delivery"}

type DetectResult struct {
	IsOrder bool
	Score   float64
	// Reason lists the signals that fired, joined by "+".
	Reason string
	// UnitLines and CountLines count order-text lines read as
	// quantity + unit and as bare quantity respectively.
	UnitLines  int
	CountLines int
}

// DetectOrder scores a mail by how much of its merged order text reads as
// order lines, plus subject wording and attachments the extractor can read.
func DetectOrder(subject string, content MailContent) DetectResult {
	res := DetectResult{}
	signals := []string{}
	score := 0.0

	total := 0
	for _, line := range splitLines(content.OrderText) {
		total++
		if _, _, withUnit, ok := matchLine(reLeadingBullet.ReplaceAllString(line, "")); ok {
			if withUnit {
				res.UnitLines++
			} else {
				res.CountLines++
			}
		}
	}
	if res.UnitLines > 0 {
		score += 0.2 * float64(min(res.UnitLines, 3))
		signals = append(signals, fmt.Sprintf("unit_lines=%d", res.UnitLines))
	}
	if res.CountLines > 0 {
		score += 0.1 * float64(min(res.CountLines, 2))
		signals = append(signals, fmt.Sprintf("count_lines=%d", res.CountLines))
	}
	if total >= 2 && 2*(res.UnitLines+res.CountLines) >= total {
		score += 0.15
		signals = append(signals, "mostly_lines")
	}

	if containsAny(strings.ToLower(subject), orderWords) {
		score += 0.3
		signals = append(signals, "subject")
	} else if containsAny(strings.ToLower(content.Text), orderWords) {
		score += 0.1
		signals = append(signals, "body")
	}

	for _, name := range content.Attachments {
		if kind, err := KindFromFilename(name); err == nil && kind != internal.InputEML {
			score += 0.25
			signals = append(signals, "attachment")
			break
		}
	}

	res.Score = min(score, 1)
	res.IsOrder = res.Score >= orderThreshold
	res.Reason = strings.Join(signals, "+")
	if res.Reason == "" {
		res.Reason = "none"
	}
	return res
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
