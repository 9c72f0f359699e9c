package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"grocermap/internal"
	"grocermap/internal/util"
)

// mail boilerplate that never carries order lines
var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--+$`),
	regexp.MustCompile(`^>`),
	regexp.MustCompile(`(?i)^(many )?thanks?( you)?[.,!]*$`),
	regexp.MustCompile(`(?i)^(best|kind|warm)?\s*regards[.,!]*$`),
	regexp.MustCompile(`(?i)^(tel|phone|mob)[:\s]`),
	regexp.MustCompile(`(?i)^e-?mail[:\s]`),
	regexp.MustCompile(`(?i)^https?://`),
	regexp.MustCompile(`(?i)^sent from my`),
	regexp.MustCompile(`(?i)^on .+ wrote:$`),
}

// KindFromFilename maps an upload name onto an input kind.
func KindFromFilename(name string) (internal.InputKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text", ".csv":
		return internal.InputText, nil
	case ".html", ".htm":
		return internal.InputHTML, nil
	case ".eml":
		return internal.InputEML, nil
	case ".pdf":
		return internal.InputPDF, nil
	case ".xlsx":
		return internal.InputXLSX, nil
	}
	return "", fmt.Errorf("unsupported order file type: %s", filepath.Ext(name))
}

// ExtractText turns an order document into newline-separated order text.
func ExtractText(kind internal.InputKind, blob []byte) (string, error) {
	switch kind {
	case internal.InputText:
		return string(blob), nil
	case internal.InputHTML:
		return htmlToText(string(blob))
	case internal.InputEML:
		mail, err := ExtractMail(blob)
		if err != nil {
			return "", err
		}
		return mail.OrderText, nil
	case internal.InputPDF:
		return pdfToText(blob)
	case internal.InputXLSX:
		return xlsxToText(blob)
	}
	return "", fmt.Errorf("unsupported input kind: %s", kind)
}

type MailContent struct {
	Subject     string
	Text        string
	HTML        string
	Attachments []string
	OrderText   string
}

// ExtractMail reads a raw RFC 822 message. OrderText gathers the text body,
// HTML table rows and readable attachments, minus signature noise.
func ExtractMail(raw []byte) (MailContent, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return MailContent{}, err
	}
	out := MailContent{Subject: env.GetHeader("Subject"), Text: env.Text, HTML: env.HTML}

	parts := []string{}
	if strings.TrimSpace(env.Text) != "" {
		parts = append(parts, env.Text)
	}
	if env.HTML != "" {
		if rows := htmlTableRows(env.HTML); len(rows) > 0 {
			parts = append(parts, strings.Join(rows, "\n"))
		} else if strings.TrimSpace(env.Text) == "" {
			if body, err := htmlToText(env.HTML); err == nil {
				parts = append(parts, body)
			}
		}
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.Attachments = append(out.Attachments, filename)

		kind, err := KindFromFilename(filename)
		if err != nil || kind == internal.InputEML {
			continue
		}
		text, err := ExtractText(kind, att.Content)
		if err != nil {
			continue
		}
		parts = append(parts, text)
	}

	out.OrderText = mergeParts(parts)
	return out, nil
}

// mergeParts joins parts line by line, dropping noise and lines already
// seen in an earlier part.
func mergeParts(parts []string) string {
	seen := map[string]struct{}{}
	lines := []string{}
	for _, part := range parts {
		local := map[string]struct{}{}
		for _, line := range splitLines(part) {
			if isLikelyNoise(line) {
				continue
			}
			key := strings.ToLower(line)
			if _, dup := seen[key]; dup {
				continue
			}
			local[key] = struct{}{}
			lines = append(lines, line)
		}
		for k := range local {
			seen[k] = struct{}{}
		}
	}
	return strings.Join(lines, "\n")
}

func htmlTableRows(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	out := []string{}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 && row.Find("td").Length() == 0 {
			return
		}
		cells := []string{}
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			if text := util.NormalizeSpaces(cell.Text()); text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			out = append(out, strings.Join(cells, " "))
		}
	})
	return out
}

func htmlToText(html string) (string, error) {
	if rows := htmlTableRows(html); len(rows) > 0 {
		return strings.Join(rows, "\n"), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	lines := []string{}
	doc.Find("p,li,div,h1,h2,h3,h4,pre").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p,li,div").Length() > 0 {
			return
		}
		for _, line := range splitLines(s.Text()) {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		lines = splitLines(doc.Text())
	}
	return strings.Join(lines, "\n"), nil
}

func xlsxToText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := []string{}
			for _, c := range row {
				if c = util.NormalizeSpaces(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func pdfToText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		lines = append(lines, splitLines(text)...)
	}
	return strings.Join(lines, "\n"), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = util.NormalizeSpaces(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}
