package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"grocermap/internal"
	"grocermap/internal/util"
)

// Report counts what an ingestion run saw and kept.
type Report struct {
	Sources     int
	Sheets      int
	Rows        int
	Kept        int
	Skipped     int
	SheetErrors int
}

func (r *Report) add(o Report) {
	r.Sources += o.Sources
	r.Sheets += o.Sheets
	r.Rows += o.Rows
	r.Kept += o.Kept
	r.Skipped += o.Skipped
	r.SheetErrors += o.SheetErrors
}

// Normalizer turns tabular catalog sources into CatalogItems.
type Normalizer struct {
	aliases   AliasTable
	blocklist map[string]struct{}
}

func NewNormalizer(aliases map[string][]string, blocklist []string) *Normalizer {
	n := &Normalizer{aliases: NewAliasTable(aliases), blocklist: map[string]struct{}{}}
	for _, token := range blocklist {
		n.blocklist[strings.ToLower(strings.TrimSpace(token))] = struct{}{}
	}
	return n
}

// SourceFiles lists the .xlsx and .csv files directly under dir, sorted by name.
func SourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".xlsx", ".csv":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeDir ingests every source file in dir. Unreadable files are logged
// and skipped.
func (n *Normalizer) NormalizeDir(dir string) ([]internal.CatalogItem, Report, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return nil, Report{}, err
	}
	var (
		items  []internal.CatalogItem
		report Report
	)
	for _, path := range files {
		got, r, err := n.NormalizeFile(path)
		if err != nil {
			log.Printf("catalog: skip source=%s err=%v", filepath.Base(path), err)
			report.Sources++
			report.SheetErrors++
			continue
		}
		items = append(items, got...)
		report.add(r)
	}
	return items, report, nil
}

func (n *Normalizer) NormalizeFile(path string) ([]internal.CatalogItem, Report, error) {
	source := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, Report{}, err
		}
		defer f.Close()
		return n.normalizeWorkbook(f, source)
	case ".csv":
		fh, err := os.Open(path)
		if err != nil {
			return nil, Report{}, err
		}
		defer fh.Close()
		return n.NormalizeCSV(fh, source)
	}
	return nil, Report{}, fmt.Errorf("unsupported catalog source %s", source)
}

// NormalizeWorkbook reads every sheet of an xlsx stream.
func (n *Normalizer) NormalizeWorkbook(r io.Reader, source string) ([]internal.CatalogItem, Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, Report{}, err
	}
	defer f.Close()
	return n.normalizeWorkbook(f, source)
}

func (n *Normalizer) normalizeWorkbook(f *excelize.File, source string) ([]internal.CatalogItem, Report, error) {
	report := Report{Sources: 1}
	var items []internal.CatalogItem
	for _, sheet := range f.GetSheetList() {
		report.Sheets++
		rows, err := f.GetRows(sheet)
		if err != nil {
			log.Printf("catalog: read sheet source=%s sheet=%s err=%v", source, sheet, err)
			report.SheetErrors++
			continue
		}
		got, r := n.NormalizeRows(rows, source, sheet)
		items = append(items, got...)
		report.add(r)
	}
	return items, report, nil
}

// NormalizeCSV reads a single-sheet csv source; the sheet is named after the file.
func (n *Normalizer) NormalizeCSV(r io.Reader, source string) ([]internal.CatalogItem, Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, Report{}, fmt.Errorf("read csv %s: %w", source, err)
	}
	sheet := strings.TrimSuffix(source, filepath.Ext(source))
	items, report := n.NormalizeRows(rows, source, sheet)
	report.Sources = 1
	report.Sheets = 1
	return items, report, nil
}

// NormalizeRows maps one sheet. The first row is the header row; each
// usable column group yields its own record set, stacked group by group.
func (n *Normalizer) NormalizeRows(rows [][]string, source, sheet string) ([]internal.CatalogItem, Report) {
	var report Report
	if len(rows) == 0 {
		return nil, report
	}
	layout := n.aliases.layout(rows[0])
	groups := layout.usable()
	if len(groups) == 0 {
		log.Printf("catalog: no code/name columns source=%s sheet=%s headers=%q", source, sheet, rows[0])
		report.SheetErrors++
		return nil, report
	}

	fallbackCategory := util.FileLabel(source)
	body := rows[1:]
	items := make([]internal.CatalogItem, 0, len(body)*len(groups))
	for _, g := range groups {
		for _, row := range body {
			report.Rows++
			item, ok := n.mapRow(row, g, layout.unmapped, source, sheet, fallbackCategory)
			if !ok {
				report.Skipped++
				continue
			}
			items = append(items, item)
			report.Kept++
		}
	}
	if report.Skipped > 0 {
		log.Printf("catalog: sheet source=%s sheet=%s groups=%d kept=%d skipped=%d", source, sheet, len(groups), report.Kept, report.Skipped)
	}
	return items, report
}

func (n *Normalizer) mapRow(row []string, g columnGroup, unmapped []int, source, sheet, fallbackCategory string) (internal.CatalogItem, bool) {
	code := cell(row, g.code)
	name := cell(row, g.name)
	if code == "" || name == "" {
		return internal.CatalogItem{}, false
	}
	if _, blocked := n.blocklist[strings.ToLower(name)]; blocked {
		return internal.CatalogItem{}, false
	}
	category := cell(row, g.category)
	if category == "" {
		category = fallbackCategory
	}
	brand := cell(row, g.brand)
	if brand == "" {
		brand = unknown
	}
	return internal.CatalogItem{
		Code:       code,
		Name:       name,
		Category:   category,
		Brand:      brand,
		SourceFile: source,
		SheetName:  sheet,
		Synonyms:   splitSynonyms(synonymBag(row, unmapped)),
	}, true
}

func synonymBag(row []string, cols []int) string {
	parts := []string{}
	for _, col := range cols {
		if v := cell(row, col); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | ")
}

func splitSynonyms(bag string) []string {
	if bag == "" {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(bag, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return util.NormalizeSpaces(row[idx])
}
