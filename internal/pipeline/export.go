package pipeline

import (
	"crypto/rand"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xuri/excelize/v2"

	"grocermap/internal"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	exportPrefix = "processed_order_"
)

var ExportColumns = []string{"Item Code", "Item Name", "Category", "Quantity", "Confidence", "Similarity Score", "Original Text"}

var ErrExportNotFound = errors.New("export not found")

// Exporter writes mapped items into the export directory. Filenames carry a
// ULID, so concurrent exports never share a name.
type Exporter struct {
	dir    string
	format string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewExporter(dir, format string) *Exporter {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatXLSX {
		format = FormatCSV
	}
	return &Exporter{
		dir:     dir,
		format:  format,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (x *Exporter) Dir() string { return x.dir }

func (x *Exporter) newName() (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(x.now()), x.entropy)
	if err != nil {
		return "", err
	}
	return exportPrefix + id.String() + "." + x.format, nil
}

// Write exports items and returns the bare filename. With no items nothing is
// written and the filename is empty.
func (x *Exporter) Write(items []internal.MappedItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	name, err := x.newName()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(x.dir, name)
	switch x.format {
	case FormatXLSX:
		err = writeXLSX(path, items)
	default:
		err = writeCSV(path, items)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	return name, nil
}

// Open resolves a download name inside the export directory.
func (x *Exporter) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || !strings.HasPrefix(name, exportPrefix) {
		return "", ErrExportNotFound
	}
	path := filepath.Join(x.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrExportNotFound
	}
	return path, nil
}

func exportRow(item internal.MappedItem) []string {
	score := ""
	if item.SimilarityScore != nil {
		score = strconv.FormatFloat(*item.SimilarityScore, 'f', 3, 64)
	}
	return []string{
		derefString(item.Code),
		derefString(item.Name),
		derefString(item.Category),
		strconv.FormatFloat(item.Quantity, 'f', -1, 64),
		string(item.Confidence),
		score,
		item.OriginalText,
	}
}

func writeCSV(path string, items []internal.MappedItem) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(ExportColumns); err != nil {
		f.Close()
		return err
	}
	for _, item := range items {
		if err := w.Write(exportRow(item)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeXLSX(path string, items []internal.MappedItem) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, "Order"); err != nil {
		return err
	}
	sheet = "Order"

	for i, h := range ExportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, item := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
		row := exportRow(item)
		set(1, row[0])
		set(2, row[1])
		set(3, row[2])
		set(4, item.Quantity)
		set(5, row[4])
		set(6, row[5])
		set(7, row[6])
	}
	return f.SaveAs(path)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
