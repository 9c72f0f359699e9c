package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grocermap/internal"
)

const (
	snapshotVersion = "1.0"
	unknown         = "Unknown"
)

type SnapshotMetadata struct {
	TotalItems  int      `json:"total_items"`
	Categories  []string `json:"categories"`
	SourceFiles []string `json:"source_files"`
	Sheets      []string `json:"sheets"`
	GeneratedAt string   `json:"generated_at"`
	Version     string   `json:"version"`
}

type Snapshot struct {
	Metadata SnapshotMetadata       `json:"metadata"`
	Items    []internal.CatalogItem `json:"items"`
}

// NewSnapshot captures idx as a snapshot stamped with now.
func NewSnapshot(idx *Index, now time.Time) Snapshot {
	return Snapshot{
		Metadata: SnapshotMetadata{
			TotalItems:  idx.Len(),
			Categories:  idx.Categories(),
			SourceFiles: idx.Sources(),
			Sheets:      idx.sheets(),
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Version:     snapshotVersion,
		},
		Items: idx.Items(),
	}
}

// WriteSnapshot writes the snapshot through a temp file and rename so that a
// reader never sees a partial document.
func WriteSnapshot(path string, snap Snapshot) error {
	return writeJSON(path, snap)
}

// Lookup file names written next to the snapshot.
const (
	CodeToNameFile     = "code_to_name.json"
	NameToCodeFile     = "name_to_code.json"
	CategoryLookupFile = "category_lookup.json"
)

type LookupEntry struct {
	Code       string `json:"item_code"`
	Name       string `json:"item_name"`
	SourceFile string `json:"source_file"`
}

// WriteLookups writes the code, name and category lookups of idx into dir.
// On duplicate keys the later item wins.
func WriteLookups(dir string, idx *Index) error {
	codeToName := map[string]string{}
	nameToCode := map[string]string{}
	byCategory := map[string][]LookupEntry{}
	for _, item := range idx.items {
		codeToName[item.Code] = item.Name
		nameToCode[item.Name] = item.Code
		byCategory[item.Category] = append(byCategory[item.Category], LookupEntry{Code: item.Code, Name: item.Name, SourceFile: item.SourceFile})
	}
	if err := writeJSON(filepath.Join(dir, CodeToNameFile), codeToName); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, NameToCodeFile), nameToCode); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, CategoryLookupFile), byCategory)
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot. Missing optional item fields default to "Unknown".
func ReadSnapshot(path string) (Snapshot, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	kept := snap.Items[:0]
	for _, item := range snap.Items {
		if strings.TrimSpace(item.Code) == "" || strings.TrimSpace(item.Name) == "" {
			continue
		}
		item.Category = orUnknown(item.Category)
		item.Brand = orUnknown(item.Brand)
		item.SourceFile = orUnknown(item.SourceFile)
		item.SheetName = orUnknown(item.SheetName)
		kept = append(kept, item)
	}
	snap.Items = kept
	return snap, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
