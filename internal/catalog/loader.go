package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ErrNotLoaded is returned by catalog consumers before a load succeeds.
var ErrNotLoaded = errors.New("catalog not loaded")

// CatalogError reports a load that produced no usable catalog.
type CatalogError struct {
	Op  string
	Msg string
	Err error
}

func (e *CatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("catalog %s: %s", e.Op, e.Msg)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// MetadataStore records load timestamps. *storage.DB satisfies it.
type MetadataStore interface {
	SetMetadata(key, value string) error
}

type Loader struct {
	normalizer   *Normalizer
	catalogDir   string
	snapshotPath string
	meta         MetadataStore
	now          func() time.Time
}

func NewLoader(normalizer *Normalizer, catalogDir, snapshotPath string) *Loader {
	return &Loader{normalizer: normalizer, catalogDir: catalogDir, snapshotPath: snapshotPath, now: time.Now}
}

// WithMetadata attaches a store that receives catalog.last_load stamps.
func (l *Loader) WithMetadata(meta MetadataStore) *Loader {
	l.meta = meta
	return l
}

// Load prefers the snapshot and falls back to ingesting the catalog directory.
func (l *Loader) Load(ctx context.Context) (*Index, error) {
	if l.snapshotPath != "" {
		snap, err := ReadSnapshot(l.snapshotPath)
		switch {
		case err == nil && len(snap.Items) > 0:
			idx := BuildIndex(snap.Items)
			log.Printf("catalog: loaded snapshot path=%s items=%d generated_at=%s", l.snapshotPath, idx.Len(), snap.Metadata.GeneratedAt)
			l.stamp("snapshot", idx)
			return idx, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			log.Printf("catalog: snapshot unusable path=%s err=%v", l.snapshotPath, err)
		}
	}
	idx, err := l.ingest(ctx, "load")
	if err != nil {
		return nil, err
	}
	l.Commit(idx)
	return idx, nil
}

// Reload always re-ingests the sources. The snapshot on disk is left alone
// until the caller commits the new index.
func (l *Loader) Reload(ctx context.Context) (*Index, error) {
	return l.ingest(ctx, "reload")
}

// Commit writes idx as the current snapshot together with its lookup files
// and records the load. Write failures are logged, not returned.
func (l *Loader) Commit(idx *Index) {
	if l.snapshotPath != "" {
		if err := WriteSnapshot(l.snapshotPath, NewSnapshot(idx, l.now())); err != nil {
			log.Printf("catalog: write snapshot path=%s err=%v", l.snapshotPath, err)
		} else if err := WriteLookups(filepath.Dir(l.snapshotPath), idx); err != nil {
			log.Printf("catalog: write lookups dir=%s err=%v", filepath.Dir(l.snapshotPath), err)
		}
	}
	l.stamp("sources", idx)
}

func (l *Loader) ingest(ctx context.Context, op string) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := SourceFiles(l.catalogDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &CatalogError{Op: op, Msg: "list sources in " + l.catalogDir, Err: err}
	}
	if len(files) == 0 {
		return nil, &CatalogError{Op: op, Msg: "no snapshot and no catalog sources in " + l.catalogDir}
	}

	items, report, err := l.normalizer.NormalizeDir(l.catalogDir)
	if err != nil {
		return nil, &CatalogError{Op: op, Msg: "normalize " + l.catalogDir, Err: err}
	}
	log.Printf("catalog: ingested dir=%s sources=%d sheets=%d rows=%d kept=%d skipped=%d sheet_errors=%d",
		l.catalogDir, report.Sources, report.Sheets, report.Rows, report.Kept, report.Skipped, report.SheetErrors)
	if len(items) == 0 {
		return nil, &CatalogError{Op: op, Msg: "no items survived normalization"}
	}

	return BuildIndex(items), nil
}

func (l *Loader) stamp(origin string, idx *Index) {
	if l.meta == nil {
		return
	}
	value := fmt.Sprintf("%s origin=%s items=%d", l.now().UTC().Format(time.RFC3339), origin, idx.Len())
	if err := l.meta.SetMetadata("catalog.last_load", value); err != nil {
		log.Printf("catalog: record load err=%v", err)
	}
}
