package storage

import (
	"path/filepath"
	"testing"

	"grocermap/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "app.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sp(v string) *string   { return &v }
func fp(v float64) *float64 { return &v }

func TestUpsertMailIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	first, err := db.UpsertMail("imap", "m-1", "Order", "a@b.c", "2026-01-01T00:00:00Z", "h1", "/raw/1.eml", "fetched")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := db.UpsertMail("imap", "m-1", "Order (edited)", "a@b.c", "2026-01-01T00:00:00Z", "h2", "/raw/1.eml", "fetched")
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID || second.Subject != "Order (edited)" || second.Hash != "h2" {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
}

func TestMailStatusFlow(t *testing.T) {
	db := openTestDB(t)
	a, _ := db.UpsertMail("gmail", "a", "s", "f", "2026-01-02T00:00:00Z", "h", "r", "fetched")
	b, _ := db.UpsertMail("gmail", "b", "s", "f", "2026-01-01T00:00:00Z", "h", "r", "fetched")

	pending, err := db.ListMailsByStatus("fetched", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != b.ID {
		t.Fatalf("pending=%+v", pending)
	}
	if err := db.UpdateMailStatus(a.ID, "processed"); err != nil {
		t.Fatalf("update: %v", err)
	}
	pending, _ = db.ListMailsByStatus("fetched", 10)
	if len(pending) != 1 {
		t.Fatalf("len=%d", len(pending))
	}
	got, _ := db.GetMailByID(a.ID)
	if got == nil || got.Status != "processed" {
		t.Fatalf("got=%+v", got)
	}
	if _, err := db.MustMailByProviderMessageID("gmail", "zzz"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestRecordOrderAndReadBack(t *testing.T) {
	db := openTestDB(t)
	order := internal.ProcessedOrder{
		MappedItems: []internal.MappedItem{{
			OriginalText: "organic apples", Code: sp("A1"), Name: sp("organic apples"), Category: sp("Produce"),
			Quantity: 2, Confidence: internal.ConfidenceHigh, SimilarityScore: fp(0.707),
		}},
		UnmappedItems:    []string{"unicorn steak"},
		TotalItems:       2,
		MappedCount:      1,
		UnmappedCount:    1,
		ExportFilename:   sp("processed_order_X.csv"),
		ProcessingTimeMs: 12.5,
	}
	if err := db.RecordOrder("trace-1", nil, order); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := db.ListOrders(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].TraceID != "trace-1" || runs[0].MailID != nil || runs[0].MappedCount != 1 {
		t.Fatalf("runs=%+v", runs)
	}
	if runs[0].ExportFilename == nil || *runs[0].ExportFilename != "processed_order_X.csv" {
		t.Fatalf("export=%v", runs[0].ExportFilename)
	}

	lines, err := db.OrderLines("trace-1")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len=%d", len(lines))
	}
	if lines[0].Code == nil || *lines[0].Code != "A1" || lines[0].Confidence != internal.ConfidenceHigh {
		t.Fatalf("mapped=%+v", lines[0])
	}
	if lines[1].Code != nil || lines[1].Confidence != internal.ConfidenceUnmatched || lines[1].OriginalText != "unicorn steak" {
		t.Fatalf("unmapped=%+v", lines[1])
	}
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	if v, err := db.GetMetadata("catalog.last_load"); err != nil || v != nil {
		t.Fatalf("v=%v err=%v", v, err)
	}
	_ = db.SetMetadata("catalog.last_load", "a")
	_ = db.SetMetadata("catalog.last_load", "b")
	v, _ := db.GetMetadata("catalog.last_load")
	if v == nil || *v != "b" {
		t.Fatalf("v=%v", v)
	}
}
