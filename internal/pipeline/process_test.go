package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"grocermap/internal"
	"grocermap/internal/embedding"
)

type recordedRun struct {
	traceID string
	mailID  *int
	order   internal.ProcessedOrder
}

type memRecorder struct{ runs []recordedRun }

func (m *memRecorder) RecordOrder(traceID string, mailID *int, order internal.ProcessedOrder) error {
	m.runs = append(m.runs, recordedRun{traceID, mailID, order})
	return nil
}

type memMails struct{ rows []internal.MailRow }

func (m *memMails) ListMailsByStatus(status string, limit int) ([]internal.MailRow, error) {
	out := []internal.MailRow{}
	for _, r := range m.rows {
		if r.Status == status && (limit <= 0 || len(out) < limit) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMails) UpdateMailStatus(mailID int, status string) error {
	for i := range m.rows {
		if m.rows[i].ID == mailID {
			m.rows[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("mail %d not found", mailID)
}

func (m *memMails) MustMailByProviderMessageID(provider, messageID string) (internal.MailRow, error) {
	for _, r := range m.rows {
		if r.Provider == provider && r.MessageID == messageID {
			return r, nil
		}
	}
	return internal.MailRow{}, fmt.Errorf("mail %s/%s not found", provider, messageID)
}

func newTestService(t *testing.T, exportDir string) (*OrderService, *memRecorder) {
	t.Helper()
	engine := loadedEngine(t, &fakeSource{index: groceryIndex()}, embedding.NewTFIDF())
	var exporter *Exporter
	if exportDir != "" {
		exporter = NewExporter(exportDir, FormatCSV)
	}
	rec := &memRecorder{}
	svc := NewOrderService(NewLineParser([]string{"order", "grocery list"}), engine, exporter).WithRecorder(rec)
	return svc, rec
}

const sampleOrder = "Order:\nOrganic Apples - 2 lbs\nwhole milk 1 gal\nzebra stripes 3\n0 kg sugar\n"

func TestProcessOrderEndToEnd(t *testing.T) {
	dir := t.TempDir()
	svc, rec := newTestService(t, dir)

	order, err := svc.Process(context.Background(), sampleOrder)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if order.TotalItems != 3 || order.MappedCount != 2 || order.UnmappedCount != 1 {
		t.Fatalf("counts total=%d mapped=%d unmapped=%d", order.TotalItems, order.MappedCount, order.UnmappedCount)
	}
	if order.UnmappedItems[0] != "zebra stripes" {
		t.Fatalf("unmapped=%v", order.UnmappedItems)
	}
	first := order.MappedItems[0]
	if *first.Code != "A1" || first.Quantity != 2 || first.OriginalText != "Organic Apples" {
		t.Fatalf("first=%+v", first)
	}
	if *order.MappedItems[1].Code != "B2" {
		t.Fatalf("second=%+v", order.MappedItems[1])
	}
	if order.ExportFilename == nil {
		t.Fatalf("no export")
	}
	if _, err := os.Stat(filepath.Join(dir, *order.ExportFilename)); err != nil {
		t.Fatalf("export missing: %v", err)
	}
	if order.TraceID == "" || len(rec.runs) != 1 || rec.runs[0].traceID != order.TraceID || rec.runs[0].mailID != nil {
		t.Fatalf("runs=%+v", rec.runs)
	}
}

func TestProcessWithoutMappedItemsSkipsExport(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newTestService(t, dir)
	order, err := svc.Process(context.Background(), "zebra stripes 3\n")
	if err != nil {
		t.Fatal(err)
	}
	if order.ExportFilename != nil || order.MappedCount != 0 || order.UnmappedCount != 1 {
		t.Fatalf("order=%+v", order)
	}
	if order.MappedItems == nil || len(order.MappedItems) != 0 {
		t.Fatalf("mapped items should be an empty list")
	}
}

func TestProcessSurvivesExportFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "exports")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	svc, _ := newTestService(t, blocker)
	order, err := svc.Process(context.Background(), sampleOrder)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if order.ExportFilename != nil || order.MappedCount != 2 {
		t.Fatalf("order=%+v", order)
	}
}

func TestProcessFileText(t *testing.T) {
	svc, _ := newTestService(t, "")
	order, err := svc.ProcessFile(context.Background(), internal.InputText, []byte("brown eggs 12"))
	if err != nil {
		t.Fatal(err)
	}
	if order.MappedCount != 1 || *order.MappedItems[0].Code != "C3" || order.MappedItems[0].Quantity != 12 {
		t.Fatalf("order=%+v", order)
	}
	if order.ExportFilename != nil {
		t.Fatalf("export without exporter")
	}
}

func TestProcessRequiresLoadedCatalog(t *testing.T) {
	engine := NewEngine(&fakeSource{index: groceryIndex()}, embedding.NewTFIDF(), DefaultMatchOptions())
	svc := NewOrderService(NewLineParser(nil), engine, nil)
	if _, err := svc.Process(context.Background(), "milk"); !errors.Is(err, ErrCatalogNotLoaded) {
		t.Fatalf("err=%v", err)
	}
}

func writeMail(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, crlf(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const chatterMail = `From: friend@example.com
To: orders@example.com
Subject: Lunch on Friday?
Content-Type: text/plain; charset=utf-8

See you at noon.
`

func TestProcessPendingMails(t *testing.T) {
	dir := t.TempDir()
	svc, rec := newTestService(t, "")
	mails := &memMails{rows: []internal.MailRow{
		{ID: 1, Provider: "imap", MessageID: "m1", Status: "fetched", RawRef: writeMail(t, dir, "m1.eml", orderMail)},
		{ID: 2, Provider: "imap", MessageID: "m2", Status: "fetched", RawRef: writeMail(t, dir, "m2.eml", chatterMail)},
		{ID: 3, Provider: "gmail", MessageID: "g1", Status: "fetched", RawRef: writeMail(t, dir, "g1.eml", orderMail)},
	}}
	svc.WithMailStore(mails)

	handled, orders, err := svc.ProcessPending(context.Background(), 10, "imap")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if handled != 2 || orders != 1 {
		t.Fatalf("handled=%d orders=%d", handled, orders)
	}
	if mails.rows[0].Status != "processed" || mails.rows[1].Status != "skipped" || mails.rows[2].Status != "fetched" {
		t.Fatalf("statuses %s %s %s", mails.rows[0].Status, mails.rows[1].Status, mails.rows[2].Status)
	}
	if len(rec.runs) != 1 || rec.runs[0].mailID == nil || *rec.runs[0].mailID != 1 {
		t.Fatalf("runs=%+v", rec.runs)
	}
	if rec.runs[0].order.TotalItems != 3 {
		t.Fatalf("total=%d", rec.runs[0].order.TotalItems)
	}

	res, err := svc.ProcessByProviderMessageID(context.Background(), "gmail", "g1")
	if err != nil || res.Order == nil || res.MailID != 3 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}
