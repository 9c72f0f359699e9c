package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"grocermap/internal"
)

// ErrUnreadableInput wraps extraction failures of uploaded order documents.
var ErrUnreadableInput = errors.New("unreadable order input")

// RunRecorder stores processed orders. *storage.DB satisfies it.
type RunRecorder interface {
	RecordOrder(traceID string, mailID *int, order internal.ProcessedOrder) error
}

// MailStore is the part of the mail store the service drives.
type MailStore interface {
	ListMailsByStatus(status string, limit int) ([]internal.MailRow, error)
	UpdateMailStatus(mailID int, status string) error
	MustMailByProviderMessageID(provider, messageID string) (internal.MailRow, error)
}

type OrderService struct {
	parser   *LineParser
	engine   *Engine
	exporter *Exporter
	recorder RunRecorder
	mails    MailStore
}

// NewOrderService wires the pipeline. A nil exporter disables exports.
func NewOrderService(parser *LineParser, engine *Engine, exporter *Exporter) *OrderService {
	return &OrderService{parser: parser, engine: engine, exporter: exporter}
}

func (s *OrderService) WithRecorder(r RunRecorder) *OrderService {
	s.recorder = r
	return s
}

func (s *OrderService) WithMailStore(m MailStore) *OrderService {
	s.mails = m
	return s
}

func (s *OrderService) Engine() *Engine { return s.engine }

func (s *OrderService) Exporter() *Exporter { return s.exporter }

// Process parses text, matches every line and exports the mapped items.
func (s *OrderService) Process(ctx context.Context, text string) (internal.ProcessedOrder, error) {
	return s.process(ctx, text, nil)
}

// ProcessFile extracts order text from a document first.
func (s *OrderService) ProcessFile(ctx context.Context, kind internal.InputKind, blob []byte) (internal.ProcessedOrder, error) {
	text, err := ExtractText(kind, blob)
	if err != nil {
		return internal.ProcessedOrder{}, fmt.Errorf("%w: extract %s: %w", ErrUnreadableInput, kind, err)
	}
	return s.process(ctx, text, nil)
}

func (s *OrderService) process(ctx context.Context, text string, mailID *int) (internal.ProcessedOrder, error) {
	start := time.Now()
	lines := s.parser.Parse(text)
	results, err := s.engine.MatchAll(ctx, lines)
	if err != nil {
		return internal.ProcessedOrder{}, err
	}

	order := internal.ProcessedOrder{
		TraceID:       uuid.NewString(),
		MappedItems:   []internal.MappedItem{},
		UnmappedItems: []string{},
		TotalItems:    len(lines),
	}
	for _, res := range results {
		if res.Item.Confidence == internal.ConfidenceUnmatched {
			order.UnmappedItems = append(order.UnmappedItems, res.Item.OriginalText)
			continue
		}
		order.MappedItems = append(order.MappedItems, res.Item)
	}
	order.MappedCount = len(order.MappedItems)
	order.UnmappedCount = len(order.UnmappedItems)

	if s.exporter != nil {
		name, err := s.exporter.Write(order.MappedItems)
		switch {
		case err != nil:
			log.Printf("order: export failed trace=%s err=%v", order.TraceID, err)
		case name != "":
			order.ExportFilename = &name
		}
	}
	order.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000

	if s.recorder != nil {
		if err := s.recorder.RecordOrder(order.TraceID, mailID, order); err != nil {
			log.Printf("order: record failed trace=%s err=%v", order.TraceID, err)
		}
	}
	log.Printf("order: processed trace=%s total=%d mapped=%d unmapped=%d took_ms=%.1f",
		order.TraceID, order.TotalItems, order.MappedCount, order.UnmappedCount, order.ProcessingTimeMs)
	return order, nil
}

type MailResult struct {
	MailID  int
	Skipped bool
	Detect  DetectResult
	Order   *internal.ProcessedOrder
}

func (s *OrderService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (MailResult, error) {
	if s.mails == nil {
		return MailResult{}, errors.New("mail store not configured")
	}
	mail, err := s.mails.MustMailByProviderMessageID(provider, messageID)
	if err != nil {
		return MailResult{}, err
	}
	return s.ProcessMail(ctx, mail)
}

// ProcessPending handles fetched mails, oldest first. It returns the number
// of mails handled and of orders produced.
func (s *OrderService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	if s.mails == nil {
		return 0, 0, errors.New("mail store not configured")
	}
	pending, err := s.mails.ListMailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	handled, orders := 0, 0
	for _, mail := range pending {
		if provider != "" && mail.Provider != provider {
			continue
		}
		res, err := s.ProcessMail(ctx, mail)
		if err != nil {
			return handled, orders, err
		}
		handled++
		if res.Order != nil {
			orders++
		}
	}
	return handled, orders, nil
}

// ProcessMail runs one stored mail through detection and the order pipeline.
func (s *OrderService) ProcessMail(ctx context.Context, mail internal.MailRow) (MailResult, error) {
	raw, err := os.ReadFile(mail.RawRef)
	if err != nil {
		return MailResult{}, err
	}
	content, err := ExtractMail(raw)
	if err != nil {
		return MailResult{}, fmt.Errorf("parse mail %d: %w", mail.ID, err)
	}

	detect := DetectOrder(firstNonEmpty(content.Subject, mail.Subject), content)
	result := MailResult{MailID: mail.ID, Detect: detect}
	if !detect.IsOrder || strings.TrimSpace(content.OrderText) == "" {
		result.Skipped = true
		s.setMailStatus(mail.ID, "skipped")
		return result, nil
	}

	mailID := mail.ID
	order, err := s.process(ctx, content.OrderText, &mailID)
	if err != nil {
		return result, err
	}
	result.Order = &order
	s.setMailStatus(mail.ID, "processed")
	return result, nil
}

func (s *OrderService) setMailStatus(mailID int, status string) {
	if s.mails == nil {
		return
	}
	if err := s.mails.UpdateMailStatus(mailID, status); err != nil {
		log.Printf("order: mail status mail=%d status=%s err=%v", mailID, status, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
