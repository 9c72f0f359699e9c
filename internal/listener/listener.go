package listener

import (
	"context"
	"log"
	"time"

	"grocermap/internal/connectors"
)

// Fetcher pulls new mail into the archive. *connectors.FetchService satisfies it.
type Fetcher interface {
	FetchAndStore(ctx context.Context, label string, max int) (connectors.FetchResult, error)
}

// Processor turns archived mails into orders. *pipeline.OrderService satisfies it.
type Processor interface {
	ProcessPending(ctx context.Context, limit int, provider string) (int, int, error)
}

type Options struct {
	Provider     string
	Label        string
	Interval     time.Duration
	FetchMax     int
	ProcessBatch int
}

type CycleResult struct {
	Fetch     connectors.FetchResult
	Processed int
	Orders    int
}

type Service struct {
	fetcher   Fetcher
	processor Processor
	opts      Options
}

func NewService(fetcher Fetcher, processor Processor, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Service{fetcher: fetcher, processor: processor, opts: opts}
}

// Run polls until ctx is cancelled. Cycle errors are logged and the loop
// keeps going.
func (s *Service) Run(ctx context.Context) error {
	log.Printf("listener: started provider=%s label=%s interval=%s", s.opts.Provider, s.opts.Label, s.opts.Interval)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Printf("listener: cycle failed provider=%s err=%v", s.opts.Provider, err)
		}
		select {
		case <-ctx.Done():
			log.Printf("listener: stopped provider=%s", s.opts.Provider)
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle fetches once and processes whatever is pending.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	fetched, err := s.fetcher.FetchAndStore(ctx, s.opts.Label, s.opts.FetchMax)
	if err != nil {
		return res, err
	}
	res.Fetch = fetched

	res.Processed, res.Orders, err = s.processor.ProcessPending(ctx, s.opts.ProcessBatch, s.opts.Provider)
	if err != nil {
		return res, err
	}
	log.Printf("listener: cycle done provider=%s fetched=%d new=%d processed=%d orders=%d",
		s.opts.Provider, fetched.Fetched, fetched.New, res.Processed, res.Orders)
	return res, nil
}
