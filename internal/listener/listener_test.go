package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"grocermap/internal/connectors"
)

type fakeFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeFetcher) FetchAndStore(context.Context, string, int) (connectors.FetchResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return connectors.FetchResult{}, f.err
	}
	return connectors.FetchResult{Fetched: 2, Stored: 2, New: 1}, nil
}

type fakeProcessor struct {
	calls    atomic.Int32
	provider string
	limit    int
}

func (f *fakeProcessor) ProcessPending(_ context.Context, limit int, provider string) (int, int, error) {
	f.calls.Add(1)
	f.limit, f.provider = limit, provider
	return 2, 1, nil
}

func TestRunCycle(t *testing.T) {
	fetch, proc := &fakeFetcher{}, &fakeProcessor{}
	svc := NewService(fetch, proc, Options{Provider: "imap", Label: "INBOX", FetchMax: 5, ProcessBatch: 7})
	res, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Fetch.New != 1 || res.Processed != 2 || res.Orders != 1 {
		t.Fatalf("res=%+v", res)
	}
	if proc.provider != "imap" || proc.limit != 7 {
		t.Fatalf("provider=%s limit=%d", proc.provider, proc.limit)
	}
}

func TestRunCycleStopsOnFetchError(t *testing.T) {
	fetch, proc := &fakeFetcher{err: errors.New("offline")}, &fakeProcessor{}
	svc := NewService(fetch, proc, Options{Provider: "gmail"})
	if _, err := svc.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if proc.calls.Load() != 0 {
		t.Fatalf("processed after failed fetch")
	}
}

func TestRunKeepsPollingUntilCancelled(t *testing.T) {
	fetch, proc := &fakeFetcher{err: errors.New("offline")}, &fakeProcessor{}
	svc := NewService(fetch, proc, Options{Provider: "gmail", Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for fetch.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("listener stalled after %d cycles", fetch.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
