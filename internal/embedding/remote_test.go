package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRemote(t *testing.T, url string, batch int) *Remote {
	t.Helper()
	r, err := NewRemote(RemoteConfig{BaseURL: url, APIKey: "k", Model: "m", BatchSize: batch, RateLimitRPS: 1000, MaxRetries: 3})
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRemoteBatchesAndKeepsOrder(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		var body struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		type row struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		rows := []row{}
		// reversed on purpose, the client must honour index
		for i := len(body.Input) - 1; i >= 0; i-- {
			rows = append(rows, row{Index: i, Embedding: []float64{float64(len(body.Input[i]))}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": rows})
	}))
	defer srv.Close()

	r := newTestRemote(t, srv.URL, 2)
	vecs, err := r.EncodeBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls=%d", calls)
	}
	for i, v := range vecs {
		if v[0] != float64(i+1) {
			t.Fatalf("vecs[%d]=%v", i, v)
		}
	}
}

func TestRemoteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5]}`))
	}))
	defer srv.Close()

	vec, err := newTestRemote(t, srv.URL, 8).Encode(context.Background(), "milk")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(vec) != 2 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("vec=%v calls=%d", vec, calls)
	}
}

func TestRemoteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := newTestRemote(t, srv.URL, 8).Encode(context.Background(), "milk"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestRemoteGivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := newTestRemote(t, srv.URL, 8).Encode(context.Background(), "milk"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.WaitTurn(ctx); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	cancel()
	if err := rl.WaitTurn(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
