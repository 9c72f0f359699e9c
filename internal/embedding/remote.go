package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type RemoteConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	BatchSize    int
	TimeoutMs    int
	RateLimitRPS int
	MaxRetries   int
}

// Remote calls an OpenAI-compatible /embeddings endpoint. Ollama's
// single-vector response shape is accepted as well.
type Remote struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	maxRetries int
	httpClient *http.Client
	limiter    *RateLimiter
	sleep      func(context.Context, time.Duration) error
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 30000
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Remote{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RateLimitRPS),
		sleep:      sleepCtx,
	}, nil
}

func (c *Remote) Name() string { return "openai:" + c.model }

func (c *Remote) Encode(ctx context.Context, text string) ([]float64, error) {
	out, err := c.request(ctx, []string{text}, true)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *Remote) EncodeBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.request(ctx, texts[start:end], false)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embeddingsRequest struct {
	Input  any    `json:"input"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Embedding []float64 `json:"embedding"`
}

// request posts one batch. single sends a bare string input with the legacy
// prompt field so that Ollama's /api/embeddings shape is served too.
func (c *Remote) request(ctx context.Context, texts []string, single bool) ([][]float64, error) {
	body := embeddingsRequest{Input: texts, Model: c.model}
	if single {
		body.Input = texts[0]
		body.Prompt = texts[0]
	}
	blob, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(blob))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("embeddings status=%d body=%s", resp.StatusCode, truncate(string(payload), 200))
			if !isRetryableStatus(resp.StatusCode) {
				return nil, lastErr
			}
			if wait, ok := retryAfter(resp.Header.Get("Retry-After")); ok && attempt < c.maxRetries {
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
			continue
		}

		vecs, err := decodeEmbeddings(payload, len(texts))
		if err != nil {
			return nil, err
		}
		return vecs, nil
	}
	if lastErr == nil {
		lastErr = errors.New("embeddings request failed")
	}
	return nil, lastErr
}

func decodeEmbeddings(payload []byte, want int) ([][]float64, error) {
	var out embeddingsResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(out.Data) > 0 {
		if len(out.Data) != want {
			return nil, fmt.Errorf("embeddings count=%d want=%d", len(out.Data), want)
		}
		vecs := make([][]float64, want)
		for i, d := range out.Data {
			idx := d.Index
			if idx < 0 || idx >= want || vecs[idx] != nil {
				idx = i
			}
			vecs[idx] = d.Embedding
		}
		return vecs, nil
	}
	if len(out.Embedding) > 0 && want == 1 {
		return [][]float64{out.Embedding}, nil
	}
	return nil, errors.New("no embedding returned")
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func retryAfter(header string) (time.Duration, bool) {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryDelay(attempt int) time.Duration {
	d := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
