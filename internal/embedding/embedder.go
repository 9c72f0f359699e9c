package embedding

import (
	"context"
	"fmt"
	"math"
)

// TextEmbedder converts text into fixed-length vectors. Implementations are
// deterministic for a fixed model and keep batch order.
type TextEmbedder interface {
	Name() string
	Encode(ctx context.Context, text string) ([]float64, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Fitter is implemented by embedders that learn from the catalog corpus.
// Fit returns a new fitted embedder and leaves the receiver untouched.
type Fitter interface {
	Fit(corpus []string) (TextEmbedder, error)
}

// Cosine returns the cosine similarity of a and b, 0 for mismatched or zero vectors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Options selects and configures a provider.
type Options struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	BatchSize    int
	TimeoutMs    int
	RateLimitRPS int
	MaxRetries   int
}

// New builds the embedder named by opts.Provider.
func New(opts Options) (TextEmbedder, error) {
	switch opts.Provider {
	case "", "tfidf":
		return NewTFIDF(), nil
	case "openai":
		return NewRemote(RemoteConfig{
			BaseURL:      opts.BaseURL,
			APIKey:       opts.APIKey,
			Model:        opts.Model,
			BatchSize:    opts.BatchSize,
			TimeoutMs:    opts.TimeoutMs,
			RateLimitRPS: opts.RateLimitRPS,
			MaxRetries:   opts.MaxRetries,
		})
	}
	return nil, fmt.Errorf("unknown embedder %q", opts.Provider)
}
