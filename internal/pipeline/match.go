package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"grocermap/internal"
	"grocermap/internal/catalog"
	"grocermap/internal/embedding"
	"grocermap/internal/util"
)

// ErrCatalogNotLoaded is returned by matching and catalog reads before a
// successful load.
var ErrCatalogNotLoaded = catalog.ErrNotLoaded

type MatchOptions struct {
	High           float64
	Medium         float64
	Low            float64
	MinSimilarity  float64
	TopK           int
	GapWeight      float64
	SubstringBonus float64
	CategoryBonus  float64
	FoodCategories []string
}

func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		High:           0.75,
		Medium:         0.55,
		Low:            0.35,
		MinSimilarity:  0.25,
		TopK:           5,
		GapWeight:      0.3,
		SubstringBonus: 0.1,
		CategoryBonus:  0.05,
		FoodCategories: []string{"food", "grocery", "fresh"},
	}
}

type Candidate struct {
	Item  internal.CatalogItem
	Score float64
}

type MatchResult struct {
	Item       internal.MappedItem
	Candidates []Candidate
	// Adjusted is the tiering score of the admitted candidate, 0 when none was admitted.
	Adjusted float64
	Admitted bool
}

// CatalogSource produces catalog indexes. *catalog.Loader satisfies it.
type CatalogSource interface {
	Load(ctx context.Context) (*catalog.Index, error)
	Reload(ctx context.Context) (*catalog.Index, error)
}

// CatalogCommitter persists a reloaded index once the engine has published
// it. *catalog.Loader satisfies it.
type CatalogCommitter interface {
	Commit(idx *catalog.Index)
}

// engineState pairs an index with the embeddings computed for it and the
// embedder that produced them. A state is never mutated once published.
type engineState struct {
	index    *catalog.Index
	vectors  [][]float64
	embedder embedding.TextEmbedder
}

// Engine matches order lines against the current catalog. Load, prepare and
// reload are serialized; matching reads the published state without locking.
type Engine struct {
	mu           sync.Mutex
	current      atomic.Pointer[engineState]
	source       CatalogSource
	embedder     embedding.TextEmbedder
	opts         MatchOptions
	preparations atomic.Int64
}

func NewEngine(source CatalogSource, embedder embedding.TextEmbedder, opts MatchOptions) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultMatchOptions().TopK
	}
	return &Engine{source: source, embedder: embedder, opts: opts}
}

func (e *Engine) IsLoaded() bool { return e.current.Load() != nil }

// IsPrepared reports whether catalog embeddings are cached for the current index.
func (e *Engine) IsPrepared() bool {
	st := e.current.Load()
	return st != nil && st.vectors != nil
}

// Preparations counts completed embedding passes over the catalog.
func (e *Engine) Preparations() int64 { return e.preparations.Load() }

func (e *Engine) EmbedderName() string {
	if st := e.current.Load(); st != nil && st.embedder != nil {
		return st.embedder.Name()
	}
	return e.embedder.Name()
}

// Index returns the current catalog index.
func (e *Engine) Index() (*catalog.Index, error) {
	st := e.current.Load()
	if st == nil {
		return nil, ErrCatalogNotLoaded
	}
	return st.index, nil
}

// LoadCatalog loads the catalog once. Later calls are no-ops.
func (e *Engine) LoadCatalog(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.Load() != nil {
		return nil
	}
	idx, err := e.source.Load(ctx)
	if err != nil {
		return err
	}
	e.current.Store(&engineState{index: idx})
	return nil
}

// Prepare embeds the current catalog if that has not happened yet.
func (e *Engine) Prepare(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.current.Load()
	if st == nil {
		return ErrCatalogNotLoaded
	}
	if st.vectors != nil {
		return nil
	}
	next, err := e.prepare(ctx, st.index)
	if err != nil {
		return err
	}
	e.current.Store(next)
	return nil
}

// Reload re-ingests the catalog, embeds it and publishes the new pair. The
// source commits the index only after publication, so on failure both the
// in-memory state and the persisted snapshot stay on the previous catalog.
func (e *Engine) Reload(ctx context.Context) (*catalog.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, err := e.source.Reload(ctx)
	if err != nil {
		return nil, err
	}
	next, err := e.prepare(ctx, idx)
	if err != nil {
		return nil, err
	}
	e.current.Store(next)
	if c, ok := e.source.(CatalogCommitter); ok {
		c.Commit(idx)
	}
	return idx, nil
}

func (e *Engine) prepare(ctx context.Context, idx *catalog.Index) (*engineState, error) {
	started := time.Now()
	texts := make([]string, idx.Len())
	for i := range texts {
		texts[i] = CompositeText(idx.Item(i))
	}

	emb := e.embedder
	if f, ok := emb.(embedding.Fitter); ok {
		fitted, err := f.Fit(texts)
		if err != nil {
			return nil, fmt.Errorf("fit embedder: %w", err)
		}
		emb = fitted
	}
	vectors, err := emb.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed catalog: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed catalog: got %d vectors for %d items", len(vectors), len(texts))
	}
	e.preparations.Add(1)
	log.Printf("match: prepared catalog items=%d embedder=%s took=%s", len(texts), emb.Name(), time.Since(started).Round(time.Millisecond))
	return &engineState{index: idx, vectors: vectors, embedder: emb}, nil
}

// ready returns a prepared state, preparing synchronously when needed.
func (e *Engine) ready(ctx context.Context) (*engineState, error) {
	st := e.current.Load()
	if st == nil {
		return nil, ErrCatalogNotLoaded
	}
	if st.vectors != nil {
		return st, nil
	}
	if err := e.Prepare(ctx); err != nil {
		return nil, err
	}
	return e.current.Load(), nil
}

// Match maps one parsed line.
func (e *Engine) Match(ctx context.Context, line internal.ParsedLine) (MatchResult, error) {
	st, err := e.ready(ctx)
	if err != nil {
		return MatchResult{}, err
	}
	return e.matchOn(ctx, st, line)
}

// MatchAll maps lines in order against a single catalog state, so a reload
// during the call never mixes old and new items.
func (e *Engine) MatchAll(ctx context.Context, lines []internal.ParsedLine) ([]MatchResult, error) {
	st, err := e.ready(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MatchResult, 0, len(lines))
	for _, line := range lines {
		res, err := e.matchOn(ctx, st, line)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) matchOn(ctx context.Context, st *engineState, line internal.ParsedLine) (MatchResult, error) {
	normalized := NormalizeText(line.Description)
	query, err := st.embedder.Encode(ctx, normalized)
	if err != nil {
		return MatchResult{}, fmt.Errorf("embed %q: %w", line.Description, err)
	}

	ranked := rank(query, st.vectors, e.opts.TopK)
	res := MatchResult{
		Item: internal.MappedItem{
			OriginalText: line.Description,
			Quantity:     line.Quantity,
			Confidence:   internal.ConfidenceUnmatched,
		},
		Candidates: make([]Candidate, 0, len(ranked)),
	}
	for _, r := range ranked {
		res.Candidates = append(res.Candidates, Candidate{Item: st.index.Item(r.idx), Score: r.score})
	}

	admitted := -1
	for i, c := range res.Candidates {
		if c.Score >= e.opts.MinSimilarity {
			admitted = i
			break
		}
	}
	if admitted < 0 {
		return res, nil
	}
	res.Admitted = true

	best := res.Candidates[admitted]
	adjusted := best.Score
	if len(res.Candidates) > 1 {
		adjusted += e.opts.GapWeight * (res.Candidates[0].Score - res.Candidates[1].Score)
	}
	if normalized != "" && strings.Contains(strings.ToLower(best.Item.Name), normalized) {
		adjusted += e.opts.SubstringBonus
	}
	if e.isFoodCategory(best.Item.Category) {
		adjusted += e.opts.CategoryBonus
	}
	res.Adjusted = adjusted

	tier := e.tier(adjusted)
	if tier == internal.ConfidenceUnmatched {
		return res, nil
	}
	res.Item.Code = util.StringPtr(best.Item.Code)
	res.Item.Name = util.StringPtr(best.Item.Name)
	res.Item.Category = util.StringPtr(best.Item.Category)
	res.Item.SimilarityScore = util.FloatPtr(best.Score)
	res.Item.Confidence = tier
	return res, nil
}

func (e *Engine) tier(score float64) internal.ConfidenceTier {
	switch {
	case score >= e.opts.High:
		return internal.ConfidenceHigh
	case score >= e.opts.Medium:
		return internal.ConfidenceMedium
	case score >= e.opts.Low:
		return internal.ConfidenceLow
	default:
		return internal.ConfidenceUnmatched
	}
}

func (e *Engine) isFoodCategory(category string) bool {
	lower := strings.ToLower(category)
	for _, word := range e.opts.FoodCategories {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

type scored struct {
	idx   int
	score float64
}

// rank orders catalog positions by cosine similarity, ties in load order.
func rank(query []float64, vectors [][]float64, k int) []scored {
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{idx: i, score: embedding.Cosine(query, v)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })
	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all
}
