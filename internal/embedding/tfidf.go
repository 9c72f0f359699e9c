package embedding

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// TFIDF is a corpus-fitted TF-IDF vectorizer. The zero model from NewTFIDF is
// unfitted; Fit returns a fitted copy and never mutates the receiver.
type TFIDF struct {
	vocabulary map[string]int
	idf        []float64
	stopwords  map[string]struct{}
}

func NewTFIDF() *TFIDF {
	return &TFIDF{stopwords: defaultStopwords()}
}

func (e *TFIDF) Name() string { return "tfidf" }

// Dimension is the vocabulary size, 0 before fitting.
func (e *TFIDF) Dimension() int { return len(e.idf) }

func (e *TFIDF) Fit(corpus []string) (TextEmbedder, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus for tfidf fit")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return nil, errors.New("no tokens found in tfidf corpus")
	}

	fitted := &TFIDF{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
		stopwords:  e.stopwords,
	}
	n := float64(len(corpus))
	for i, term := range terms {
		fitted.vocabulary[term] = i
		// smoothed idf
		fitted.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return fitted, nil
}

func (e *TFIDF) Encode(_ context.Context, text string) ([]float64, error) {
	if len(e.idf) == 0 {
		return nil, errors.New("tfidf embedder not fitted")
	}
	vec := make([]float64, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * e.idf[idx]
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e *TFIDF) EncodeBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *TFIDF) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "be", "it", "this", "that", "from", "some", "any", "please", "need", "x",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
