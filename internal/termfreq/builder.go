// Package termfreq turns a document's term stream into its capped term-frequency list.
package termfreq

import (
	"sort"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/model"
)

// TermCount is the raw occurrence count of a distinct term.
type TermCount struct {
	Term  string
	Count int
}

// Result is the output of Build.
type Result struct {
	Terms      []model.TermStat // top-K terms, Unscored, ordered by count descending
	TokenCount int              // total number of tokens in the document
}

// Builder computes per-document term frequencies capped at TopK terms.
type Builder struct {
	topK int
}

// NewBuilder creates a Builder. A non-positive topK falls back to model.DefaultTopK.
func NewBuilder(topK int) *Builder {
	if topK <= 0 {
		topK = model.DefaultTopK
	}
	return &Builder{topK: topK}
}

// TopK returns the cap applied by the builder.
func (b *Builder) TopK() int {
	return b.topK
}

// Count tallies the distinct terms of the sequence, ordered by count descending.
// Terms with equal counts keep their first-seen order.
func Count(terms []string) []TermCount {
	index := make(map[string]int, len(terms))
	counts := make([]TermCount, 0)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if i, ok := index[term]; ok {
			counts[i].Count++
			continue
		}
		index[term] = len(counts)
		counts = append(counts, TermCount{Term: term, Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// Frequencies returns the tf of every distinct term (no cap), in Count order,
// and the total number of tokens used as the divisor. The values sum to 1.
func Frequencies(terms []string) ([]model.TermStat, int) {
	counts := Count(terms)
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	stats := make([]model.TermStat, 0, len(counts))
	if total == 0 {
		return stats, 0
	}
	for _, c := range counts {
		stats = append(stats, model.Unscored(c.Term, float64(c.Count)/float64(total)))
	}
	return stats, total
}

// Build computes the capped term list of a document.
//
// tf(term) = count(term) / total tokens. The total counts every token, not
// the number of distinct terms. A document without tokens yields an empty
// list together with ErrDegenerateDocument; callers may treat that as a
// valid empty result.
func (b *Builder) Build(terms []string) (Result, error) {
	all, tokenCount := Frequencies(terms)
	if tokenCount == 0 {
		return Result{Terms: []model.TermStat{}, TokenCount: 0}, apperrors.ErrDegenerateDocument
	}

	if len(all) > b.topK {
		all = all[:b.topK]
	}
	return Result{Terms: all, TokenCount: tokenCount}, nil
}
