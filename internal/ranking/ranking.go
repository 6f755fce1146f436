// Package ranking answers read-only statistics queries over recalculated term lists.
package ranking

import (
	"sort"

	"github.com/gcbaptista/go-doc-stats/model"
)

// DocumentRanking returns the document's term list sorted by IDF descending.
// Entries with equal IDF keep their stored order. Unscored entries rank as IDF 0.
func DocumentRanking(doc model.Document) []model.TermScore {
	scores := make([]model.TermScore, len(doc.Terms))
	for i, ts := range doc.Terms {
		scores[i] = model.TermScore{Term: ts.Term, TF: ts.TF, IDF: ts.IDFOrZero()}
	}
	sortByIDF(scores)
	return scores
}

// CollectionAggregate merges the term lists of a collection.
//
// For every term the absolute frequency tf × token count is summed across the
// documents and divided by the collection's total token count. The IDF is
// taken from the first document (in the given order) that contains the term;
// IDF is collection-scoped so every document carries the same value after a
// recalculation. The result is sorted by IDF descending, ties in first
// encounter order. An empty collection yields an empty, non-nil result.
func CollectionAggregate(docs []model.Document) []model.TermScore {
	totalTokens := 0
	for _, doc := range docs {
		totalTokens += doc.TokenCount
	}
	if totalTokens == 0 {
		return []model.TermScore{}
	}

	index := make(map[string]int)
	scores := make([]model.TermScore, 0)
	absolute := make([]float64, 0)

	for _, doc := range docs {
		for _, ts := range doc.Terms {
			freq := ts.TF * float64(doc.TokenCount)
			if i, ok := index[ts.Term]; ok {
				absolute[i] += freq
				continue
			}
			index[ts.Term] = len(scores)
			scores = append(scores, model.TermScore{Term: ts.Term, IDF: ts.IDFOrZero()})
			absolute = append(absolute, freq)
		}
	}

	for i := range scores {
		scores[i].TF = absolute[i] / float64(totalTokens)
	}
	sortByIDF(scores)
	return scores
}

func sortByIDF(scores []model.TermScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].IDF > scores[j].IDF
	})
}
