// Package statistics maintains collection-scoped IDF values.
//
// Every change of a collection's membership is followed by a full rescan of
// the collection: document frequencies are counted over the stored (top-K
// capped) term lists and a fresh IDF is written onto every entry of every
// document. Terms that fell outside a document's top-K are not counted.
package statistics

import (
	"math"

	"github.com/gcbaptista/go-doc-stats/model"
)

// IDF returns the smoothed inverse document frequency
//
//	idf = ln((n + 1) / (df + 1)) + 1
//
// where n is the number of documents in the collection and df the number of
// them containing the term. It is defined for n = 0 and df = n.
func IDF(n, df int) float64 {
	return math.Log(float64(n+1)/float64(df+1)) + 1
}

// DocumentFrequencies counts, for every term present in any term list, the
// number of documents whose list contains it. Duplicate entries inside one
// list are counted once.
func DocumentFrequencies(docs []model.Document) map[string]int {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc.Terms))
		for _, ts := range doc.Terms {
			if _, ok := seen[ts.Term]; ok {
				continue
			}
			seen[ts.Term] = struct{}{}
			df[ts.Term]++
		}
	}
	return df
}

// Rescore returns the new term list of every document, keyed by document ID,
// with IDF values computed over docs. The input documents are not modified.
func Rescore(docs []model.Document) map[string][]model.TermStat {
	n := len(docs)
	df := DocumentFrequencies(docs)

	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = IDF(n, count)
	}

	updates := make(map[string][]model.TermStat, n)
	for _, doc := range docs {
		terms := make([]model.TermStat, len(doc.Terms))
		for i, ts := range doc.Terms {
			terms[i] = ts.WithIDF(idf[ts.Term])
		}
		updates[doc.ID] = terms
	}
	return updates
}

// Apply returns copies of docs carrying the term lists from updates.
// Documents missing from updates are returned unchanged.
func Apply(docs []model.Document, updates map[string][]model.TermStat) []model.Document {
	out := make([]model.Document, len(docs))
	for i, doc := range docs {
		if terms, ok := updates[doc.ID]; ok {
			doc.Terms = terms
		}
		out[i] = doc
	}
	return out
}
