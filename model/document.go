package model

import "time"

// DefaultTopK is the number of most frequent terms retained per document.
const DefaultTopK = 50

// TermStat is a single entry of a document's term list.
//
// A TermStat is either Unscored (TF only, IDF nil) or Scored (TF and IDF).
// Entries are Unscored between the moment a document is stored and the first
// recalculation pass over its collection. Use the Unscored and Scored
// constructors rather than building the struct by hand.
type TermStat struct {
	Term string   `json:"term"`
	TF   float64  `json:"tf"`
	IDF  *float64 `json:"idf,omitempty"`
}

// Unscored returns a TermStat carrying only its term frequency.
func Unscored(term string, tf float64) TermStat {
	return TermStat{Term: term, TF: tf}
}

// Scored returns a TermStat carrying both term frequency and IDF.
func Scored(term string, tf, idf float64) TermStat {
	return TermStat{Term: term, TF: tf, IDF: &idf}
}

// IsScored reports whether the entry has been through a recalculation pass.
func (t TermStat) IsScored() bool {
	return t.IDF != nil
}

// IDFValue returns the IDF and whether it is set.
func (t TermStat) IDFValue() (float64, bool) {
	if t.IDF == nil {
		return 0, false
	}
	return *t.IDF, true
}

// IDFOrZero returns the IDF, or 0 for an Unscored entry.
func (t TermStat) IDFOrZero() float64 {
	idf, _ := t.IDFValue()
	return idf
}

// WithIDF returns a Scored copy of t with the given IDF.
func (t TermStat) WithIDF(idf float64) TermStat {
	return Scored(t.Term, t.TF, idf)
}

// WithoutIDF returns an Unscored copy of t.
func (t TermStat) WithoutIDF() TermStat {
	return Unscored(t.Term, t.TF)
}

// Document is an uploaded text document and its capped term list.
// CollectionID is empty when the document does not belong to any collection.
type Document struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collection_id,omitempty"`
	OwnerID      string     `json:"owner_id,omitempty"`
	Filename     string     `json:"filename"`
	Content      string     `json:"content"`
	TokenCount   int        `json:"token_count"`
	Terms        []TermStat `json:"terms"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsScored reports whether every term of the document carries an IDF.
// A document with no terms is considered scored.
func (d Document) IsScored() bool {
	for _, t := range d.Terms {
		if !t.IsScored() {
			return false
		}
	}
	return true
}

// CopyTerms returns a copy of the term list that can be modified freely.
func (d Document) CopyTerms() []TermStat {
	terms := make([]TermStat, len(d.Terms))
	copy(terms, d.Terms)
	return terms
}

// DocumentSummary is the light listing shape of a document.
type DocumentSummary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}
