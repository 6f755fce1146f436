package model

import "time"

// Collection groups documents of one owner. IDF values are scoped to a
// collection. DocumentIDs is kept in insertion order by the stores, although
// the order carries no meaning for the statistics themselves.
type Collection struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	DocumentIDs []string  `json:"document_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// Contains reports whether documentID is a member of the collection.
func (c Collection) Contains(documentID string) bool {
	for _, id := range c.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}
