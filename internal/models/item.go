// Package models defines core data structures for items, matches, and recommendations.
package models

// Item is one row of an upsert batch: an identifier, its raw embedding and its metadata.
type Item struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Metadata  Record    `json:"metadata,omitempty"`
}

// ItemInput is an ingest request item. Embedding is optional; when empty the text
// fields are embedded. ID is optional; a new one is generated when empty.
type ItemInput struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Categories  string    `json:"categories,omitempty"`
	Text        string    `json:"text,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Metadata    Record    `json:"metadata,omitempty"`
}

// ItemStatus is the per-item outcome of an upsert.
type ItemStatus string

const (
	// ItemAccepted means the embedding was stored.
	ItemAccepted ItemStatus = "accepted"
	// ItemRejected means the item was skipped; Reason says why.
	ItemRejected ItemStatus = "rejected"
)

// ItemResult reports what happened to one item of a batch.
type ItemResult struct {
	ID       string     `json:"id"`
	Status   ItemStatus `json:"status"`
	Reason   string     `json:"reason,omitempty"`
	Position int        `json:"position"` // row offset when accepted, -1 otherwise
}

// UpsertResult is the batch outcome. Items is in input order.
type UpsertResult struct {
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Items    []ItemResult `json:"items"`
}

// AcceptedIDs returns the identifiers that were stored, in input order.
func (r *UpsertResult) AcceptedIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, r.Accepted)
	for _, it := range r.Items {
		if it.Status == ItemAccepted {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Add appends an item outcome and updates the counters.
func (r *UpsertResult) Add(it ItemResult) {
	if it.Status == ItemAccepted {
		r.Accepted++
	} else {
		r.Rejected++
	}
	r.Items = append(r.Items, it)
}

// Merge appends other's outcomes to r.
func (r *UpsertResult) Merge(other *UpsertResult) {
	if other == nil {
		return
	}
	for _, it := range other.Items {
		r.Add(it)
	}
}
