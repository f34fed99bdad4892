package schema

import (
	"encoding/json"
	"fmt"
)

// Document is the kind-agnostic record shape shared by the local and remote
// stores. Body holds the full entity as JSON.
type Document struct {
	ID        string          `json:"id"`
	CreatedAt int64           `json:"created_at"` // Unix millis
	Body      json.RawMessage `json:"body"`
}

// Validate checks that the document can be stored.
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(d.Body) == 0 {
		return fmt.Errorf("body is required for %s", d.ID)
	}
	if !json.Valid(d.Body) {
		return fmt.Errorf("body of %s is not valid JSON", d.ID)
	}
	return nil
}

// Entity is implemented by every typed record.
type Entity interface {
	EntityID() string
	CreatedMillis() int64
	Validate() error
}

// Record is the pointer constraint used by the generic decoders: *T must be
// an Entity whose id can be assigned from the document key.
type Record[T any] interface {
	*T
	Entity
	SetID(string)
}

// Encode converts a typed entity into a Document.
func Encode(e Entity) (Document, error) {
	if err := e.Validate(); err != nil {
		return Document{}, fmt.Errorf("invalid record: %w", err)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return Document{}, fmt.Errorf("failed to marshal %s: %w", e.EntityID(), err)
	}
	return Document{ID: e.EntityID(), CreatedAt: e.CreatedMillis(), Body: body}, nil
}

// EncodeAll converts a slice of entities, stopping at the first invalid one.
func EncodeAll[T Entity](items []T) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc, err := Encode(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Decode parses a document body into T. The document id always wins over
// an id embedded in the body.
func Decode[T any, PT Record[T]](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Body, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", doc.ID, err)
	}
	PT(&v).SetID(doc.ID)
	return v, nil
}

// DecodeAll decodes every document, skipping the ones that fail. The number
// of skipped documents is returned so callers can log it.
func DecodeAll[T any, PT Record[T]](docs []Document) ([]T, int) {
	out := make([]T, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		v, err := Decode[T, PT](doc)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

// IDs returns the ids of docs in order.
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
