package sync

import (
	"context"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// Collection is a typed view of one kind on a Coordinator.
type Collection[T any, PT schema.Record[T]] struct {
	coord *Coordinator
	kind  schema.Kind
}

// Products returns the typed product collection.
func Products(c *Coordinator) *Collection[schema.Product, *schema.Product] {
	return &Collection[schema.Product, *schema.Product]{coord: c, kind: schema.KindProducts}
}

// Categories returns the typed category collection.
func Categories(c *Coordinator) *Collection[schema.Category, *schema.Category] {
	return &Collection[schema.Category, *schema.Category]{coord: c, kind: schema.KindCategories}
}

// Drafts returns the typed draft collection.
func Drafts(c *Coordinator) *Collection[schema.Draft, *schema.Draft] {
	return &Collection[schema.Draft, *schema.Draft]{coord: c, kind: schema.KindDrafts}
}

// Settings returns the typed settings collection.
func Settings(c *Coordinator) *Collection[schema.Settings, *schema.Settings] {
	return &Collection[schema.Settings, *schema.Settings]{coord: c, kind: schema.KindSettings}
}

// Kind returns the collection's kind.
func (c *Collection[T, PT]) Kind() schema.Kind {
	return c.kind
}

// All returns every record. Documents that no longer decode are skipped
// and logged.
func (c *Collection[T, PT]) All(ctx context.Context) ([]T, error) {
	docs, err := c.coord.GetAll(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	return c.decode(docs), nil
}

// Get returns the record with id, or false when absent.
func (c *Collection[T, PT]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	items, err := c.All(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, item := range items {
		if PT(&item).EntityID() == id {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// Subscribe works like Coordinator.Subscribe with decoded records.
func (c *Collection[T, PT]) Subscribe(ctx context.Context, onChange func([]T)) (func(), error) {
	return c.coord.Subscribe(ctx, c.kind, func(docs []schema.Document) {
		onChange(c.decode(docs))
	})
}

// Put validates and upserts item.
func (c *Collection[T, PT]) Put(ctx context.Context, item T) error {
	doc, err := schema.Encode(PT(&item))
	if err != nil {
		return err
	}
	return c.coord.Put(ctx, c.kind, doc)
}

// PutMany validates and upserts items. Nothing is written if any item is
// invalid.
func (c *Collection[T, PT]) PutMany(ctx context.Context, items []T) error {
	docs, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.coord.PutMany(ctx, c.kind, docs)
}

// ReplaceAll makes the collection hold exactly items.
func (c *Collection[T, PT]) ReplaceAll(ctx context.Context, items []T) error {
	docs, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.coord.ReplaceAll(ctx, c.kind, docs)
}

// Delete removes the record with id.
func (c *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	return c.coord.Delete(ctx, c.kind, id)
}

// DeleteMany removes ids.
func (c *Collection[T, PT]) DeleteMany(ctx context.Context, ids []string) error {
	return c.coord.DeleteMany(ctx, c.kind, ids)
}

// Clear removes every record.
func (c *Collection[T, PT]) Clear(ctx context.Context) error {
	return c.coord.Clear(ctx, c.kind)
}

func (c *Collection[T, PT]) encode(items []T) ([]schema.Document, error) {
	docs := make([]schema.Document, 0, len(items))
	for i := range items {
		doc, err := schema.Encode(PT(&items[i]))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection[T, PT]) decode(docs []schema.Document) []T {
	items, skipped := schema.DecodeAll[T, PT](docs)
	if skipped > 0 {
		c.coord.logger.Printf("WARNING: skipped %d undecodable %s records", skipped, c.kind)
	}
	return items
}
