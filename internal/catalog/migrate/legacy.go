// Package migrate moves catalog data saved by older releases into the
// per-kind stores.
//
// Older releases kept the whole catalog in two flat keys holding JSON
// arrays: bakery_products and bakery_categories. The migration copies them
// through the normal write path (remote attempt, then local write) and
// deletes the keys. It only runs while both the local products and the
// local categories stores are empty, so running it again is a no-op.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// Legacy key names.
const (
	ProductsKey   = "bakery_products"
	CategoriesKey = "bakery_categories"
)

// LegacyStore holds the flat legacy keys. *db.DB and FileLegacyStore
// implement it.
type LegacyStore interface {
	// LegacyValue returns the value stored under key and whether it exists.
	LegacyValue(ctx context.Context, key string) (string, bool, error)

	// DeleteLegacy removes key. Removing a missing key is not an error.
	DeleteLegacy(ctx context.Context, key string) error
}

// jsonItem is one raw element of a legacy array.
type jsonItem = json.RawMessage

// parseLegacyArray splits a legacy JSON array into its elements. Numeric ids
// written by very old releases are turned into strings.
func parseLegacyArray(value string) ([]jsonItem, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		return nil, nil
	}
	var items []jsonItem
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		return nil, fmt.Errorf("legacy value is not a JSON array: %w", err)
	}
	for i, item := range items {
		// Elements that are not objects are reported when decoded.
		if fixed, err := normalizeID(item); err == nil {
			items[i] = fixed
		}
	}
	return items, nil
}

func normalizeID(item json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	raw, ok := fields["id"]
	if !ok {
		return item, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		// Already a string, or something Decode will reject.
		return item, nil
	}
	quoted, _ := json.Marshal(num.String())
	fields["id"] = quoted
	return json.Marshal(fields)
}

// decodeProducts turns legacy product JSON into documents, filling in ids
// and timestamps the old format did not always carry.
func decodeProducts(items []jsonItem, result *MigrateResult) []schema.Document {
	docs := make([]schema.Document, 0, len(items))
	for i, item := range items {
		var p schema.Product
		if err := json.Unmarshal(item, &p); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("product %d: %v", i, err))
			continue
		}
		p.SetDefaults()
		doc, err := schema.Encode(p)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("product %d: %v", i, err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func decodeCategories(items []jsonItem, result *MigrateResult) []schema.Document {
	docs := make([]schema.Document, 0, len(items))
	for i, item := range items {
		var c schema.Category
		if err := json.Unmarshal(item, &c); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("category %d: %v", i, err))
			continue
		}
		c.SetDefaults()
		doc, err := schema.Encode(c)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("category %d: %v", i, err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}
