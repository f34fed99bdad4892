// Package schema defines the storefront entity kinds and their stored shape.
//
// # Overview
//
// Every record belongs to one of four kinds and is identified by a string id
// that is unique within its kind and never changes once assigned:
//
//   - products   - catalog items shown in the gallery
//   - categories - explicit filter categories with optional sub-categories
//   - drafts     - images staged for a product that has not been saved yet
//   - settings   - well-known singleton records (featured videos)
//
// Drafts are local-only. All other kinds are mirrorable: they may be copied
// to the remote document store.
//
// # Stored shape
//
// Both store adapters persist a kind-agnostic Document:
//
//	{
//	  "id": "cat_8c0f...",
//	  "created_at": 1770363107410,
//	  "body": { ...the full entity as JSON... }
//	}
//
// Encode and Decode convert between typed entities and documents:
//
//	doc, err := schema.Encode(product)
//	p, err := schema.Decode[schema.Product](doc)
//
// # Lenient decoding
//
// Records written by older versions of the storefront are loosely typed.
// Tags may contain numbers, prices may be numbers, timestamps may be
// RFC3339 strings. Decoding coerces what it can and drops the rest instead
// of failing the whole record.
package schema
