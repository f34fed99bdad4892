package taxonomy

import (
	"strings"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// Resolver answers id -> name lookups and product filter queries over a
// reconciled taxonomy.
type Resolver struct {
	entries []Entry
	byID    map[string]Entry
	byKey   map[string]Entry
	subs    map[string]string
}

// NewResolver indexes entries as returned by Reconcile.
func NewResolver(entries []Entry) *Resolver {
	r := &Resolver{
		entries: entries,
		byID:    make(map[string]Entry, len(entries)),
		byKey:   make(map[string]Entry, len(entries)),
		subs:    make(map[string]string),
	}
	for _, e := range entries {
		if _, ok := r.byID[e.ID]; !ok {
			r.byID[e.ID] = e
		}
		r.byKey[Key(e.Name)] = e
		for _, sub := range e.SubCategories {
			r.subs[sub.ID] = sub.Name
		}
	}
	return r
}

// Entries returns the indexed entries in display order.
func (r *Resolver) Entries() []Entry {
	return r.entries
}

// Name returns the display name for a category, subcategory or tag id.
func (r *Resolver) Name(id string) (string, bool) {
	if e, ok := r.byID[id]; ok {
		return e.Name, true
	}
	if name, ok := r.subs[id]; ok {
		return name, true
	}
	return "", false
}

// Lookup finds an entry by id or, failing that, by case-insensitive name.
func (r *Resolver) Lookup(idOrName string) (Entry, bool) {
	if e, ok := r.byID[idOrName]; ok {
		return e, true
	}
	e, ok := r.byKey[Key(idOrName)]
	return e, ok
}

// Labels returns the display names for a product: its category followed by
// its tags, resolved and deduplicated. Unresolvable ids are skipped.
func (r *Resolver) Labels(p schema.Product) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		if k := Key(name); k != "" && !seen[k] {
			seen[k] = true
			out = append(out, name)
		}
	}
	if p.CategoryID != "" {
		if name, ok := r.Name(p.CategoryID); ok {
			add(name)
		}
	}
	for _, tag := range p.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || LooksLikeInternalID(tag) {
			continue
		}
		if schema.IsCategoryID(tag) {
			if name, ok := r.Name(tag); ok {
				add(name)
			}
			continue
		}
		if e, ok := r.byKey[Key(tag)]; ok {
			add(e.Name)
		}
	}
	return out
}

// Matches reports whether p belongs under e: through its categoryId, or a
// tag equal to e's id or, case-insensitively, to e's name.
func (r *Resolver) Matches(p schema.Product, e Entry) bool {
	if p.CategoryID != "" && p.CategoryID == e.ID {
		return true
	}
	key := Key(e.Name)
	for _, tag := range p.Tags {
		tag = strings.TrimSpace(tag)
		if tag == e.ID || Key(tag) == key {
			return true
		}
	}
	return false
}

// Filter returns the products that belong under e, in input order.
func (r *Resolver) Filter(products []schema.Product, e Entry) []schema.Product {
	var out []schema.Product
	for _, p := range products {
		if r.Matches(p, e) {
			out = append(out, p)
		}
	}
	return out
}
