// Package taxonomy derives the storefront's filter categories from the
// explicit category table and the loosely structured tags and category
// references found on products.
//
// Reconcile is a pure function: callers re-run it whenever either input
// changes. It never fails; tags it cannot make sense of are dropped.
package taxonomy

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// Source records where an entry came from.
type Source string

const (
	SourceCategory Source = "category" // explicit category table
	SourceTag      Source = "tag"      // free-text product tag
	SourceGuessed  Source = "guessed"  // dangling product categoryId
)

// Entry is one resolved filter category.
type Entry struct {
	ID            string               `json:"id" yaml:"id"`
	Name          string               `json:"name" yaml:"name"`
	SubCategories []schema.SubCategory `json:"subCategories,omitempty" yaml:"sub_categories,omitempty"`
	Source        Source               `json:"source" yaml:"source"`
}

// Key is the dedup key for a display name: trimmed and lowercased.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Reconciler merges categories and product tags into one sorted list.
type Reconciler struct {
	lang language.Tag
}

// New returns a Reconciler sorting names by the rules of lang. Use
// language.Und for a locale-neutral order.
func New(lang language.Tag) *Reconciler {
	return &Reconciler{lang: lang}
}

// Reconcile with the locale-neutral order.
func Reconcile(categories []schema.Category, products []schema.Product) []Entry {
	return New(language.Und).Reconcile(categories, products)
}

// Reconcile builds the taxonomy.
//
// Explicit categories seed the result and win every name collision. Product
// tags add entries for labels not seen yet; tags shaped like category ids
// are resolved against the explicit table and dropped when orphaned; tags
// that look like leaked internal ids are ignored. A product categoryId
// that resolves to nothing yields a guessed entry named after the
// product's first usable tag, or after the raw id.
func (r *Reconciler) Reconcile(categories []schema.Category, products []schema.Product) []Entry {
	m := newMerger(categories)

	for _, p := range products {
		for _, tag := range p.Tags {
			m.addTag(tag)
		}
	}
	for _, p := range products {
		m.addCategoryRef(p)
	}

	out := m.entries()
	sortEntries(out, collate.New(r.lang, collate.IgnoreCase))
	return out
}

// merger accumulates entries keyed by Key(name); first seen wins.
type merger struct {
	byKey    map[string]*Entry
	order    []*Entry
	explicit map[string]schema.Category
}

func newMerger(categories []schema.Category) *merger {
	m := &merger{
		byKey:    make(map[string]*Entry),
		explicit: make(map[string]schema.Category, len(categories)),
	}
	for _, c := range categories {
		if c.ID == "" || strings.TrimSpace(c.Name) == "" {
			continue
		}
		if _, dup := m.explicit[c.ID]; !dup {
			m.explicit[c.ID] = c
		}
		m.insert(Entry{
			ID:            c.ID,
			Name:          strings.TrimSpace(c.Name),
			SubCategories: c.SubCategories,
			Source:        SourceCategory,
		})
	}
	return m
}

func (m *merger) insert(e Entry) {
	key := Key(e.Name)
	if key == "" {
		return
	}
	if _, ok := m.byKey[key]; ok {
		return
	}
	entry := e
	m.byKey[key] = &entry
	m.order = append(m.order, &entry)
}

func (m *merger) addTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || LooksLikeInternalID(tag) {
		return
	}
	if schema.IsCategoryID(tag) {
		// Resolvable ids are already present through the explicit seed;
		// orphaned ones would only surface a cryptic label.
		return
	}
	m.insert(Entry{ID: tag, Name: tag, Source: SourceTag})
}

func (m *merger) addCategoryRef(p schema.Product) {
	id := strings.TrimSpace(p.CategoryID)
	if id == "" {
		return
	}
	if c, ok := m.explicit[id]; ok {
		m.insert(Entry{ID: c.ID, Name: strings.TrimSpace(c.Name), SubCategories: c.SubCategories, Source: SourceCategory})
		return
	}
	name := firstLabel(p.Tags)
	if name == "" {
		name = id
	}
	m.insert(Entry{ID: id, Name: name, Source: SourceGuessed})
}

func (m *merger) entries() []Entry {
	out := make([]Entry, len(m.order))
	for i, e := range m.order {
		out[i] = *e
	}
	return out
}

// firstLabel returns the first tag usable as a display name.
func firstLabel(tags schema.Tags) string {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || LooksLikeInternalID(t) || schema.IsCategoryID(t) {
			continue
		}
		return t
	}
	return ""
}
