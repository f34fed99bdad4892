package schema

import "fmt"

// Kind names one logical collection of records.
type Kind string

const (
	KindProducts   Kind = "products"
	KindCategories Kind = "categories"
	KindDrafts     Kind = "drafts"
	KindSettings   Kind = "settings"
)

// AllKinds lists every kind in table-creation order.
var AllKinds = []Kind{KindProducts, KindCategories, KindDrafts, KindSettings}

// MirrorableKinds lists the kinds that participate in remote sync.
var MirrorableKinds = []Kind{KindProducts, KindCategories, KindSettings}

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindProducts, KindCategories, KindDrafts, KindSettings:
		return true
	}
	return false
}

// Mirrorable reports whether records of this kind are copied to the remote
// store. Drafts are transient and stay local.
func (k Kind) Mirrorable() bool {
	return k.IsValid() && k != KindDrafts
}

// Ordered reports whether reads of this kind are sorted newest first.
func (k Kind) Ordered() bool {
	return k == KindProducts || k == KindCategories
}

// Table returns the table (or remote collection) name for the kind.
func (k Kind) Table() string {
	return string(k)
}

// ParseKind converts a user-supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown kind %q (want products, categories, drafts or settings)", s)
	}
	return k, nil
}
