package schema

import (
	"fmt"
	"strings"
)

// Product is a catalog item.
//
// CategoryID may be empty, stale, or point at a deleted category. Tags are
// not validated against categories: a tag can be a human label, a category
// id, or an orphaned id string. Both are reconciled at read time by the
// taxonomy package.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       Price  `json:"price,omitempty"`
	Description string `json:"description,omitempty"`

	// Images holds image references in display order: URLs or inline
	// data URLs.
	Images []string `json:"images,omitempty"`

	CategoryID string `json:"categoryId,omitempty"`
	Tags       Tags   `json:"tags,omitempty"`
	CreatedAt  Millis `json:"createdAt"`
}

// EntityID implements Entity.
func (p Product) EntityID() string { return p.ID }

// CreatedMillis implements Entity.
func (p Product) CreatedMillis() int64 { return int64(p.CreatedAt) }

// SetID assigns the product id.
func (p *Product) SetID(id string) { p.ID = id }

// Validate checks if the Product has valid field values.
func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(p.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(p.Name))
	}
	return nil
}

// SetDefaults fills in an id and creation time when missing.
func (p *Product) SetDefaults() {
	if p.ID == "" {
		p.ID = NewProductID()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = Now()
	}
	if p.Price == "" {
		p.Price = PriceContactMe
	}
}

// CoverImage returns the first image reference, or "" when there is none.
func (p Product) CoverImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// HasInlineImages reports whether any image is embedded as a data URL.
func (p Product) HasInlineImages() bool {
	for _, img := range p.Images {
		if strings.HasPrefix(img, "data:") {
			return true
		}
	}
	return false
}
