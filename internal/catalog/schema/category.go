package schema

import (
	"fmt"
	"strings"
)

// CategoryIDPrefix marks ids generated for categories. Tags carrying this
// prefix are treated as category references rather than labels.
const CategoryIDPrefix = "cat_"

// Category is an explicit filter category.
type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	SubCategories []SubCategory `json:"subCategories,omitempty"`
	CreatedAt     Millis        `json:"createdAt"`
}

// SubCategory is a named child of a Category.
type SubCategory struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// EntityID implements Entity.
func (c Category) EntityID() string { return c.ID }

// CreatedMillis implements Entity.
func (c Category) CreatedMillis() int64 { return int64(c.CreatedAt) }

// SetID assigns the category id.
func (c *Category) SetID(id string) { c.ID = id }

// Validate checks if the Category has valid field values.
func (c Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	for i, sub := range c.SubCategories {
		if sub.ID == "" {
			return fmt.Errorf("subCategories[%d]: id is required", i)
		}
	}
	return nil
}

// SetDefaults fills in an id and creation time when missing.
func (c *Category) SetDefaults() {
	if c.ID == "" {
		c.ID = NewCategoryID()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = Now()
	}
}

// IsCategoryID reports whether s looks like a generated category id.
func IsCategoryID(s string) bool {
	return strings.HasPrefix(s, CategoryIDPrefix) && len(s) > len(CategoryIDPrefix)
}
