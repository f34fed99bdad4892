package schema

import "github.com/google/uuid"

// NewProductID returns a fresh product id.
func NewProductID() string {
	return uuid.NewString()
}

// NewCategoryID returns a fresh category id carrying CategoryIDPrefix.
func NewCategoryID() string {
	return CategoryIDPrefix + uuid.NewString()
}

// NewSubCategoryID returns a fresh sub-category id.
func NewSubCategoryID() string {
	return "sub_" + uuid.NewString()
}

// NewDraftID returns a fresh draft id.
func NewDraftID() string {
	return "draft_" + uuid.NewString()
}
