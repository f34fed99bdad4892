package schema

import (
	"fmt"
	"strings"
)

// Draft is an image staged for a product submission that has not been
// saved yet. Drafts survive restarts so uploaded images are not lost, and
// are cleared once the product is submitted.
type Draft struct {
	ID        string `json:"id"`
	Image     string `json:"image"` // data URL
	Source    string `json:"source,omitempty"`
	CreatedAt Millis `json:"createdAt"`
}

// EntityID implements Entity.
func (d Draft) EntityID() string { return d.ID }

// CreatedMillis implements Entity.
func (d Draft) CreatedMillis() int64 { return int64(d.CreatedAt) }

// SetID assigns the draft id.
func (d *Draft) SetID(id string) { d.ID = id }

// Validate checks if the Draft has valid field values.
func (d Draft) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !strings.HasPrefix(d.Image, "data:") {
		return fmt.Errorf("image must be a data URL")
	}
	return nil
}
