// Package export renders a point-in-time copy of the catalog as YAML or JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/crumbworks/storefront/internal/catalog/schema"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
)

// Format selects the output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" or "json", ignoring case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml", "":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want yaml or json)", s)
}

// Catalog is the exported document.
type Catalog struct {
	ExportedAt     time.Time              `json:"exportedAt" yaml:"exported_at"`
	Products       []Product              `json:"products" yaml:"products"`
	Categories     []Category             `json:"categories" yaml:"categories"`
	Taxonomy       []taxonomy.Entry       `json:"taxonomy" yaml:"taxonomy"`
	FeaturedVideos []schema.FeaturedVideo `json:"featuredVideos,omitempty" yaml:"featured_videos,omitempty"`
}

// Product is a product as exported. Labels are the resolved filter names;
// Amount is the price with two decimals when the price is numeric.
type Product struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Price       string    `json:"price,omitempty" yaml:"price,omitempty"`
	Amount      string    `json:"amount,omitempty" yaml:"amount,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Images      []string  `json:"images,omitempty" yaml:"images,omitempty"`
	ImageCount  int       `json:"imageCount" yaml:"image_count"`
	CategoryID  string    `json:"categoryId,omitempty" yaml:"category_id,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Labels      []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"created_at"`
}

// Category is a category as exported.
type Category struct {
	ID            string               `json:"id" yaml:"id"`
	Name          string               `json:"name" yaml:"name"`
	SubCategories []schema.SubCategory `json:"subCategories,omitempty" yaml:"sub_categories,omitempty"`
	CreatedAt     time.Time            `json:"createdAt" yaml:"created_at"`
}

// Options controls what Build includes.
type Options struct {
	// OmitImages drops image references, keeping only their count.
	OmitImages bool

	// Reconciler sorts the taxonomy (default: root locale)
	Reconciler *taxonomy.Reconciler

	// Now stamps the export (default: time.Now)
	Now func() time.Time
}

// Build assembles the export document. Products and categories keep the
// order they are given in.
func Build(products []schema.Product, categories []schema.Category, settings []schema.Settings, opts Options) (*Catalog, error) {
	rec := opts.Reconciler
	if rec == nil {
		rec = taxonomy.New(language.Und)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	entries := rec.Reconcile(categories, products)
	resolver := taxonomy.NewResolver(entries)

	out := &Catalog{
		ExportedAt: now().UTC(),
		Products:   make([]Product, 0, len(products)),
		Categories: make([]Category, 0, len(categories)),
		Taxonomy:   entries,
	}
	for _, p := range products {
		ep := Product{
			ID:          p.ID,
			Name:        p.Name,
			Price:       string(p.Price),
			Description: p.Description,
			ImageCount:  len(p.Images),
			CategoryID:  p.CategoryID,
			Tags:        p.Tags,
			Labels:      resolver.Labels(p),
			CreatedAt:   p.CreatedAt.Time(),
		}
		if n, ok := p.Price.Amount(); ok {
			ep.Amount = n.StringFixed(2)
		}
		if !opts.OmitImages {
			ep.Images = p.Images
		}
		out.Products = append(out.Products, ep)
	}
	for _, c := range categories {
		out.Categories = append(out.Categories, Category{
			ID:            c.ID,
			Name:          c.Name,
			SubCategories: c.SubCategories,
			CreatedAt:     c.CreatedAt.Time(),
		})
	}
	for _, s := range settings {
		if s.ID != schema.SettingsFeaturedVideos {
			continue
		}
		videos, err := s.FeaturedVideos()
		if err != nil {
			return nil, err
		}
		out.FeaturedVideos = videos
	}
	return out, nil
}

// Write encodes c to w in the given format.
func Write(w io.Writer, c *Catalog, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown export format %q", format)
}
