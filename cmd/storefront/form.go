package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// productForm asks for the fields of p that were not given as flags.
func productForm(p *schema.Product, categories []schema.Category) error {
	price := string(p.Price)
	tags := strings.Join(p.Tags, ", ")

	options := []huh.Option[string]{huh.NewOption("(none)", "")}
	for _, c := range categories {
		options = append(options, huh.NewOption(c.Name, c.ID))
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Name").
			Value(&p.Name).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("name is required")
				}
				if len(s) > 500 {
					return fmt.Errorf("name must be 500 characters or less")
				}
				return nil
			}),
		huh.NewInput().
			Title("Price").
			Description(`Leave empty for "contact me for pricing"`).
			Value(&price),
		huh.NewText().
			Title("Description").
			Value(&p.Description),
		huh.NewInput().
			Title("Tags").
			Description("Comma separated").
			Value(&tags),
	}
	if len(categories) > 0 {
		fields = append(fields, huh.NewSelect[string]().
			Title("Category").
			Options(options...).
			Value(&p.CategoryID))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}

	p.Price = schema.Price(strings.TrimSpace(price))
	p.Tags = splitTags(tags)
	return nil
}

// splitTags splits a comma separated list, dropping blanks.
func splitTags(s string) schema.Tags {
	var out schema.Tags
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
