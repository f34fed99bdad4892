package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts a date (2006-01-02), an RFC 3339 timestamp, a Go
// duration meaning "that long ago" (72h), or natural language
// ("last friday", "3 days ago").
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d), nil
	}

	r, err := dateParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return r.Time, nil
}

// createdSince keeps the products created at or after t, in input order.
func createdSince(products []schema.Product, t time.Time) []schema.Product {
	cutoff := t.UnixMilli()
	var out []schema.Product
	for _, p := range products {
		if int64(p.CreatedAt) >= cutoff {
			out = append(out, p)
		}
	}
	return out
}
