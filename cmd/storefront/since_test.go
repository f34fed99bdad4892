package main

import (
	"testing"
	"time"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), false},
		{"48h", now.Add(-48 * time.Hour), false},
		{"", time.Time{}, true},
		{"xyzzy", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSince(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSince_NaturalLanguage(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) failed: %v", err)
	}
	if !got.Before(now) || now.Sub(got) > 48*time.Hour {
		t.Errorf("parseSince(yesterday) = %v", got)
	}
}

func TestCreatedSince(t *testing.T) {
	cutoff := time.UnixMilli(2000)
	products := []schema.Product{
		{ID: "old", CreatedAt: 1000},
		{ID: "edge", CreatedAt: 2000},
		{ID: "new", CreatedAt: 3000},
	}
	got := createdSince(products, cutoff)
	if len(got) != 2 || got[0].ID != "edge" || got[1].ID != "new" {
		t.Errorf("createdSince() = %+v", got)
	}
}
