package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	out := Table([]string{"ID", "Name"}, [][]string{{"p1", "Sourdough"}, {"p2", "Rye"}})
	for _, want := range []string{"ID", "Name", "p1", "Sourdough", "Rye"} {
		if !strings.Contains(out, want) {
			t.Errorf("Table() output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"croissant", 5, "croi…"},
		{"éclair", 3, "éc…"},
		{"x", 0, "x"},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRender_KeepsText(t *testing.T) {
	for _, fn := range []func(string) string{RenderPass, RenderWarn, RenderFail, RenderAccent, RenderMuted, RenderHeader} {
		if !strings.Contains(fn("hello"), "hello") {
			t.Error("render dropped its text")
		}
	}
}
