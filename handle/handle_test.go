package handle

import (
	"math"
	"strings"
	"testing"
)

func TestColumnAcceptsEverySynonym(t *testing.T) {
	for _, s := range Synonyms {
		for _, spelling := range []string{s, strings.ToUpper(s), " " + strings.ToUpper(s[:1]) + s[1:] + " "} {
			row := map[string]any{spelling: "alice", "other": "x"}
			got, ok := Column(row)
			if !ok {
				t.Errorf("Column(%q) not found", spelling)
				continue
			}
			if got != spelling {
				t.Errorf("Column(%q) = %q", spelling, got)
			}
		}
	}
}

func TestColumnPriority(t *testing.T) {
	row := map[string]any{"twitter": "b", "Username": "c", "Perfil": "a"}
	got, ok := Column(row)
	if !ok || got != "Perfil" {
		t.Errorf("Column = %q, %v; want Perfil", got, ok)
	}
}

func TestColumnMissing(t *testing.T) {
	tests := []map[string]any{
		nil,
		{},
		{"unrelated_column": "x"},
		{"perfil_twitter": "x"},
	}
	for _, row := range tests {
		if key, ok := Column(row); ok {
			t.Errorf("Column(%v) = %q, want not found", row, key)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"plain", "alice", "alice", true},
		{"case preserved", "Alice", "Alice", true},
		{"whitespace", "  bob \t", "bob", true},
		{"at sign", "@carol", "carol", true},
		{"at sign inside whitespace", "  @dave ", "dave", true},
		{"only one at stripped", "@@eve", "@eve", true},
		{"integer float", float64(12345), "12345", true},
		{"decimal float", 12.5, "12.5", true},
		{"int", 42, "42", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"only at", "@", "", false},
		{"nil", nil, "", false},
		{"bool", true, "", false},
		{"nan", math.NaN(), "", false},
		{"object", map[string]any{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Normalize(%v) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
