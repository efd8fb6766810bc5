package idgen

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(id, DefaultPrefix) {
		t.Errorf("id %q missing prefix %q", id, DefaultPrefix)
	}
	if len(id) != len(DefaultPrefix)+Length {
		t.Errorf("id %q length = %d, want %d", id, len(id), len(DefaultPrefix)+Length)
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
