package envutil

import (
	"slices"
	"testing"
)

func TestLookup(t *testing.T) {
	env := []string{"A=1", "AB=2", "EMPTY=", "A=3", "NOEQUALS"}
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"A", "3", true},
		{"AB", "2", true},
		{"EMPTY", "", true},
		{"B", "", false},
		{"NOEQUALS", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Lookup(env, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
	if _, ok := Lookup(nil, "A"); ok {
		t.Error("Lookup(nil) found a value")
	}
}

func TestSet(t *testing.T) {
	env := []string{"A=1", "B=2", "A=3"}
	got := Set(env, "A", "x")
	if want := []string{"B=2", "A=x"}; !slices.Equal(got, want) {
		t.Errorf("Set = %v, want %v", got, want)
	}
	if want := []string{"A=1", "B=2", "A=3"}; !slices.Equal(env, want) {
		t.Errorf("Set modified its input: %v", env)
	}
	if got := Set(nil, "C", ""); !slices.Equal(got, []string{"C="}) {
		t.Errorf("Set(nil) = %v", got)
	}
}
