package utils

import "testing"

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Q1   2024\n\tResults  ", "Q1 2024 Results"},
		{"single", "single"},
		{"", ""},
		{"\n\t ", ""},
	}

	for _, tt := range tests {
		if got := CollapseWhitespace(tt.input); got != tt.expected {
			t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
