package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "static path",
			input:    "/api/events",
			expected: "/api/events",
		},
		{
			name:     "ulid segment",
			input:    "/api/events/01HYX3KQW7ERTV9XNBM2P8QJZF",
			expected: "/api/events/{param}",
		},
		{
			name:     "ulid in the middle",
			input:    "/api/events/01HYX3KQW7ERTV9XNBM2P8QJZF/register",
			expected: "/api/events/{param}/register",
		},
		{
			name:     "route placeholder",
			input:    "/api/events/users/{id}/registrations",
			expected: "/api/events/users/{param}/registrations",
		},
		{
			name:     "named segment kept",
			input:    "/api/events/search",
			expected: "/api/events/search",
		},
		{
			name:     "empty path",
			input:    "",
			expected: "",
		},
		{
			name:     "non-path input",
			input:    "api/events/{id}",
			expected: "api/events/{id}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePath(tt.input)
			if got != tt.expected {
				t.Fatalf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
