package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "script tag", input: `Launch <script>alert('xss')</script>party`, expected: `Launch party`},
		{name: "inline handler", input: `<div onclick="alert(1)">Community Hall</div>`, expected: `Community Hall`},
		{name: "formatting removed", input: `<b>Go</b> <i>Meetup</i>`, expected: `Go Meetup`},
		{name: "ampersand survives", input: `Food & Drinks`, expected: `Food & Drinks`},
		{name: "less-than survives", input: `Tom & Jerry <3`, expected: `Tom & Jerry <3`},
		{name: "entities decoded", input: `Fish &amp; Chips`, expected: `Fish & Chips`},
		{name: "markup only", input: `<script>x</script><b></b>`, expected: ``},
		{name: "trimmed", input: "  Room 4  ", expected: "Room 4"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Text(tt.input)
			require.Equal(t, tt.expected, got)
			require.LessOrEqual(t, len(got), len(tt.input))
		})
	}
}

func TestOptionalText(t *testing.T) {
	require.Nil(t, OptionalText(nil))

	blank := "<script>x</script>"
	require.Nil(t, OptionalText(&blank))

	desc := "<em>fun</em> & games"
	got := OptionalText(&desc)
	require.NotNil(t, got)
	require.Equal(t, "fun & games", *got)
}
