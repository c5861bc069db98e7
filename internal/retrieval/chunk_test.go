package retrieval

import (
	"reflect"
	"testing"
)

func TestChunkLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain lines",
			text: "first line\nsecond line",
			want: []string{"first line", "second line"},
		},
		{
			name: "blank lines and whitespace dropped",
			text: "  first  \n\n\t\nsecond\n   ",
			want: []string{"first", "second"},
		},
		{
			name: "windows line endings",
			text: "first\r\nsecond\r\n",
			want: []string{"first", "second"},
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
		{
			name: "whitespace only",
			text: "   \n\t\n  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ChunkLines(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChunkLines(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
