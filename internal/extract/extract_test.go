package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestTextPlainFormats(t *testing.T) {
	t.Parallel()

	d := NewDocument()

	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{"txt extension", "notes.txt", "hello\nworld"},
		{"md extension", "README.md", "# Title\n\nbody"},
		{"uppercase extension", "NOTES.TXT", "hello"},
		{"no extension", "notes", "plain content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := d.Text(tt.filename, []byte(tt.data))
			if err != nil {
				t.Fatalf("Text(%q) error: %v", tt.filename, err)
			}
			if got != tt.data {
				t.Errorf("Text(%q) = %q, want %q", tt.filename, got, tt.data)
			}
		})
	}
}

func TestTextUnsupportedFormat(t *testing.T) {
	t.Parallel()

	d := NewDocument()

	for _, filename := range []string{"report.docx", "image.png", "archive.zip"} {
		if _, err := d.Text(filename, []byte("data")); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Text(%q) error = %v, want ErrUnsupportedFormat", filename, err)
		}
	}
}

func TestTextInvalidUTF8(t *testing.T) {
	t.Parallel()

	d := NewDocument()

	if _, err := d.Text("binary.txt", []byte{0xff, 0xfe, 0x00, 0x80}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Text on invalid UTF-8 = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTextTooLarge(t *testing.T) {
	t.Parallel()

	d := NewDocument()

	data := []byte(strings.Repeat("a", MaxDocumentSize+1))
	if _, err := d.Text("big.txt", data); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Text on oversized document = %v, want ErrTooLarge", err)
	}
}

func TestTextBrokenPDF(t *testing.T) {
	t.Parallel()

	d := NewDocument()

	if _, err := d.Text("broken.pdf", []byte("not a pdf at all")); err == nil {
		t.Error("Text on broken PDF succeeded, want error")
	}
}
