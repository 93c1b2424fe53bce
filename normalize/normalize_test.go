package normalize

import "testing"

func TestLineRanges(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []LineRange
	}{
		{"empty", "", nil},
		{"no_newline", "abc", []LineRange{{0, 3}}},
		{"single_line", "abc\n", []LineRange{{0, 4}}},
		{"two_lines", "ab\ncd\n", []LineRange{{0, 3}, {3, 6}}},
		{"trailing_unterminated", "ab\ncd", []LineRange{{0, 3}, {3, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineRanges(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("LineRanges(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("LineRanges(%q)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewlinesIdempotent(t *testing.T) {
	in := "a\r\nb\nc\r\n"
	once := Newlines(in)
	twice := Newlines(once)
	if once != twice {
		t.Errorf("Newlines not idempotent: %q -> %q", once, twice)
	}
	if once != "a\nb\nc\n" {
		t.Errorf("Newlines(%q) = %q", in, once)
	}
}

func TestHorizontalWhitespace(t *testing.T) {
	in := "  a   b\t\tc   \nd\n"
	want := "a b c\nd\n"
	got := HorizontalWhitespace(in)
	if got != want {
		t.Errorf("HorizontalWhitespace(%q) = %q, want %q", in, got, want)
	}
	if HorizontalWhitespace(got) != got {
		t.Errorf("HorizontalWhitespace not idempotent on %q", got)
	}
}

func TestRelativeIndent(t *testing.T) {
	in := "    if (a) {\n      do();\n    }\n"
	want := "if (a) {\n  do();\n}\n"
	got := RelativeIndent(in)
	if got != want {
		t.Errorf("RelativeIndent(%q) = %q, want %q", in, got, want)
	}
	if RelativeIndent(got) != got {
		t.Errorf("RelativeIndent not idempotent on %q", got)
	}
}

func TestRelativeIndentNoCommonIndent(t *testing.T) {
	in := "a\nb\n"
	if got := RelativeIndent(in); got != in {
		t.Errorf("RelativeIndent(%q) = %q, want unchanged", in, got)
	}
}

func TestRelativeIndentBlankLinesKeepShortenedWhitespace(t *testing.T) {
	in := "    a\n        \n    b\n"
	got := RelativeIndent(in)
	want := "a\n    \nb\n"
	if got != want {
		t.Errorf("RelativeIndent(%q) = %q, want %q", in, got, want)
	}
}
