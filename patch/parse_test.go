package patch

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/junovhs/applydiff/aerr"
)

func TestParseClassicBasic(t *testing.T) {
	in := `>>> file: src/main.go | fuzz=0.90
--- from
old line
--- to
new line
<<<
`
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	b := blocks[0]
	if b.File != "src/main.go" || b.Mode != Classic || b.From != "old line" || b.To != "new line" {
		t.Errorf("got %+v", b)
	}
	if b.Fuzz != 0.90 {
		t.Errorf("fuzz = %v, want 0.90", b.Fuzz)
	}
}

func TestParseClassicDefaultFuzz(t *testing.T) {
	in := ">>> file: a.txt\n--- from\nx\n--- to\ny\n<<<\n"
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].Fuzz != DefaultFuzz {
		t.Errorf("fuzz = %v, want default %v", blocks[0].Fuzz, DefaultFuzz)
	}
}

func TestParseClassicEmptyFrom(t *testing.T) {
	in := ">>> file: a.txt\n--- from\n--- to\nappended\n<<<\n"
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].From != "" {
		t.Errorf("From = %q, want empty", blocks[0].From)
	}
}

func TestParseReplaceModeOmitsFromSection(t *testing.T) {
	in := ">>> file: a.txt | mode=replace\n--- to\nwhole new contents\n<<<\n"
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].Mode != Replace {
		t.Errorf("Mode = %v, want Replace", blocks[0].Mode)
	}
	if blocks[0].To != "whole new contents" {
		t.Errorf("To = %q", blocks[0].To)
	}
}

func TestParseRegexMode(t *testing.T) {
	in := ">>> file: a.txt | mode=regex fuzz=0.5\n--- from\nhello\n--- to\ngoodbye\n<<<\n"
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].Mode != Regex {
		t.Errorf("Mode = %v, want Regex", blocks[0].Mode)
	}
}

func TestParseMultipleBlocksAndNoise(t *testing.T) {
	in := "some chatty preamble\n" +
		">>> file: a.txt\n--- from\na\n--- to\nb\n<<<\n" +
		"more chat in between\n" +
		">>> file: c.txt\n--- from\nc\n--- to\nd\n<<<\n"
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
}

func TestParseNoBlocksFound(t *testing.T) {
	_, err := Parse("just some text with no envelopes\n")
	e, ok := err.(*aerr.Error)
	if !ok || e.Code != aerr.CodeNoBlocksFound {
		t.Fatalf("got %v, want NoBlocksFound", err)
	}
}

func TestParseMissingClosingMarker(t *testing.T) {
	in := ">>> file: a.txt\n--- from\nx\n--- to\ny\n"
	_, err := Parse(in)
	if err == nil {
		t.Fatal("expected error for missing '<<<'")
	}
}

func TestParseBadHeader(t *testing.T) {
	_, err := Parse(">>> nonsense\n--- from\nx\n--- to\ny\n<<<\n")
	if err == nil {
		t.Fatal("expected error for malformed header")
	}
}

func TestParseArmoredBasic(t *testing.T) {
	from := base64.StdEncoding.EncodeToString([]byte("old text"))
	to := base64.StdEncoding.EncodeToString([]byte("new text"))
	in := strings.Join([]string{
		beginMarker,
		"Path: src/lib.rs",
		"Fuzz: 0.75",
		"Encoding: base64",
		"From:",
		from,
		"To:",
		to,
		endMarker,
		"",
	}, "\n")

	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	b := blocks[0]
	if b.File != "src/lib.rs" || b.From != "old text" || b.To != "new text" || b.Fuzz != 0.75 {
		t.Errorf("got %+v", b)
	}
}

func TestParseArmoredDefaultEncoding(t *testing.T) {
	from := base64.StdEncoding.EncodeToString([]byte("x"))
	to := base64.StdEncoding.EncodeToString([]byte("y"))
	in := strings.Join([]string{
		beginMarker,
		"Path: a.txt",
		"From:",
		from,
		"To:",
		to,
		endMarker,
		"",
	}, "\n")
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].Fuzz != DefaultFuzz {
		t.Errorf("fuzz = %v, want default", blocks[0].Fuzz)
	}
}

func TestParseArmoredMissingPath(t *testing.T) {
	in := strings.Join([]string{
		beginMarker,
		"From:",
		"YQ==",
		"To:",
		"YQ==",
		endMarker,
		"",
	}, "\n")
	_, err := Parse(in)
	if err == nil {
		t.Fatal("expected error for missing Path: header")
	}
}

func TestParseArmoredUnsupportedEncoding(t *testing.T) {
	in := strings.Join([]string{
		beginMarker,
		"Path: a.txt",
		"Encoding: quoted-printable",
		"From:",
		"YQ==",
		"To:",
		"YQ==",
		endMarker,
		"",
	}, "\n")
	_, err := Parse(in)
	if err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestParseArmoredWhitespaceWrappedBase64(t *testing.T) {
	from := base64.StdEncoding.EncodeToString([]byte("a fairly long piece of text to wrap"))
	wrapped := from[:10] + "\n  " + from[10:]
	to := base64.StdEncoding.EncodeToString([]byte("y"))
	in := strings.Join([]string{
		beginMarker,
		"Path: a.txt",
		"From:",
		wrapped,
		"To:",
		to,
		endMarker,
		"",
	}, "\n")
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].From != "a fairly long piece of text to wrap" {
		t.Errorf("From = %q", blocks[0].From)
	}
}

func TestParseBoundsExceededBlockCount(t *testing.T) {
	var b strings.Builder
	one := ">>> file: a.txt\n--- from\nx\n--- to\ny\n<<<\n"
	for i := 0; i < MaxBlocks+5; i++ {
		b.WriteString(one)
	}
	_, err := Parse(b.String())
	e, ok := err.(*aerr.Error)
	if !ok || e.Code != aerr.CodeBoundsExceeded {
		t.Fatalf("got %v, want BoundsExceeded", err)
	}
}

func TestParseBoundsExceededInputSize(t *testing.T) {
	lim := Limits{MaxBlocks: MaxBlocks, MaxInputBytes: 10, MaxDecodedSize: 1024}
	_, err := ParseWithLimits(strings.Repeat("a", 100), lim)
	e, ok := err.(*aerr.Error)
	if !ok || e.Code != aerr.CodeBoundsExceeded {
		t.Fatalf("got %v, want BoundsExceeded", err)
	}
}

func TestParseFuzzClamped(t *testing.T) {
	in := ">>> file: a.txt | fuzz=5.0\n--- from\nx\n--- to\ny\n<<<\n"
	blocks, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].Fuzz != MaxFuzz {
		t.Errorf("fuzz = %v, want clamped to %v", blocks[0].Fuzz, MaxFuzz)
	}
}
