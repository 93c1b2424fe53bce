package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/junovhs/applydiff/aerr"
	"github.com/junovhs/applydiff/b64"
)

// MaxBlocks and MaxInputBytes are the implementation's bounds-check limits
// (spec requires "≥1000" and "≥100 MB" respectively; these are the values
// Parse enforces by default). Callers needing different limits construct a
// Limits value and call ParseWithLimits.
const (
	MaxBlocks     = 1000
	MaxInputBytes = 100 * 1024 * 1024
)

// Limits bounds what Parse will accept, guarding against pathological or
// adversarial input before any per-block work happens.
type Limits struct {
	MaxBlocks      int
	MaxInputBytes  int
	MaxDecodedSize int // passed through to the base64 codec for armored blocks
}

// DefaultLimits mirrors the package-level constants.
func DefaultLimits() Limits {
	return Limits{
		MaxBlocks:      MaxBlocks,
		MaxInputBytes:  MaxInputBytes,
		MaxDecodedSize: b64.DefaultMaxDecoded,
	}
}

var headerRe = regexp.MustCompile(`^>>>\s*file:\s*([^|]+?)(?:\s*\|\s*(.*))?\s*$`)

const (
	beginMarker = "-----BEGIN APPLYDIFF AFB-1-----"
	endMarker   = "-----END APPLYDIFF AFB-1-----"
)

// Parse tokenizes input into an ordered list of Blocks using DefaultLimits.
func Parse(input string) ([]Block, error) {
	return ParseWithLimits(input, DefaultLimits())
}

// ParseWithLimits is Parse with caller-supplied bounds.
func ParseWithLimits(input string, lim Limits) ([]Block, error) {
	if len(input) > lim.MaxInputBytes {
		return nil, aerr.Newf(aerr.Validation, aerr.CodeBoundsExceeded,
			"input is %d bytes, which exceeds the limit of %d bytes", len(input), lim.MaxInputBytes).
			WithContext("parse")
	}

	lines := &lineCursor{lines: splitKeepingOrder(input)}
	var out []Block

	for {
		line, ok := lines.peek()
		if !ok {
			break
		}
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case strings.HasPrefix(trimmed, beginMarker):
			blk, err := parseArmored(lines, lim)
			if err != nil {
				return nil, err
			}
			out = append(out, blk)
		case strings.HasPrefix(trimmed, ">>>"):
			blk, err := parseClassic(lines)
			if err != nil {
				return nil, err
			}
			out = append(out, blk)
		default:
			lines.next()
			continue
		}

		if len(out) > lim.MaxBlocks {
			return nil, aerr.Newf(aerr.Validation, aerr.CodeBoundsExceeded,
				"more than %d patch blocks in one input", lim.MaxBlocks).WithContext("parse")
		}
	}

	if len(out) == 0 {
		return nil, aerr.New(aerr.Parse, aerr.CodeNoBlocksFound, "no patch blocks found")
	}
	return out, nil
}

// lineCursor walks input lines without trailing newlines, like Rust's
// str::lines(), while tracking enough state for multi-line section readers.
type lineCursor struct {
	lines []string
	pos   int
}

func (c *lineCursor) peek() (string, bool) {
	if c.pos >= len(c.lines) {
		return "", false
	}
	return c.lines[c.pos], true
}

func (c *lineCursor) next() (string, bool) {
	l, ok := c.peek()
	if ok {
		c.pos++
	}
	return l, ok
}

func splitKeepingOrder(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	split := strings.Split(s, "\n")
	if split[len(split)-1] == "" {
		split = split[:len(split)-1]
	}
	return split
}

func parseClassic(lines *lineCursor) (Block, error) {
	header, ok := lines.next()
	if !ok {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "unexpected end while reading header")
	}

	m := headerRe.FindStringSubmatch(header)
	if m == nil {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed,
			"invalid header; expected '>>> file: <path> [| opt=val ...]'").WithContext(header)
	}
	file := strings.TrimSpace(m[1])
	fuzz := DefaultFuzz
	mode := Classic

	for _, opt := range strings.Fields(m[2]) {
		k, v, found := strings.Cut(opt, "=")
		if !found {
			continue
		}
		switch k {
		case "fuzz":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				fuzz = clampFuzz(f)
			}
		case "mode":
			switch v {
			case "replace":
				mode = Replace
			case "regex":
				mode = Regex
			}
		}
	}

	var from string
	if mode != Replace {
		hdr, ok := lines.next()
		if !ok {
			return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "unexpected end after header")
		}
		if strings.TrimSpace(hdr) != "--- from" {
			return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "expected '--- from'").WithContext(hdr)
		}

		var b strings.Builder
		for {
			l, ok := lines.peek()
			if !ok {
				return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "expected '--- to'").WithContext(file)
			}
			if strings.TrimSpace(l) == "--- to" {
				lines.next()
				break
			}
			b.WriteString(l)
			b.WriteByte('\n')
			lines.next()
		}
		from = strings.TrimSuffix(b.String(), "\n")
	} else {
		hdr, ok := lines.next()
		if !ok {
			return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "unexpected end after header")
		}
		if strings.TrimSpace(hdr) != "--- to" {
			return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "expected '--- to'").WithContext(hdr)
		}
	}

	var to strings.Builder
	found := false
	for {
		l, ok := lines.peek()
		if !ok {
			break
		}
		if strings.TrimSpace(l) == "<<<" {
			lines.next()
			found = true
			break
		}
		to.WriteString(l)
		to.WriteByte('\n')
		lines.next()
	}
	if !found {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "expected '<<<' to close patch block").WithContext(file)
	}

	return Block{
		File: file,
		Mode: mode,
		From: from,
		To:   strings.TrimSuffix(to.String(), "\n"),
		Fuzz: fuzz,
	}, nil
}

func parseArmored(lines *lineCursor, lim Limits) (Block, error) {
	lines.next() // consume BEGIN

	var path string
	fuzz := DefaultFuzz
	encoding := "base64"
	havePath := false

	for {
		l, ok := lines.peek()
		if !ok {
			return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "unexpected end before 'From:'")
		}
		t := strings.TrimSpace(l)
		if t == "From:" {
			break
		}
		if t == endMarker {
			return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "armored block missing 'From:'")
		}
		switch {
		case strings.HasPrefix(t, "Path:"):
			path = strings.TrimSpace(strings.TrimPrefix(t, "Path:"))
			havePath = true
		case strings.HasPrefix(t, "Fuzz:"):
			if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(t, "Fuzz:")), 64); err == nil {
				fuzz = clampFuzz(f)
			}
		case strings.HasPrefix(t, "Encoding:"):
			encoding = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(t, "Encoding:")))
		}
		lines.next()
	}

	if !havePath {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "armored block missing 'Path:' header")
	}

	hdr, _ := lines.next() // the "From:" line itself
	if strings.TrimSpace(hdr) != "From:" {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "expected 'From:'").WithContext(hdr)
	}

	fromBuf, err := readArmoredSection(lines, path, "To:")
	if err != nil {
		return Block{}, err
	}
	toBuf, err := readArmoredSection(lines, path, endMarker)
	if err != nil {
		return Block{}, err
	}

	if encoding != "base64" {
		return Block{}, aerr.Newf(aerr.Parse, aerr.CodeParseFailed, "unsupported Encoding: %s", encoding).WithContext(path)
	}

	fromBytes, err := b64.DecodeChecked(fromBuf, lim.MaxDecodedSize)
	if err != nil {
		return Block{}, wrapArmoredDecodeErr(err, path, "From")
	}
	toBytes, err := b64.DecodeChecked(toBuf, lim.MaxDecodedSize)
	if err != nil {
		return Block{}, wrapArmoredDecodeErr(err, path, "To")
	}

	if !isValidUTF8(fromBytes) {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "armored 'From' is not valid UTF-8 after base64 decode").WithContext(path)
	}
	if !isValidUTF8(toBytes) {
		return Block{}, aerr.New(aerr.Parse, aerr.CodeParseFailed, "armored 'To' is not valid UTF-8 after base64 decode").WithContext(path)
	}

	return Block{
		File: path,
		Mode: Classic,
		From: string(fromBytes),
		To:   string(toBytes),
		Fuzz: fuzz,
	}, nil
}

// readArmoredSection collects lines up to (and consuming) a terminator line,
// failing if the END marker is reached first instead.
func readArmoredSection(lines *lineCursor, file, terminator string) (string, error) {
	var b strings.Builder
	for {
		l, ok := lines.peek()
		if !ok {
			return "", aerr.Newf(aerr.Parse, aerr.CodeParseFailed, "expected %q in armored block", terminator).WithContext(file)
		}
		t := strings.TrimSpace(l)
		if t == terminator {
			lines.next()
			return b.String(), nil
		}
		if t == endMarker && terminator != endMarker {
			return "", aerr.Newf(aerr.Parse, aerr.CodeParseFailed, "expected %q in armored block", terminator).WithContext(file)
		}
		b.WriteString(l)
		b.WriteByte('\n')
		lines.next()
	}
}

func wrapArmoredDecodeErr(err error, file, field string) error {
	switch e := err.(type) {
	case *b64.ParseError:
		return aerr.Newf(aerr.Parse, aerr.CodeParseFailed, "armored %q field: %s", field, e.Error()).WithContext(file)
	case *b64.BoundsError:
		return aerr.Newf(aerr.Validation, aerr.CodeBoundsExceeded, "armored %q field: %s", field, e.Error()).WithContext(file)
	default:
		return fmt.Errorf("armored %q field: %w", field, err)
	}
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
