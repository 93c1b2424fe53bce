// Package fileresolve implements the file-request mini-language from
// spec.md §6: a small YAML document naming a file (or glob), an optional
// line range or symbol, and a free-form reason, resolved into a Markdown
// excerpt. This is the one place the module reaches for gopkg.in/yaml.v3,
// the YAML library the wider example pack uses for small config-ish
// documents.
package fileresolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/junovhs/applydiff/aerr"
)

// Request is the parsed form of the YAML mini-language.
type Request struct {
	Path   string `yaml:"path"`
	Reason string `yaml:"reason"`
	Range  string `yaml:"range"`
}

// SymbolContext is how many lines of context surround a resolved symbol.
const SymbolContext = 5

// Resolve parses a YAML request document and renders the requested excerpt
// of a file under root as Markdown.
func Resolve(root, doc string) (string, error) {
	// "range: symbol: NAME" is not valid YAML as written (a plain scalar may
	// not contain ": "), so such a range value is quoted before parsing.
	docLines := strings.Split(doc, "\n")
	for i, l := range docLines {
		if k, v, ok := strings.Cut(l, ":"); ok && strings.TrimSpace(k) == "range" && strings.Contains(v, ": ") {
			docLines[i] = k + ": " + strconv.Quote(strings.TrimSpace(v))
		}
	}
	var req Request
	if err := yaml.Unmarshal([]byte(strings.Join(docLines, "\n")), &req); err != nil {
		return "", aerr.Newf(aerr.Validation, aerr.CodeValidationFail, "malformed file request: %v", err).WithContext(doc)
	}
	if req.Path == "" {
		return "", aerr.New(aerr.Validation, aerr.CodeValidationFail, "file request missing required 'path'").WithContext(doc)
	}

	path, err := resolvePath(root, req.Path)
	if err != nil {
		return "", err
	}

	lines, err := readLines(path, req.Path)
	if err != nil {
		return "", err
	}

	excerpt, header, err := selectExcerpt(lines, req.Range, req.Path)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n", req.Path)
	if req.Reason != "" {
		fmt.Fprintf(&b, "_%s_\n\n", req.Reason)
	}
	fmt.Fprintf(&b, "%s\n\n", header)
	b.WriteString("```\n")
	b.WriteString(excerpt)
	b.WriteString("```\n")
	return b.String(), nil
}

func resolvePath(root, pathOrGlob string) (string, error) {
	full := filepath.Join(root, filepath.FromSlash(pathOrGlob))
	if !strings.ContainsAny(pathOrGlob, "*?[") {
		return full, nil
	}

	matches, err := filepath.Glob(full)
	if err != nil || len(matches) == 0 {
		return "", aerr.Newf(aerr.Validation, aerr.CodeValidationFail, "no files matched %q", pathOrGlob).WithContext(pathOrGlob)
	}
	return matches[0], nil
}

func readLines(path, reqPath string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aerr.Newf(aerr.File, aerr.CodeFileReadFailed, "file not found: %v", err).WithFile(reqPath)
	}
	return strings.Split(string(data), "\n"), nil
}

func selectExcerpt(lines []string, rangeSpec, reqPath string) (excerpt, header string, err error) {
	total := len(lines)

	switch {
	case rangeSpec == "":
		return strings.Join(lines, "\n"), fmt.Sprintf("lines 1-%d of %d", total, total), nil

	case strings.HasPrefix(rangeSpec, "lines "):
		spec := strings.TrimPrefix(rangeSpec, "lines ")
		n, m, err := parseLineRange(spec)
		if err != nil {
			return "", "", aerr.Newf(aerr.Validation, aerr.CodeValidationFail, "invalid line range %q: %v", spec, err).WithContext(reqPath)
		}
		if n < 1 || n > m || m > total {
			return "", "", aerr.Newf(aerr.Validation, aerr.CodeValidationFail,
				"line range %d-%d is out of bounds for a %d-line file", n, m, total).WithContext(reqPath)
		}
		return strings.Join(lines[n-1:m], "\n"), fmt.Sprintf("lines %d-%d of %d", n, m, total), nil

	case strings.HasPrefix(rangeSpec, "symbol:"):
		name := strings.TrimSpace(strings.TrimPrefix(rangeSpec, "symbol:"))
		for i, l := range lines {
			if strings.Contains(l, name) {
				lo := max(0, i-SymbolContext)
				hi := min(total, i+SymbolContext+1)
				return strings.Join(lines[lo:hi], "\n"),
					fmt.Sprintf("symbol %q at line %d (±%d lines context)", name, i+1, SymbolContext), nil
			}
		}
		return "", "", aerr.Newf(aerr.Validation, aerr.CodeValidationFail, "symbol %q not found", name).WithContext(reqPath)

	default:
		return "", "", aerr.Newf(aerr.Validation, aerr.CodeValidationFail, "unrecognized range spec %q", rangeSpec).WithContext(reqPath)
	}
}

func parseLineRange(spec string) (n, m int, err error) {
	lo, hi, found := strings.Cut(spec, "-")
	if !found {
		v, err := strconv.Atoi(strings.TrimSpace(spec))
		if err != nil {
			return 0, 0, err
		}
		return v, v, nil
	}
	n, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, err
	}
	m, err = strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, err
	}
	return n, m, nil
}
