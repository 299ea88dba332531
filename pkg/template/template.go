package template

import (
	"fmt"
	"strings"
)

// Template is a compiled set of attribute definitions used to generate
// records.  Compilation parses each line's value expression once into typed
// segments; expansion then evaluates the segments per record without any
// further string scanning.  A Template is immutable and safe for concurrent
// expansion as long as each caller supplies its own GenerationContext.
type Template struct {
	lines []compiledLine
}

type compiledLine struct {
	name     string
	raw      string
	guards   []guard
	segments []segment
}

// LineError describes a problem with a single template line.  Column is
// 1-based into the original line and 0 when the problem is not tied to a
// specific character.
type LineError struct {
	Line    int
	Column  int
	Message string
}

func (e *LineError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("template line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("template line %d: %s", e.Line, e.Message)
}

// CompileText splits text into lines, drops blank lines, and compiles the
// remainder.
func CompileText(text string) (*Template, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return Compile(lines)
}

// Compile parses an ordered list of "name: value-expression" lines into a
// Template.  Every line must contain a colon separating a non-empty
// attribute name from a non-empty expression, and the colon must be
// followed by exactly one space.  The "::" form used elsewhere for
// base64-encoded literals is not supported.  All parse problems are
// reported here so that a bad template never fails mid-run.
func Compile(lines []string) (*Template, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("template is empty")
	}
	t := &Template{lines: make([]compiledLine, 0, len(lines))}
	for i, line := range lines {
		lineNum := i + 1
		colon := strings.IndexByte(line, ':')
		switch {
		case colon < 0:
			return nil, &LineError{Line: lineNum, Message: fmt.Sprintf("no colon separates the attribute name from the value in %q", line)}
		case colon == 0:
			return nil, &LineError{Line: lineNum, Column: 1, Message: fmt.Sprintf("no attribute name in %q", line)}
		case colon == len(line)-1:
			return nil, &LineError{Line: lineNum, Column: colon + 1, Message: fmt.Sprintf("no attribute value in %q", line)}
		}
		name := line[:colon]
		switch next := line[colon+1]; next {
		case ' ':
			// value starts after the space
		case ':':
			return nil, &LineError{Line: lineNum, Column: colon + 2, Message: fmt.Sprintf("attribute %s uses the base64-encoded form, which is not supported", name)}
		default:
			return nil, &LineError{Line: lineNum, Column: colon + 2, Message: fmt.Sprintf("illegal character %q after the colon in %q", next, line)}
		}
		rest := line[colon+2:]
		trimmed := strings.TrimLeft(rest, " \t")
		valueCol := colon + 2 + len(rest) - len(trimmed) // 0-based index of the value in line
		raw := strings.TrimRight(trimmed, " \t")
		if raw == "" {
			return nil, &LineError{Line: lineNum, Column: colon + 2, Message: fmt.Sprintf("no attribute value in %q", line)}
		}
		guards, segments, err := tokenize(lineNum, valueCol, raw)
		if err != nil {
			return nil, err
		}
		t.lines = append(t.lines, compiledLine{
			name:     name,
			raw:      raw,
			guards:   guards,
			segments: segments,
		})
	}
	return t, nil
}

// AttributeNames returns the attribute name of every line, in order.
func (t *Template) AttributeNames() []string {
	names := make([]string, len(t.lines))
	for i, l := range t.lines {
		names[i] = l.name
	}
	return names
}
