package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type guardKind int

const (
	guardPresence guardKind = iota
	guardIfPresent
	guardIfAbsent
)

// guard is a compiled inclusion guard.  A failed guard suppresses the whole
// line for the current record.
type guard struct {
	kind     guardKind
	percent  int    // guardPresence
	attr     string // guardIfPresent, guardIfAbsent
	value    string
	hasValue bool
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segRecordNumber
	segRandomChars
	segNumericRange
	segTelephone
	segMonth
	segGUID
	segSequential
	segBase64Literal
	segBackref
)

// segment is one typed piece of a compiled value expression.  Evaluation is
// a single left-to-right pass over the segments of a line.
type segment struct {
	kind  segmentKind
	text  string // literal text, random character set, base64 input, or backreference attribute name
	min   int    // minimum length, or numeric range lower bound
	max   int    // maximum length, or numeric range upper bound
	width int    // zero-pad width (numeric range), truncation length (month, backreference)
	start int64  // sequential counter start
	pad   bool   // apply base64 '=' padding to the generated value
}

var guardPrefixes = []struct {
	prefix string
	kind   guardKind
}{
	{"<presence:", guardPresence},
	{"<ifpresent:", guardIfPresent},
	{"<ifabsent:", guardIfAbsent},
}

// parseGuard parses an inclusion guard tag at the start of rest.  It
// returns the guard and the tag's length, or matched false when rest does
// not begin with a guard prefix.  col is the 0-based position of rest in
// the original line.
func parseGuard(lineNum, col int, rest string) (guard, int, bool, error) {
	for _, gp := range guardPrefixes {
		if !strings.HasPrefix(rest, gp.prefix) {
			continue
		}
		rel := strings.IndexByte(rest, '>')
		if rel < 0 {
			return guard{}, 0, false, &LineError{Line: lineNum, Column: col + 1, Message: fmt.Sprintf("unterminated %s...> tag", gp.prefix)}
		}
		content := rest[len(gp.prefix):rel]
		g := guard{kind: gp.kind}
		switch gp.kind {
		case guardPresence:
			pct, err := strconv.Atoi(content)
			if err != nil || pct < 0 || pct > 100 {
				return guard{}, 0, false, &LineError{Line: lineNum, Column: col + 1, Message: fmt.Sprintf("presence percentage %q must be an integer between 0 and 100", content)}
			}
			g.percent = pct
		default:
			if colon := strings.IndexByte(content, ':'); colon >= 0 {
				g.attr = content[:colon]
				g.value = content[colon+1:]
				g.hasValue = true
			} else {
				g.attr = content
			}
			if g.attr == "" {
				return guard{}, 0, false, &LineError{Line: lineNum, Column: col + 1, Message: fmt.Sprintf("missing attribute name in %s...> tag", gp.prefix)}
			}
		}
		return g, rel + 1, true, nil
	}
	return guard{}, 0, false, nil
}

// tokenize splits the expression text into inclusion guards and typed
// segments in one left-to-right pass, so error columns always refer to the
// original line.  Guards contribute nothing to the generated value and are
// ordered for evaluation as presence, ifpresent, ifabsent.  Tokens that do
// not parse as a known generator pass through as literal text; known
// tokens with malformed arguments are compile errors.  base is the
// 0-based position of v in the original line.
func tokenize(lineNum, base int, v string) ([]guard, []segment, error) {
	var guards []guard
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{kind: segLiteral, text: lit.String()})
			lit.Reset()
		}
	}
	i := 0
	for i < len(v) {
		c := v[i]
		switch {
		case c == '\\' && i+1 < len(v) && v[i+1] == '{':
			// escaped brace: strip the backslash, keep the brace literal
			lit.WriteByte('{')
			i += 2
		case c == '{':
			rel := strings.IndexByte(v[i:], '}')
			if rel < 0 {
				// unmatched brace stays literal
				lit.WriteByte(c)
				i++
				continue
			}
			seg, err := parseBackref(lineNum, base+i, v[i+1:i+rel])
			if err != nil {
				return nil, nil, err
			}
			flush()
			segs = append(segs, seg)
			i += rel + 1
		case c == '<':
			g, length, matched, err := parseGuard(lineNum, base+i, v[i:])
			if err != nil {
				return nil, nil, err
			}
			if matched {
				guards = append(guards, g)
				i += length
				continue
			}
			rel := strings.IndexByte(v[i:], '>')
			if rel < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			seg, known, err := parseToken(lineNum, base+i, v[i+1:i+rel])
			if err != nil {
				return nil, nil, err
			}
			if !known {
				lit.WriteString(v[i : i+rel+1])
				i += rel + 1
				continue
			}
			flush()
			segs = append(segs, seg)
			i += rel + 1
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	sort.SliceStable(guards, func(a, b int) bool { return guards[a].kind < guards[b].kind })
	return guards, segs, nil
}

func parseBackref(lineNum, col int, content string) (segment, error) {
	seg := segment{kind: segBackref}
	if colon := strings.IndexByte(content, ':'); colon >= 0 {
		n, err := strconv.Atoi(content[colon+1:])
		if err != nil || n < 1 {
			return segment{}, &LineError{Line: lineNum, Column: col + 1, Message: fmt.Sprintf("backreference length %q is not a positive integer", content[colon+1:])}
		}
		seg.text = content[:colon]
		seg.width = n
	} else {
		seg.text = content
	}
	if seg.text == "" {
		return segment{}, &LineError{Line: lineNum, Column: col + 1, Message: "empty attribute name in backreference"}
	}
	return seg, nil
}

// parseToken interprets the contents of a <...> tag.  The second return is
// false when the tag is not a recognized generator and should be emitted
// verbatim.
func parseToken(lineNum, col int, content string) (segment, bool, error) {
	switch {
	case strings.EqualFold(content, "entrynumber"):
		return segment{kind: segRecordNumber}, true, nil
	case content == "guid":
		return segment{kind: segGUID}, true, nil
	case content == "sequential":
		return segment{kind: segSequential}, true, nil
	case strings.HasPrefix(content, "sequential:"):
		start, err := strconv.ParseInt(content[len("sequential:"):], 10, 64)
		if err != nil {
			return segment{}, false, &LineError{Line: lineNum, Column: col + 1, Message: fmt.Sprintf("sequential start %q is not an integer", content[len("sequential:"):])}
		}
		return segment{kind: segSequential, start: start}, true, nil
	case strings.HasPrefix(content, "base64:"):
		return segment{kind: segBase64Literal, text: content[len("base64:"):]}, true, nil
	case strings.HasPrefix(content, "random:"):
		return parseRandomToken(lineNum, col, content[len("random:"):])
	}
	return segment{}, false, nil
}

func parseRandomToken(lineNum, col int, content string) (segment, bool, error) {
	parts := strings.Split(content, ":")
	badToken := func(format string, args ...interface{}) (segment, bool, error) {
		return segment{}, false, &LineError{Line: lineNum, Column: col + 1, Message: fmt.Sprintf(format, args...)}
	}
	ints := func(ss []string) ([]int, error) {
		out := make([]int, len(ss))
		for i, s := range ss {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", s)
			}
			out[i] = n
		}
		return out, nil
	}
	switch parts[0] {
	case "telephone":
		if len(parts) != 1 {
			return badToken("<random:telephone> takes no arguments")
		}
		return segment{kind: segTelephone}, true, nil

	case "month":
		seg := segment{kind: segMonth}
		switch len(parts) {
		case 1:
		case 2:
			n, err := strconv.Atoi(parts[1])
			if err != nil || n < 1 {
				return badToken("month length %q is not a positive integer", parts[1])
			}
			seg.width = n
		default:
			return badToken("too many arguments in <random:month> tag")
		}
		return seg, true, nil

	case "chars":
		if len(parts) < 3 || len(parts) > 4 {
			return badToken("<random:chars> requires a character set and a length or length range")
		}
		if parts[1] == "" {
			return badToken("empty character set in <random:chars> tag")
		}
		bounds, err := ints(parts[2:])
		if err != nil {
			return badToken("bad length in <random:chars> tag: %v", err)
		}
		seg := segment{kind: segRandomChars, text: parts[1], min: bounds[0], max: bounds[0]}
		if len(bounds) == 2 {
			seg.max = bounds[1]
		}
		if seg.min < 0 || seg.max < seg.min {
			return badToken("invalid length range %d:%d in <random:chars> tag", seg.min, seg.max)
		}
		return seg, true, nil

	case "numeric":
		bounds, err := ints(parts[1:])
		if err != nil {
			return badToken("bad argument in <random:numeric> tag: %v", err)
		}
		switch len(bounds) {
		case 1:
			// fixed number of random digits
			if bounds[0] < 0 {
				return badToken("negative length in <random:numeric> tag")
			}
			return segment{kind: segRandomChars, text: numericChars, min: bounds[0], max: bounds[0]}, true, nil
		case 2, 3:
			seg := segment{kind: segNumericRange, min: bounds[0], max: bounds[1]}
			if len(bounds) == 3 {
				seg.width = bounds[2]
			}
			if seg.max < seg.min {
				return badToken("invalid range %d:%d in <random:numeric> tag", seg.min, seg.max)
			}
			return seg, true, nil
		default:
			return badToken("too many arguments in <random:numeric> tag")
		}

	case "alpha", "alphanumeric", "hex", "base64":
		bounds, err := ints(parts[1:])
		if err != nil || len(bounds) < 1 || len(bounds) > 2 {
			return badToken("<random:%s> requires a length or length range", parts[0])
		}
		seg := segment{kind: segRandomChars, min: bounds[0], max: bounds[0]}
		if len(bounds) == 2 {
			seg.max = bounds[1]
		}
		if seg.min < 0 || seg.max < seg.min {
			return badToken("invalid length range %d:%d in <random:%s> tag", seg.min, seg.max, parts[0])
		}
		switch parts[0] {
		case "alpha":
			seg.text = alphaChars
		case "alphanumeric":
			seg.text = alphanumericChars
		case "hex":
			seg.text = hexChars
		case "base64":
			seg.text = base64Chars
			seg.pad = true
		}
		return seg, true, nil
	}
	return segment{}, false, nil
}
