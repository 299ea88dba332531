package template

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/atlassian/loadrig"
)

// GenerationContext carries the per-record inputs to expansion.
// RecordNumber is the absolute record number; SequenceOffset is the
// zero-based position of this record within the job's configured range.
// Rand must not be shared between concurrently expanding goroutines.
type GenerationContext struct {
	RecordNumber   int64
	SequenceOffset int64
	Rand           *rand.Rand
}

// Expand produces one concrete record from the template.  Lines are
// evaluated in template order: inclusion guards first (a failed guard
// suppresses the line), then a single left-to-right pass over the line's
// segments.  Backreferences see only attributes assigned by earlier lines
// of the same record.
func (t *Template) Expand(gc *GenerationContext) (*loadrig.Record, error) {
	rec := loadrig.NewRecord(len(t.lines))
	for _, line := range t.lines {
		value, include, err := line.expand(gc, rec)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", line.name, err)
		}
		if include {
			rec.Add(line.name, value)
		}
	}
	return rec, nil
}

func (l *compiledLine) expand(gc *GenerationContext, rec *loadrig.Record) (string, bool, error) {
	for _, g := range l.guards {
		if !g.admit(gc, rec) {
			return "", false, nil
		}
	}
	var b strings.Builder
	for _, seg := range l.segments {
		if err := seg.eval(&b, gc, rec); err != nil {
			return "", false, err
		}
	}
	return b.String(), true, nil
}

// admit reports whether the guard allows the line for this record.
func (g *guard) admit(gc *GenerationContext, rec *loadrig.Record) bool {
	switch g.kind {
	case guardPresence:
		// draw is uniform in [1, 100]
		return gc.Rand.Intn(100)+1 <= g.percent
	case guardIfPresent:
		if g.hasValue {
			return rec.HasValue(g.attr, g.value)
		}
		return rec.Has(g.attr)
	case guardIfAbsent:
		if g.hasValue {
			return !rec.HasValue(g.attr, g.value)
		}
		return !rec.Has(g.attr)
	}
	return false
}

func (s *segment) eval(b *strings.Builder, gc *GenerationContext, rec *loadrig.Record) error {
	switch s.kind {
	case segLiteral:
		b.WriteString(s.text)
	case segRecordNumber:
		b.WriteString(strconv.FormatInt(gc.RecordNumber, 10))
	case segRandomChars:
		length := randomBetween(gc.Rand, s.min, s.max)
		b.WriteString(randomString(gc.Rand, s.text, length))
		if s.pad {
			b.WriteString(base64Pad(length))
		}
	case segNumericRange:
		value := strconv.Itoa(randomBetween(gc.Rand, s.min, s.max))
		for len(value) < s.width {
			value = "0" + value
		}
		b.WriteString(value)
	case segTelephone:
		b.WriteString(randomTelephone(gc.Rand))
	case segMonth:
		month := monthNames[gc.Rand.Intn(len(monthNames))]
		if s.width > 0 && len(month) > s.width {
			month = month[:s.width]
		}
		b.WriteString(month)
	case segGUID:
		// drawn from the context's random source so expansion stays
		// reproducible under a fixed seed
		id, err := uuid.NewRandomFromReader(gc.Rand)
		if err != nil {
			return fmt.Errorf("generating GUID: %w", err)
		}
		b.WriteString(id.String())
	case segSequential:
		b.WriteString(strconv.FormatInt(s.start+gc.SequenceOffset, 10))
	case segBase64Literal:
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(s.text)))
	case segBackref:
		value, _ := rec.First(s.text)
		if s.width > 0 && len(value) > s.width {
			value = value[:s.width]
		}
		b.WriteString(value)
	}
	return nil
}
