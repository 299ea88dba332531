package target

import (
	"bytes"

	"github.com/atlassian/loadrig"
)

// EncodeRecord writes rec to buf as "name: value" lines, one per pair in
// record order, followed by a blank line separating records on the wire.
func EncodeRecord(buf *bytes.Buffer, rec *loadrig.Record) {
	for _, pair := range rec.Pairs() {
		buf.WriteString(pair.Name)
		buf.WriteString(": ")
		buf.WriteString(pair.Value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
}
