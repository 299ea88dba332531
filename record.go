package loadrig

// Pair is a single attribute name/value assignment within a Record.
type Pair struct {
	Name  string
	Value string
}

// Record is an ordered multimap of attribute names to values, built up one
// assignment at a time as a template is expanded.  Later template lines may
// look up values assigned by earlier lines; assignment order is preserved
// for serialization.  A Record is not safe for concurrent use.
type Record struct {
	pairs []Pair
}

// NewRecord returns an empty record with capacity for n assignments.
func NewRecord(n int) *Record {
	return &Record{pairs: make([]Pair, 0, n)}
}

// Add appends a value for the named attribute.  Names need not be unique;
// each call adds an independent assignment.
func (r *Record) Add(name, value string) {
	r.pairs = append(r.pairs, Pair{Name: name, Value: value})
}

// First returns the first value assigned to the named attribute.
func (r *Record) First(name string) (string, bool) {
	for _, p := range r.pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Has reports whether any value has been assigned to the named attribute.
func (r *Record) Has(name string) bool {
	_, ok := r.First(name)
	return ok
}

// HasValue reports whether the named attribute has been assigned the exact
// given value.
func (r *Record) HasValue(name, value string) bool {
	for _, p := range r.pairs {
		if p.Name == name && p.Value == value {
			return true
		}
	}
	return false
}

// Pairs returns the assignments in order.  The returned slice is owned by
// the record and must not be modified.
func (r *Record) Pairs() []Pair {
	return r.pairs
}

// Len returns the number of assignments in the record.
func (r *Record) Len() int {
	return len(r.pairs)
}
