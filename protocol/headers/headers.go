// Package headers implements HeadersTable: an ordered, case-insensitively
// indexed multimap of HTTP header fields.
package headers

import (
	"io"
	"sort"
	"strings"
)

type entry struct {
	name  string
	value string
}

// Table is an ordered sequence of header fields with a case-insensitive
// index for O(1)-amortized lookup. Every mutation keeps the invariant that
// the index references exactly the entries present in the sequence: after
// any Append/Delete/Sort, sum(len(index[k])) == len(seq).
//
// Go's GC and immutable strings make the teacher's "owned vs. borrowed
// storage" distinction moot, so Table only ever copies strings it is
// handed; there is no borrowed mode.
type Table struct {
	seq   []entry
	index map[string][]int
}

// New returns an empty headers table.
func New() *Table {
	return &Table{index: make(map[string][]int)}
}

func lowerKey(name string) string {
	return strings.ToLower(name)
}

// Append adds a name/value pair, preserving insertion order. The name's
// case as given is retained for output; lookups are case-insensitive.
func (t *Table) Append(name, value string) {
	k := lowerKey(name)
	t.seq = append(t.seq, entry{name: name, value: value})
	t.index[k] = append(t.index[k], len(t.seq)-1)
}

// Delete removes every entry for name and reports whether any were
// present.
func (t *Table) Delete(name string) bool {
	k := lowerKey(name)
	if _, ok := t.index[k]; !ok {
		return false
	}
	out := t.seq[:0]
	for _, e := range t.seq {
		if lowerKey(e.name) != k {
			out = append(out, e)
		}
	}
	t.seq = out
	t.rebuildIndex()
	return true
}

// Contains reports whether name has at least one entry.
func (t *Table) Contains(name string) bool {
	_, ok := t.index[lowerKey(name)]
	return ok
}

// First returns the first value for name, if any.
func (t *Table) First(name string) (string, bool) {
	idx, ok := t.index[lowerKey(name)]
	if !ok || len(idx) == 0 {
		return "", false
	}
	return t.seq[idx[0]].value, true
}

// All returns every value for name, in insertion order.
func (t *Table) All(name string) ([]string, bool) {
	idx, ok := t.index[lowerKey(name)]
	if !ok {
		return nil, false
	}
	vals := make([]string, len(idx))
	for i, pos := range idx {
		vals[i] = t.seq[pos].value
	}
	return vals, true
}

// Len returns the total number of entries.
func (t *Table) Len() int { return len(t.seq) }

// Entry is one (name, value) pair as read back via Entries.
type Entry struct {
	Name  string
	Value string
}

// Entries returns every entry in insertion order. The returned slice is a
// copy; mutating it does not affect the table.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.seq))
	for i, e := range t.seq {
		out[i] = Entry{Name: e.name, Value: e.value}
	}
	return out
}

// Sort orders entries stably by lowercased name and rebuilds the index.
func (t *Table) Sort() {
	sort.SliceStable(t.seq, func(i, j int) bool {
		return lowerKey(t.seq[i].name) < lowerKey(t.seq[j].name)
	})
	t.rebuildIndex()
}

func (t *Table) rebuildIndex() {
	t.index = make(map[string][]int, len(t.seq))
	for i, e := range t.seq {
		k := lowerKey(e.name)
		t.index[k] = append(t.index[k], i)
	}
}

// Format writes every entry as "name: value\r\n" in insertion order. No
// trailing blank-line CRLF is emitted; that terminator belongs to the
// message lifecycle, not the table.
func (t *Table) Format(w io.Writer) error {
	for _, e := range t.seq {
		if _, err := io.WriteString(w, e.name); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ": "); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.value); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatCommaSeparated writes every value for name joined by ", " as a
// single "name: v1, v2\r\n" field, for headers the RFC allows as
// comma-joined lists (e.g. Accept-Encoding, TE). It is a no-op if name has
// no entries.
func (t *Table) FormatCommaSeparated(w io.Writer, name string) error {
	vals, ok := t.All(name)
	if !ok || len(vals) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, name); err != nil {
		return err
	}
	if _, err := io.WriteString(w, ": "); err != nil {
		return err
	}
	if _, err := io.WriteString(w, strings.Join(vals, ", ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
