// Package dedup keeps the unique record set of a session, keyed by
// canonical phone number.
package dedup

import (
	"strings"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// Set is an insertion-ordered collection of records with unique phones.
// The first record seen for a phone wins. Set is not safe for concurrent use.
type Set struct {
	seen    map[string]struct{}
	records []extract.Record
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Merge adds the records whose phone is not yet present and returns them in
// input order. Empty phones and the N/A placeholder are ignored.
func (s *Set) Merge(incoming []extract.Record) []extract.Record {
	var added []extract.Record
	for _, r := range incoming {
		key := strings.TrimSpace(r.Phone)
		if key == "" || key == extract.NotAvailable {
			continue
		}
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.records = append(s.records, r)
		added = append(added, r)
	}
	return added
}

// Len returns the number of unique records.
func (s *Set) Len() int { return len(s.records) }

// Records returns a copy of the records in insertion order.
func (s *Set) Records() []extract.Record {
	out := make([]extract.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Merge returns existing extended by the new unique records of incoming and
// the number of records added.
func Merge(existing, incoming []extract.Record) ([]extract.Record, int) {
	s := NewSet()
	s.Merge(existing)
	added := s.Merge(incoming)
	return s.Records(), len(added)
}
