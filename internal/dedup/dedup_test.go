package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

func rec(phone, source string) extract.Record {
	return extract.Record{Phone: phone, Name: "n", Address: "a", Source: source}
}

func TestSetMergeFirstWins(t *testing.T) {
	t.Parallel()
	s := NewSet()
	added := s.Merge([]extract.Record{rec("(212) 555-0100", "a"), rec("(212) 555-0101", "a")})
	require.Len(t, added, 2)

	added = s.Merge([]extract.Record{rec("(212) 555-0101", "b"), rec("(212) 555-0102", "b")})
	require.Equal(t, []extract.Record{rec("(212) 555-0102", "b")}, added)

	got := s.Records()
	require.Len(t, got, 3)
	require.Equal(t, "a", got[1].Source, "first occurrence wins")
	require.Equal(t, 3, s.Len())
}

func TestSetMergeWithinBatch(t *testing.T) {
	t.Parallel()
	s := NewSet()
	added := s.Merge([]extract.Record{rec("(212) 555-0100", "a"), rec("(212) 555-0100", "b")})
	require.Len(t, added, 1)
	require.Equal(t, "a", added[0].Source)
}

func TestSetMergeSkipsPlaceholders(t *testing.T) {
	t.Parallel()
	s := NewSet()
	added := s.Merge([]extract.Record{rec("", "a"), rec(extract.NotAvailable, "a"), rec("  ", "a")})
	require.Empty(t, added)
	require.Zero(t, s.Len())
}

func TestSetRecordsIsCopy(t *testing.T) {
	t.Parallel()
	s := NewSet()
	s.Merge([]extract.Record{rec("(212) 555-0100", "a")})
	out := s.Records()
	out[0].Source = "mutated"
	require.Equal(t, "a", s.Records()[0].Source)
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()
	base := []extract.Record{rec("(212) 555-0100", "a"), rec("+1 (212) 555-0101", "b")}
	merged, n := Merge(nil, base)
	require.Equal(t, 2, n)

	again, n := Merge(merged, base)
	require.Zero(t, n)
	require.Equal(t, merged, again)
}

func TestMergeSizeBound(t *testing.T) {
	t.Parallel()
	existing := []extract.Record{rec("(212) 555-0100", "a")}
	incoming := []extract.Record{rec("(212) 555-0100", "b"), rec("(212) 555-0199", "b")}
	merged, n := Merge(existing, incoming)
	require.Equal(t, 1, n)
	require.LessOrEqual(t, len(merged), len(existing)+len(incoming))
	require.Equal(t, existing[0], merged[0])
}
