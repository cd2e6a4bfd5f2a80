// Package index keeps the confirmed ranges of one resource ordered by start
// time. Stored ranges never overlap, so the ordering by start is also an
// ordering by end, which is what makes the binary search in QueryOverlaps
// valid.
package index

import (
	"errors"
	"fmt"
	"sort"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/model"
)

var ErrDuplicateEntry = errors.New("booking already present in index")

type Entry struct {
	BookingID string          `json:"booking_id"`
	Range     model.TimeRange `json:"range"`
}

// Index is not safe for concurrent use. The owning resource state guards it.
type Index struct {
	resourceID string
	entries    []Entry
	byID       map[string]model.TimeRange
}

func New(resourceID string) *Index {
	return &Index{
		resourceID: resourceID,
		byID:       make(map[string]model.TimeRange),
	}
}

func (ix *Index) ResourceID() string {
	return ix.resourceID
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

func (ix *Index) Has(bookingID string) bool {
	_, ok := ix.byID[bookingID]
	return ok
}

// Insert adds a range for a booking. It fails with an *OverlapError when the
// range intersects a stored one.
func (ix *Index) Insert(bookingID string, r model.TimeRange) error {
	if !r.Valid() {
		return reservationerrors.ErrInvalidRange
	}
	if _, ok := ix.byID[bookingID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, bookingID)
	}
	if conflicts := ix.QueryOverlaps(r); len(conflicts) > 0 {
		return &reservationerrors.OverlapError{
			ResourceID: ix.resourceID,
			Requested:  r,
			Conflicts:  ranges(conflicts),
		}
	}

	pos := sort.Search(len(ix.entries), func(i int) bool {
		return !ix.entries[i].Range.Start.Before(r.Start)
	})
	ix.entries = append(ix.entries, Entry{})
	copy(ix.entries[pos+1:], ix.entries[pos:])
	ix.entries[pos] = Entry{BookingID: bookingID, Range: r}
	ix.byID[bookingID] = r
	return nil
}

func (ix *Index) Remove(bookingID string) error {
	r, ok := ix.byID[bookingID]
	if !ok {
		return fmt.Errorf("%w: %s not in index", reservationerrors.ErrNotFound, bookingID)
	}
	pos := sort.Search(len(ix.entries), func(i int) bool {
		return !ix.entries[i].Range.Start.Before(r.Start)
	})
	for ; pos < len(ix.entries); pos++ {
		if ix.entries[pos].BookingID == bookingID {
			break
		}
	}
	if pos == len(ix.entries) {
		return fmt.Errorf("%w: %s missing from ordered entries", reservationerrors.ErrIntegrity, bookingID)
	}
	ix.entries = append(ix.entries[:pos], ix.entries[pos+1:]...)
	delete(ix.byID, bookingID)
	return nil
}

// QueryOverlaps returns the stored entries overlapping r, ordered by start.
func (ix *Index) QueryOverlaps(r model.TimeRange) []Entry {
	return ix.QueryOverlapsExcluding(r, "")
}

// QueryOverlapsExcluding is QueryOverlaps ignoring the entry of excludeID.
// An empty excludeID excludes nothing.
func (ix *Index) QueryOverlapsExcluding(r model.TimeRange, excludeID string) []Entry {
	first := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Range.End.After(r.Start)
	})
	var out []Entry
	for i := first; i < len(ix.entries) && ix.entries[i].Range.Start.Before(r.End); i++ {
		if excludeID != "" && ix.entries[i].BookingID == excludeID {
			continue
		}
		out = append(out, ix.entries[i])
	}
	return out
}

// Occupied returns the stored ranges clipped to within.
func (ix *Index) Occupied(within model.TimeRange) []model.TimeRange {
	var out []model.TimeRange
	for _, e := range ix.QueryOverlaps(within) {
		if clipped, ok := e.Range.Intersect(within); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// FreeSlots returns the gaps between stored ranges inside within, ordered.
// Zero-length gaps are left out.
func (ix *Index) FreeSlots(within model.TimeRange) []model.TimeRange {
	var out []model.TimeRange
	cursor := within.Start
	for _, occ := range ix.Occupied(within) {
		if cursor.Before(occ.Start) {
			out = append(out, model.TimeRange{Start: cursor, End: occ.Start})
		}
		if occ.End.After(cursor) {
			cursor = occ.End
		}
	}
	if cursor.Before(within.End) {
		out = append(out, model.TimeRange{Start: cursor, End: within.End})
	}
	return out
}

func (ix *Index) Entries() []Entry {
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

func (ix *Index) Clone() *Index {
	c := &Index{
		resourceID: ix.resourceID,
		entries:    make([]Entry, len(ix.entries)),
		byID:       make(map[string]model.TimeRange, len(ix.byID)),
	}
	copy(c.entries, ix.entries)
	for id, r := range ix.byID {
		c.byID[id] = r
	}
	return c
}

// Validate scans the whole index and reports the first broken ordering,
// overlap or lookup mismatch.
func (ix *Index) Validate() error {
	if len(ix.entries) != len(ix.byID) {
		return fmt.Errorf("%w: resource %s has %d entries but %d ids",
			reservationerrors.ErrIntegrity, ix.resourceID, len(ix.entries), len(ix.byID))
	}
	for i, e := range ix.entries {
		if !e.Range.Valid() {
			return fmt.Errorf("%w: resource %s entry %s has invalid range %s",
				reservationerrors.ErrIntegrity, ix.resourceID, e.BookingID, e.Range)
		}
		if r, ok := ix.byID[e.BookingID]; !ok || !r.Equal(e.Range) {
			return fmt.Errorf("%w: resource %s entry %s does not match its lookup",
				reservationerrors.ErrIntegrity, ix.resourceID, e.BookingID)
		}
		if i == 0 {
			continue
		}
		prev := ix.entries[i-1]
		if prev.Range.End.After(e.Range.Start) {
			return fmt.Errorf("%w: resource %s entries %s %s and %s %s overlap or are out of order",
				reservationerrors.ErrIntegrity, ix.resourceID, prev.BookingID, prev.Range, e.BookingID, e.Range)
		}
	}
	return nil
}

func ranges(entries []Entry) []model.TimeRange {
	out := make([]model.TimeRange, len(entries))
	for i, e := range entries {
		out[i] = e.Range
	}
	return out
}
