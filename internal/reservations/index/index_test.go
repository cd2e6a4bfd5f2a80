package index

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func minutes(start, end int) model.TimeRange {
	return model.MustTimeRange(origin.Add(time.Duration(start)*time.Minute), origin.Add(time.Duration(end)*time.Minute))
}

func hours(start, end int) model.TimeRange {
	return minutes(start*60, end*60)
}

func TestInsert_RejectsOverlapAndDuplicate(t *testing.T) {
	ix := New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 10)))
	require.NoError(t, ix.Insert("b", hours(10, 11)), "adjacent ranges must both fit")

	err := ix.Insert("c", minutes(9*60+30, 10*60+30))
	require.ErrorIs(t, err, reservationerrors.ErrOverlap)
	oe, ok := reservationerrors.AsOverlapError(err)
	require.True(t, ok)
	assert.Equal(t, []model.TimeRange{hours(9, 10), hours(10, 11)}, oe.Conflicts)

	assert.ErrorIs(t, ix.Insert("a", hours(12, 13)), ErrDuplicateEntry)
	assert.ErrorIs(t, ix.Insert("d", model.TimeRange{Start: origin, End: origin}), reservationerrors.ErrInvalidRange)
	assert.Equal(t, 2, ix.Len())
	assert.NoError(t, ix.Validate())
}

func TestInsert_KeepsOrder(t *testing.T) {
	ix := New("room-a")
	for i, h := range []int{14, 9, 11, 16, 7} {
		require.NoError(t, ix.Insert(fmt.Sprintf("b%d", i), hours(h, h+1)))
	}

	entries := ix.Entries()
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].Range.Start.Before(entries[i].Range.Start))
	}
	assert.NoError(t, ix.Validate())
}

func TestRemove(t *testing.T) {
	ix := New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 10)))
	require.NoError(t, ix.Insert("b", hours(11, 12)))

	require.NoError(t, ix.Remove("a"))
	assert.False(t, ix.Has("a"))
	assert.Empty(t, ix.QueryOverlaps(hours(9, 10)))
	assert.ErrorIs(t, ix.Remove("a"), reservationerrors.ErrNotFound)

	require.NoError(t, ix.Insert("c", hours(9, 10)), "freed range must be reusable")
	assert.NoError(t, ix.Validate())
}

func TestQueryOverlapsExcluding(t *testing.T) {
	ix := New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 11)))
	require.NoError(t, ix.Insert("b", hours(11, 12)))

	got := ix.QueryOverlapsExcluding(minutes(9*60+30, 10*60), "a")
	assert.Empty(t, got, "a booking never conflicts with itself")

	got = ix.QueryOverlapsExcluding(minutes(10*60, 11*60+30), "a")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].BookingID)
}

func TestFreeSlots_Scenario(t *testing.T) {
	ix := New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 10)))
	require.NoError(t, ix.Insert("b", hours(10, 11)))
	require.NoError(t, ix.Insert("c", hours(13, 14)))

	assert.Equal(t, []model.TimeRange{hours(11, 13), hours(14, 17)}, ix.FreeSlots(hours(9, 17)))
	assert.Equal(t, []model.TimeRange{hours(8, 9)}, ix.FreeSlots(hours(8, 10)))
	assert.Empty(t, ix.FreeSlots(hours(9, 11)), "fully booked window has no free slot")
	assert.Equal(t, []model.TimeRange{hours(0, 24)}, New("empty").FreeSlots(hours(0, 24)))
}

func TestClone_IsIndependent(t *testing.T) {
	ix := New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 10)))

	c := ix.Clone()
	require.NoError(t, c.Remove("a"))
	require.NoError(t, c.Insert("b", hours(9, 10)))

	assert.True(t, ix.Has("a"))
	assert.False(t, ix.Has("b"))
	assert.NoError(t, ix.Validate())
	assert.NoError(t, c.Validate())
}

func TestValidate_DetectsCorruption(t *testing.T) {
	ix := New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 11)))
	require.NoError(t, ix.Insert("b", hours(12, 13)))

	ix.entries[1].Range = hours(10, 13)
	ix.byID["b"] = hours(10, 13)
	assert.ErrorIs(t, ix.Validate(), reservationerrors.ErrIntegrity)

	ix = New("room-a")
	require.NoError(t, ix.Insert("a", hours(9, 11)))
	delete(ix.byID, "a")
	assert.ErrorIs(t, ix.Validate(), reservationerrors.ErrIntegrity)
}

// Random inserts and removals keep the index sound, queries agree with a
// linear scan, and free slots plus occupied ranges tile the window.
func TestIndex_RandomizedProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		ix := New("room-a")
		live := map[string]model.TimeRange{}

		for op := 0; op < 200; op++ {
			id := fmt.Sprintf("b%d", rnd.Intn(80))
			if _, ok := live[id]; ok && rnd.Intn(3) == 0 {
				require.NoError(t, ix.Remove(id))
				delete(live, id)
				continue
			}
			start := rnd.Intn(24 * 60)
			r := minutes(start, start+1+rnd.Intn(120))

			err := ix.Insert(id, r)
			_, dup := live[id]
			switch {
			case dup:
				require.ErrorIs(t, err, ErrDuplicateEntry)
			case overlapsAny(live, r):
				require.ErrorIs(t, err, reservationerrors.ErrOverlap)
			default:
				require.NoError(t, err)
				live[id] = r
			}
		}

		require.NoError(t, ix.Validate())
		require.Equal(t, len(live), ix.Len())

		for q := 0; q < 20; q++ {
			start := rnd.Intn(24 * 60)
			window := minutes(start, start+1+rnd.Intn(600))

			assert.Equal(t, linearOverlaps(live, window), ids(ix.QueryOverlaps(window)))
			assertTiles(t, window, ix.Occupied(window), ix.FreeSlots(window))
		}
	}
}

func overlapsAny(live map[string]model.TimeRange, r model.TimeRange) bool {
	for _, existing := range live {
		if existing.Overlaps(r) {
			return true
		}
	}
	return false
}

func linearOverlaps(live map[string]model.TimeRange, r model.TimeRange) []string {
	var out []string
	for id, existing := range live {
		if existing.Overlaps(r) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return live[out[i]].Start.Before(live[out[j]].Start) })
	return out
}

func ids(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.BookingID)
	}
	return out
}

// assertTiles checks that occupied and free ranges are disjoint, ordered,
// non-empty and together cover window exactly.
func assertTiles(t *testing.T, window model.TimeRange, occupied, free []model.TimeRange) {
	t.Helper()

	all := append(append([]model.TimeRange{}, occupied...), free...)
	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })

	cursor := window.Start
	for _, r := range all {
		require.True(t, r.Valid(), "empty range %s", r)
		require.True(t, r.Start.Equal(cursor), "gap or overlap at %s in window %s", cursor, window)
		cursor = r.End
	}
	require.True(t, cursor.Equal(window.End), "window %s not covered, ends at %s", window, cursor)

	for i := 1; i < len(free); i++ {
		require.True(t, free[i-1].End.Before(free[i].Start), "free slots must be ordered and separated")
	}
}
