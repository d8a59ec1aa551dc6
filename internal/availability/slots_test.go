package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestSliceOpenHourYieldsTwoSlots(t *testing.T) {
	avail := []Interval{{Start: at(9, 0), End: at(10, 0)}}
	slots := Slice(avail, nil, SlotDuration, at(7, 0), Options{})

	require.Len(t, slots, 2)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(9, 30), slots[0].End)
	assert.Equal(t, at(9, 30), slots[1].Start)
	assert.Equal(t, at(10, 0), slots[1].End)
}

func TestSliceBusyStraddlingBothCandidates(t *testing.T) {
	avail := []Interval{{Start: at(9, 0), End: at(10, 0)}}
	busy := []Interval{{Start: at(9, 15), End: at(9, 45)}}
	slots := Slice(avail, busy, SlotDuration, at(7, 0), Options{})
	assert.Empty(t, slots, "both candidates overlap the busy interval")
}

func TestSliceAdjacentBusyDoesNotBlock(t *testing.T) {
	// Half-open semantics: a meeting ending exactly at 09:00 and another
	// starting exactly at 10:00 leave the full hour open.
	avail := []Interval{{Start: at(9, 0), End: at(10, 0)}}
	busy := []Interval{
		{Start: at(8, 0), End: at(9, 0)},
		{Start: at(10, 0), End: at(11, 0)},
	}
	slots := Slice(avail, busy, SlotDuration, at(7, 0), Options{})
	require.Len(t, slots, 2)
}

func TestSliceDuplicateAnnouncements(t *testing.T) {
	avail := []Interval{
		{Start: at(14, 0), End: at(14, 30)},
		{Start: at(14, 0), End: at(14, 30)},
	}
	slots := Slice(avail, nil, SlotDuration, at(7, 0), Options{})
	require.Len(t, slots, 1)
	assert.Equal(t, at(14, 0), slots[0].Start)
	assert.Equal(t, at(14, 30), slots[0].End)
}

func TestSliceRejectsPastAndLead(t *testing.T) {
	avail := []Interval{{Start: at(9, 0), End: at(11, 0)}}

	// now = 09:40: 09:00 and 09:30 are gone, 10:00 onward remain.
	slots := Slice(avail, nil, SlotDuration, at(9, 40), Options{})
	require.Len(t, slots, 2)
	assert.Equal(t, at(10, 0), slots[0].Start)

	// With a 25-minute lead the 10:00 slot is also too soon.
	slots = Slice(avail, nil, SlotDuration, at(9, 40), Options{Lead: 25 * time.Minute})
	require.Len(t, slots, 1)
	assert.Equal(t, at(10, 30), slots[0].Start)
}

func TestSliceOddStartWithoutRounding(t *testing.T) {
	avail := []Interval{{Start: at(9, 5), End: at(10, 5)}}
	slots := Slice(avail, nil, SlotDuration, at(7, 0), Options{})
	require.Len(t, slots, 2)
	assert.Equal(t, at(9, 5), slots[0].Start)
	assert.Equal(t, at(9, 35), slots[1].Start)
}

func TestSliceOddStartWithRounding(t *testing.T) {
	avail := []Interval{{Start: at(9, 5), End: at(10, 5)}}
	slots := Slice(avail, nil, SlotDuration, at(7, 0), Options{RoundUpToBoundary: true})
	require.Len(t, slots, 1)
	assert.Equal(t, at(9, 30), slots[0].Start)
	assert.Equal(t, at(10, 0), slots[0].End)
}

func TestSlicePartialTrailingWindowDropped(t *testing.T) {
	// 45 minutes of availability fits exactly one 30-minute slot.
	avail := []Interval{{Start: at(9, 0), End: at(9, 45)}}
	slots := Slice(avail, nil, SlotDuration, at(7, 0), Options{})
	require.Len(t, slots, 1)
	assert.Equal(t, at(9, 0), slots[0].Start)
}

func TestSliceDeterministicAndSorted(t *testing.T) {
	avail := []Interval{
		{Start: at(15, 0), End: at(16, 0)},
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(9, 30), End: at(10, 30)}, // overlapping announcement
	}
	busy := []Interval{{Start: at(15, 30), End: at(15, 45)}}

	first := Slice(avail, busy, SlotDuration, at(7, 0), Options{})
	second := Slice(avail, busy, SlotDuration, at(7, 0), Options{})
	assert.Equal(t, first, second, "slicing must be idempotent")

	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].Start.Before(first[i].Start) ||
			(first[i-1].Start.Equal(first[i].Start) && first[i-1].End.Before(first[i].End)),
			"slots must be sorted ascending")
	}

	for _, s := range first {
		assert.Equal(t, SlotDuration, s.End.Sub(s.Start), "every slot has the fixed width")
		for _, b := range busy {
			assert.False(t, Interval{Start: s.Start, End: s.End}.Overlaps(b),
				"slot %v overlaps busy %v", s, b)
		}
	}

	// The 09:30 duplicate from the overlapping announcement is deduplicated.
	seen := map[string]bool{}
	for _, s := range first {
		key := s.Start.String() + s.End.String()
		assert.False(t, seen[key], "duplicate slot %v", s)
		seen[key] = true
	}
}
