package availability

import (
	"sort"
	"time"
)

// SlotDuration is the fixed width of every bookable slot.
const SlotDuration = 30 * time.Minute

// Slot is a candidate booking window of exactly SlotDuration.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Options control the slicing policy.
type Options struct {
	// RoundUpToBoundary aligns the first candidate of each availability
	// interval to the next slot-duration boundary (e.g. 09:10 -> 09:30).
	// Disabled by default: slots start at the interval's exact start, so an
	// expert announcing 09:05-10:05 is offered 09:05 and 09:35.
	RoundUpToBoundary bool
	// Lead rejects slots starting sooner than now+Lead, keeping clients from
	// booking a call that starts in seconds.
	Lead time.Duration
}

// Slice cuts availability intervals into fixed-width slots, drops candidates
// in the past or overlapping any busy interval, then sorts by start time and
// deduplicates exact (start, end) pairs. Pure: identical inputs produce an
// identical, identically-ordered list.
func Slice(avail, busy []Interval, duration time.Duration, now time.Time, opts Options) []Slot {
	if duration <= 0 {
		duration = SlotDuration
	}
	earliest := now.Add(opts.Lead)

	var slots []Slot
	for _, a := range avail {
		cursor := a.Start
		if opts.RoundUpToBoundary {
			cursor = roundUp(cursor, duration)
		}
		for !cursor.Add(duration).After(a.End) {
			candidate := Interval{Start: cursor, End: cursor.Add(duration)}
			cursor = cursor.Add(duration)

			if candidate.Start.Before(earliest) {
				continue
			}
			if overlapsAny(candidate, busy) {
				continue
			}
			slots = append(slots, Slot{Start: candidate.Start, End: candidate.End})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].End.Before(slots[j].End)
	})

	return dedupe(slots)
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// dedupe removes consecutive duplicates from a sorted slot list. Two
// identical availability announcements must not double their slots.
func dedupe(slots []Slot) []Slot {
	if len(slots) < 2 {
		return slots
	}
	out := slots[:1]
	for _, s := range slots[1:] {
		last := out[len(out)-1]
		if s.Start.Equal(last.Start) && s.End.Equal(last.End) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func roundUp(t time.Time, d time.Duration) time.Time {
	rounded := t.Truncate(d)
	if rounded.Before(t) {
		rounded = rounded.Add(d)
	}
	return rounded
}
