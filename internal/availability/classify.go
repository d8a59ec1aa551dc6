// Package availability derives bookable slots from an expert's raw Google
// Calendar events. Classification and slicing are pure functions so the same
// event set always produces the same slots, regardless of which calendar was
// scanned first.
package availability

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/runcall/platform/internal/calendar"
)

// Class is the availability classification of a single event.
type Class int

const (
	// ClassIgnored events neither open nor block time (explicitly
	// transparent, cancelled, or all-day).
	ClassIgnored Class = iota
	// ClassAvailability events announce open booking time via the keyword.
	ClassAvailability
	// ClassBooking events are RunCall's own confirmed bookings. Always busy,
	// never reinterpreted as an availability announcement.
	ClassBooking
	// ClassBusy events are ordinary opaque appointments.
	ClassBusy
)

func (c Class) String() string {
	switch c {
	case ClassAvailability:
		return "availability"
	case ClassBooking:
		return "booking"
	case ClassBusy:
		return "busy"
	default:
		return "ignored"
	}
}

// Matches "runcall", "run call", "run-call" in any casing, anywhere in the
// event text.
var availabilityPattern = regexp.MustCompile(`(?i)run[\s-]?call`)

// MatchesKeyword reports whether free text announces availability.
func MatchesKeyword(text string) bool {
	return availabilityPattern.MatchString(text)
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the half-open overlap test: shared boundaries do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// ClassifyEvent classifies one event. The rules are ordered: the booking
// marker wins over the keyword, the keyword wins over transparency.
// Depends only on the event's own fields.
func ClassifyEvent(ev calendar.Event) Class {
	if ev.Cancelled() {
		return ClassIgnored
	}
	if strings.EqualFold(ev.PrivateMarker(), calendar.PrivateMarkerBooking) {
		return ClassBooking
	}
	if MatchesKeyword(ev.Summary + " " + ev.Description) {
		return ClassAvailability
	}
	if ev.Transparency != "transparent" {
		return ClassBusy
	}
	return ClassIgnored
}

// Partition splits events into availability and busy intervals. All-day
// (date-only) events are dropped: their intended duration is ambiguous. That
// also drops all-day vacation blocks as a busy signal, which is a known gap.
// Output is sorted by start then end, so any input order yields identical
// results.
func Partition(events []calendar.Event) (avail, busy []Interval) {
	for _, ev := range events {
		start, ok := ev.Start.Resolve()
		if !ok {
			continue
		}
		end, ok := ev.End.Resolve()
		if !ok || !end.After(start) {
			continue
		}

		iv := Interval{Start: start, End: end}
		switch ClassifyEvent(ev) {
		case ClassAvailability:
			avail = append(avail, iv)
		case ClassBooking, ClassBusy:
			busy = append(busy, iv)
		}
	}

	sortIntervals(avail)
	sortIntervals(busy)
	return avail, busy
}

func sortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].Start.Before(ivs[j].Start)
		}
		return ivs[i].End.Before(ivs[j].End)
	})
}
