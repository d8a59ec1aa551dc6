package calendar

import "time"

// Access roles that let the account owner see event details. Calendars the
// expert can only see free/busy for are useless to the availability scan.
const (
	RoleOwner  = "owner"
	RoleWriter = "writer"
	RoleReader = "reader"
)

// PrivateMarkerKey is the extended-property key RunCall stamps on every
// calendar event it creates.
const PrivateMarkerKey = "runcall_type"

// PrivateMarkerBooking marks an event as a confirmed RunCall booking.
const PrivateMarkerBooking = "booking"

// CalendarRef identifies one calendar in the account's calendar list.
type CalendarRef struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	AccessRole string `json:"accessRole"`
	Primary    bool   `json:"primary"`
}

// EventTime is Google's split representation: timed events carry dateTime,
// all-day events carry date only.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Resolve parses a timed event boundary. The second return is false for
// all-day (date-only) and missing values.
func (t EventTime) Resolve() (time.Time, bool) {
	if t.DateTime == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, t.DateTime)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// ExtendedProperties carries per-event key/value metadata. Only the private
// scope is read or written.
type ExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

// Event is the subset of a Google Calendar event the availability engine and
// booking confirmation need.
type Event struct {
	ID                 string             `json:"id"`
	Status             string             `json:"status"`
	Summary            string             `json:"summary"`
	Description        string             `json:"description"`
	Transparency       string             `json:"transparency"`
	Start              EventTime          `json:"start"`
	End                EventTime          `json:"end"`
	ExtendedProperties ExtendedProperties `json:"extendedProperties"`
}

// Cancelled reports whether the event was deleted on the Google side.
func (e Event) Cancelled() bool {
	return e.Status == "cancelled"
}

// PrivateMarker returns the RunCall marker value, if any.
func (e Event) PrivateMarker() string {
	return e.ExtendedProperties.Private[PrivateMarkerKey]
}

// Attendee is an invitee on an event we create.
type Attendee struct {
	Email string `json:"email"`
}

// ConferenceSolutionKey selects the conferencing product.
type ConferenceSolutionKey struct {
	Type string `json:"type"`
}

// ConferenceCreateRequest asks Google to attach a Meet conference.
type ConferenceCreateRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey ConferenceSolutionKey `json:"conferenceSolutionKey"`
}

// ConferenceData is both the request-side create payload and the
// response-side entry point list.
type ConferenceData struct {
	CreateRequest *ConferenceCreateRequest `json:"createRequest,omitempty"`
	EntryPoints   []ConferenceEntryPoint   `json:"entryPoints,omitempty"`
}

// ConferenceEntryPoint is one way to join the conference.
type ConferenceEntryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

// EventRequest is the insert payload for a booking event.
type EventRequest struct {
	Summary            string             `json:"summary"`
	Description        string             `json:"description"`
	Start              EventTime          `json:"start"`
	End                EventTime          `json:"end"`
	Attendees          []Attendee         `json:"attendees,omitempty"`
	Transparency       string             `json:"transparency,omitempty"`
	ExtendedProperties ExtendedProperties `json:"extendedProperties"`
	ConferenceData     *ConferenceData    `json:"conferenceData,omitempty"`
}

// CreatedEvent is the subset of the insert response we consume.
type CreatedEvent struct {
	ID             string          `json:"id"`
	HangoutLink    string          `json:"hangoutLink"`
	ConferenceData *ConferenceData `json:"conferenceData"`
}

// MeetLink extracts the video entry point URI, falling back to the legacy
// hangoutLink field.
func (e CreatedEvent) MeetLink() string {
	if e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.URI != "" {
				return ep.URI
			}
		}
	}
	return e.HangoutLink
}
