package model

import "time"

// DateMention is the raw date payload of one date mention inside a page
// title. Tokens that were absent, null, or not strings are nil.
type DateMention struct {
	Start *string
	End   *string
}

// CalendarEvent is a single rendered VEVENT.
type CalendarEvent struct {
	Title string

	// Start and End are each a CalendarDate (all-day, End exclusive) or a
	// LocalDateTime wall clock in the display timezone. End is never
	// before Start.
	Start Date
	End   Date

	// UID is globally unique, e.g. "3f2b...@notioncal.local".
	UID string

	// Stamp is the render time, used for DTSTAMP, CREATED and LAST-MODIFIED.
	Stamp time.Time
}
