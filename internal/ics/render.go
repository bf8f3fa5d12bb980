package ics

import (
	"fmt"

	ical "github.com/arran4/golang-ical"

	"notioncal/internal/model"
)

const (
	calscaleGregorian = "GREGORIAN"
	transpOpaque      = "OPAQUE"

	stampDateLayout = "20060102"
	stampTimeLayout = "20060102T150405"
)

// Header is the fixed calendar-level metadata of a feed.
type Header struct {
	ProductID string
	Name      string
	// Timezone is the IANA name declared as X-WR-TIMEZONE. All floating
	// date-times in the feed are meant to be read in this zone.
	Timezone string
}

// Document is one complete rendered feed.
type Document struct {
	Body   string
	Events int
}

// Render serializes events, in order, into a single VCALENDAR with CRLF
// line endings on every platform.
//
// All-day values are written as DATE values (DTSTART;VALUE=DATE:20220111);
// timed values as floating DATE-TIME without "Z" or TZID.
func Render(h Header, events []model.CalendarEvent) Document {
	cal := ical.NewCalendar()
	cal.SetProductId(h.ProductID)
	cal.SetCalscale(calscaleGregorian)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(h.Name)
	cal.SetXWRTimezone(h.Timezone)

	for _, ev := range events {
		addEvent(cal, ev)
	}

	return Document{
		Body:   cal.Serialize(ical.WithNewLineWindows),
		Events: len(events),
	}
}

func addEvent(cal *ical.Calendar, ev model.CalendarEvent) {
	e := cal.AddEvent(ev.UID)

	setDate(e, ical.ComponentPropertyDtStart, ev.Start)
	setDate(e, ical.ComponentPropertyDtEnd, ev.End)

	e.SetDtStampTime(ev.Stamp)
	e.SetCreatedTime(ev.Stamp)
	e.SetModifiedAt(ev.Stamp)

	e.SetProperty(ical.ComponentPropertyDescription, "")
	e.SetProperty(ical.ComponentPropertyLocation, "")
	e.SetProperty(ical.ComponentPropertySequence, "0")
	e.SetStatus(ical.ObjectStatusConfirmed)
	e.SetSummary(ev.Title)
	e.SetProperty(ical.ComponentPropertyTransp, transpOpaque)
}

func setDate(e *ical.VEvent, prop ical.ComponentProperty, d model.Date) {
	value, params := FormatDate(d)
	e.SetProperty(prop, value, params...)
}

// FormatDate returns the iCalendar value and parameters for d.
func FormatDate(d model.Date) (string, []ical.PropertyParameter) {
	switch v := d.(type) {
	case model.CalendarDate:
		return v.Time().Format(stampDateLayout), []ical.PropertyParameter{
			ical.WithValue(string(ical.ValueDataTypeDate)),
		}
	case model.LocalDateTime:
		return v.Time().Format(stampTimeLayout), nil
	default:
		panic(fmt.Sprintf("ics: unknown date type %T", d))
	}
}

// FormatStamp renders d the way it appears after the property name, e.g.
// ";VALUE=DATE:20220111" or ":20221212T000000".
func FormatStamp(d model.Date) string {
	switch v := d.(type) {
	case model.CalendarDate:
		return ";VALUE=DATE:" + v.Time().Format(stampDateLayout)
	case model.LocalDateTime:
		return ":" + v.Time().Format(stampTimeLayout)
	default:
		panic(fmt.Sprintf("ics: unknown date type %T", d))
	}
}
