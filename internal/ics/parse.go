package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"

	"notioncal/internal/model"
)

// Feed is a parsed VCALENDAR as produced by Render.
type Feed struct {
	ProductID string
	Name      string
	Timezone  string
	Events    []ParsedEvent
}

// ParsedEvent is a VEVENT read back from a rendered feed.
type ParsedEvent struct {
	UID      string
	Summary  string
	Status   string
	Seq      int
	Start    model.Date
	End      model.Date
	AllDay   bool
	RawStart string
	RawEnd   string
}

// ParseFeed parses a feed body. DTSTART/DTEND values are classified with
// the same length rule used when normalizing source tokens, so a rendered
// event reads back as the variant it was rendered from.
//
// Unlike a general-purpose ICS reader this is strict: any VEVENT without
// UID, DTSTART or DTEND fails the whole parse.
func ParseFeed(body []byte) (Feed, error) {
	var feed Feed
	if len(body) == 0 {
		return feed, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return feed, fmt.Errorf("parse calendar: %w", err)
	}

	for _, p := range cal.CalendarProperties {
		switch p.IANAToken {
		case "PRODID":
			feed.ProductID = p.Value
		case "X-WR-CALNAME":
			feed.Name = p.Value
		case "X-WR-TIMEZONE":
			feed.Timezone = p.Value
		}
	}

	events := cal.Events()
	feed.Events = make([]ParsedEvent, 0, len(events))
	for i, comp := range events {
		ev, err := parseVEvent(comp)
		if err != nil {
			return feed, fmt.Errorf("vevent %d: %w", i, err)
		}
		feed.Events = append(feed.Events, ev)
	}

	return feed, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if endProp == nil {
		return out, errors.New("missing DTEND")
	}

	start, err := model.ParseStamp(startProp.Value)
	if err != nil {
		return out, err
	}
	end, err := model.ParseStamp(endProp.Value)
	if err != nil {
		return out, err
	}

	out.Start = start
	out.End = end
	out.RawStart = startProp.Value
	out.RawEnd = endProp.Value
	_, out.AllDay = start.(model.CalendarDate)

	// VALUE=DATE and the value shape must agree.
	if isDateValued(startProp.ICalParameters) != out.AllDay {
		return out, fmt.Errorf("DTSTART %q disagrees with its VALUE parameter", startProp.Value)
	}

	return out, nil
}

func isDateValued(params map[string][]string) bool {
	if params == nil {
		return false
	}
	vs, ok := params["VALUE"]
	return ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE")
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\;`, `;`, `\,`, `,`, `\n`, "\n", `\N`, "\n")

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
