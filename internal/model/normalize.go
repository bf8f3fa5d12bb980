package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	isoDateLayout   = "2006-01-02"
	stampDateLayout = "20060102"
	stampTimeLayout = "20060102T150405"
)

// ErrNoDate is returned by Normalize when there is no token to normalize.
var ErrNoDate = errors.New("no date token")

// Normalize converts a source date token into a Date.
//
//   - nil token: ErrNoDate, the caller substitutes its own default.
//   - length <= 10: strict YYYY-MM-DD calendar date. With asEnd the date is
//     moved one day forward, since all-day DTEND is exclusive.
//   - otherwise: RFC 3339 instant, shifted by the offset loc has at that
//     exact instant (standard offset plus any daylight saving in effect)
//     and returned as a floating wall clock.
func Normalize(token *string, asEnd bool, loc *time.Location) (Date, error) {
	if token == nil {
		return nil, ErrNoDate
	}
	s := *token

	if IsDateToken(s) {
		t, err := time.Parse(isoDateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parse calendar date %q: %w", s, err)
		}
		d := CalendarDateOf(t)
		if asEnd {
			d = d.AddDays(1)
		}
		return d, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return LocalDateTimeOf(ShiftToZone(t, loc)), nil
}

// ShiftToZone returns t's UTC wall clock moved by the UTC offset that loc
// observes at t. The result's location is UTC; only its wall clock is
// meaningful.
func ShiftToZone(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	_, offset := t.In(loc).Zone()
	return t.UTC().Truncate(time.Second).Add(time.Duration(offset) * time.Second)
}

// ParseStamp reads back a rendered iCalendar date or date-time value using
// the same length rule as Normalize: "20220111" is a CalendarDate,
// "20221212T000000" a LocalDateTime. A trailing "Z" is accepted and its
// wall clock kept.
func ParseStamp(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if IsDateToken(value) {
		t, err := time.Parse(stampDateLayout, value)
		if err != nil {
			return nil, fmt.Errorf("parse date stamp %q: %w", value, err)
		}
		return CalendarDateOf(t), nil
	}

	t, err := time.Parse(stampTimeLayout, strings.TrimSuffix(value, "Z"))
	if err != nil {
		return nil, fmt.Errorf("parse date-time stamp %q: %w", value, err)
	}
	return LocalDateTimeOf(t), nil
}
