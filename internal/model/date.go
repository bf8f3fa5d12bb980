package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// dateTokenMaxLen is the longest token still treated as a bare calendar
// date ("2022-01-11" or "20220111"); anything longer carries a time.
const dateTokenMaxLen = 10

// Date is either a CalendarDate or a LocalDateTime. The set of
// implementations is closed; consumers switch on the concrete type.
type Date interface {
	// Time returns the value as a UTC time.Time holding the same wall
	// clock, for ordering and arithmetic only.
	Time() time.Time
	String() string

	isDate()
}

// CalendarDate is an all-day value without time of day.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// LocalDateTime is a floating wall clock already shifted into the display
// timezone. It carries no offset.
type LocalDateTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

func (CalendarDate) isDate()  {}
func (LocalDateTime) isDate() {}

func (d CalendarDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date n days later, normalizing month/year overflow.
func (d CalendarDate) AddDays(n int) CalendarDate {
	return CalendarDateOf(d.Time().AddDate(0, 0, n))
}

func (d LocalDateTime) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

func (d LocalDateTime) String() string {
	return d.Time().Format("2006-01-02T15:04:05")
}

// CalendarDateOf takes the calendar date of t's wall clock.
func CalendarDateOf(t time.Time) CalendarDate {
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// LocalDateTimeOf takes t's wall clock at second precision, dropping its
// location.
func LocalDateTimeOf(t time.Time) LocalDateTime {
	return LocalDateTime{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// IsDateToken reports whether a token is classified as a bare calendar
// date rather than a timestamp. The rule is purely length based.
func IsDateToken(token string) bool {
	return utf8.RuneCountInString(token) <= dateTokenMaxLen
}

// After reports whether a is strictly later than b.
func After(a, b Date) bool {
	return a.Time().After(b.Time())
}
