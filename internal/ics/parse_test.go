package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notioncal/internal/model"
)

func TestParseFeed_RoundTrip(t *testing.T) {
	events := []model.CalendarEvent{
		{
			Title: "Trip",
			Start: model.CalendarDate{Year: 2022, Month: time.January, Day: 11},
			End:   model.CalendarDate{Year: 2022, Month: time.January, Day: 12},
			UID:   "trip@notioncal.local",
			Stamp: testStamp,
		},
		{
			Title: "Call",
			Start: model.LocalDateTime{Year: 2022, Month: time.December, Day: 12, Hour: 0},
			End:   model.LocalDateTime{Year: 2022, Month: time.December, Day: 12, Hour: 0},
			UID:   "call@notioncal.local",
			Stamp: testStamp,
		},
	}

	feed, err := ParseFeed([]byte(Render(testHeader, events).Body))
	require.NoError(t, err)

	assert.Equal(t, testHeader.ProductID, feed.ProductID)
	assert.Equal(t, testHeader.Name, feed.Name)
	assert.Equal(t, testHeader.Timezone, feed.Timezone)
	require.Len(t, feed.Events, 2)

	for i, want := range events {
		got := feed.Events[i]
		assert.Equal(t, want.UID, got.UID)
		assert.Equal(t, want.Title, got.Summary)
		assert.Equal(t, want.Start, got.Start)
		assert.Equal(t, want.End, got.End)
		assert.Equal(t, "CONFIRMED", got.Status)
		assert.Equal(t, 0, got.Seq)
	}
	assert.True(t, feed.Events[0].AllDay)
	assert.False(t, feed.Events[1].AllDay)
	assert.Equal(t, "20220111", feed.Events[0].RawStart)
	assert.Equal(t, "20221212T000000", feed.Events[1].RawEnd)
}

func TestParseFeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{
			name: "missing dtend",
			body: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:a@b\r\nDTSTART;VALUE=DATE:20220111\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		},
		{
			name: "missing uid",
			body: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nDTSTART;VALUE=DATE:20220111\r\nDTEND;VALUE=DATE:20220112\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		},
		{
			name: "value parameter mismatch",
			body: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:a@b\r\nDTSTART:20220111\r\nDTEND:20220112\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFeed([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestUnescapeText(t *testing.T) {
	assert.Equal(t, "a, b; c\\d", unescapeText(`a\, b\; c\\d`))
}
