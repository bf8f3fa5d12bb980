package notion

import (
	"encoding/json"

	"notioncal/internal/model"
)

const (
	segmentTypeMention = "mention"
	mentionTypeDate    = "date"
)

// Page is one database record. Only the id is needed; the title is fetched
// through the property endpoint.
type Page struct {
	Object string `json:"object"`
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
}

type listResponse[T any] struct {
	Object     string  `json:"object"`
	Results    []T     `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type queryRequest struct {
	PageSize    int    `json:"page_size,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
}

// PropertyItem is one element of a paginated title property.
type PropertyItem struct {
	Object string    `json:"object"`
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Title  *RichText `json:"title"`
}

// RichText is one segment of a rich text value.
type RichText struct {
	Type      string   `json:"type"`
	PlainText string   `json:"plain_text"`
	Mention   *Mention `json:"mention,omitempty"`
}

// Mention is an inline reference. Only date mentions are used.
type Mention struct {
	Type string     `json:"type"`
	Date *DateValue `json:"date,omitempty"`
}

// DateValue keeps start/end raw so that non-string values can be told apart
// from strings without failing the whole response.
type DateValue struct {
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
}

// IsDateMention reports whether the segment is a date-typed mention.
func (rt RichText) IsDateMention() bool {
	return rt.Type == segmentTypeMention &&
		rt.Mention != nil &&
		rt.Mention.Type == mentionTypeDate
}

// DateMention converts the payload into the model form.
func (d *DateValue) DateMention() model.DateMention {
	if d == nil {
		return model.DateMention{}
	}
	return model.DateMention{
		Start: stringToken(d.Start),
		End:   stringToken(d.End),
	}
}

// stringToken returns nil for missing, null and non-string JSON values.
func stringToken(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return s
}
