package notion

import (
	"context"
	"strings"

	appLog "notioncal/internal/log"
	"notioncal/internal/model"
)

// TitleFetcher returns the title segments of one page.
type TitleFetcher interface {
	TitleSegments(ctx context.Context, pageID string) ([]RichText, error)
}

// Entry is a page whose title mentions at least one date.
type Entry struct {
	PageID   string
	Title    string
	Mentions []model.DateMention
}

// Extractor turns database pages into calendar entries.
type Extractor struct {
	titles TitleFetcher
}

func NewExtractor(titles TitleFetcher) *Extractor {
	return &Extractor{titles: titles}
}

// Extract fetches the page title and returns its entry. ok is false when
// the title has no date mention; such pages are not calendar-worthy.
func (e *Extractor) Extract(ctx context.Context, page Page) (Entry, bool, error) {
	segments, err := e.titles.TitleSegments(ctx, page.ID)
	if err != nil {
		return Entry{}, false, err
	}

	entry, ok := EntryFromSegments(page.ID, segments)
	if ok {
		appLog.Debug("got date information", "page", page.ID, "title", entry.Title, "mentions", len(entry.Mentions))
	}
	return entry, ok, nil
}

// EntryFromSegments applies the title rules to already fetched segments:
//
//   - no date mention among the segments: not an entry
//   - title: trimmed plain text of the first segment, whatever its type
//   - mentions: every date mention, in segment order
func EntryFromSegments(pageID string, segments []RichText) (Entry, bool) {
	var mentions []model.DateMention
	for _, seg := range segments {
		if !seg.IsDateMention() {
			continue
		}
		mentions = append(mentions, seg.Mention.Date.DateMention())
	}
	if len(mentions) == 0 {
		return Entry{}, false
	}

	return Entry{
		PageID:   pageID,
		Title:    strings.TrimSpace(segments[0].PlainText),
		Mentions: mentions,
	}, true
}
