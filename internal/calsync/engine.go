// Package calsync turns a Notion database into a rendered calendar feed.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"notioncal/internal/ics"
	appLog "notioncal/internal/log"
	"notioncal/internal/model"
	"notioncal/internal/notion"
)

// Source lists the records of a database.
type Source interface {
	QueryDatabase(ctx context.Context, databaseID string) ([]notion.Page, error)
}

// Extractor turns one record into an entry; ok is false for records
// without a date mention.
type Extractor interface {
	Extract(ctx context.Context, page notion.Page) (notion.Entry, bool, error)
}

// Store receives the rendered document.
type Store interface {
	Write(doc string) error
}

// Options configures an Engine.
type Options struct {
	DatabaseID string
	Header     ics.Header
	// Location is the display zone timed events are shifted into.
	Location *time.Location
	// UIDDomain is appended to generated UIDs ("<uuid>@<domain>").
	UIDDomain string
	// Workers bounds concurrent Extract calls. Values below 1 mean 1.
	Workers int

	// Now and NewUID are overridable for tests.
	Now    func() time.Time
	NewUID func() string
}

// Engine runs refresh passes. A pass always renders the full database;
// there is no incremental state between passes.
type Engine struct {
	source    Source
	extractor Extractor
	store     Store
	opts      Options
}

func New(source Source, extractor Extractor, store Store, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewUID == nil {
		opts.NewUID = func() string { return uuid.New().String() }
	}
	return &Engine{source: source, extractor: extractor, store: store, opts: opts}
}

// Refresh renders the database and replaces the stored document. On error
// nothing is written and the previous document stays in place.
func (e *Engine) Refresh(ctx context.Context) (ics.Document, error) {
	started := e.opts.Now()
	appLog.Info("updating calendar", "database", e.opts.DatabaseID)

	events, err := e.Events(ctx)
	if err != nil {
		return ics.Document{}, err
	}

	doc := ics.Render(e.opts.Header, events)

	// Never publish something we cannot read back ourselves.
	feed, err := ics.ParseFeed([]byte(doc.Body))
	if err != nil {
		return ics.Document{}, fmt.Errorf("rendered feed failed self-check: %w", err)
	}
	if len(feed.Events) != doc.Events {
		return ics.Document{}, fmt.Errorf("rendered feed failed self-check: %d events rendered, %d parsed", doc.Events, len(feed.Events))
	}

	if err := e.store.Write(doc.Body); err != nil {
		return ics.Document{}, fmt.Errorf("write feed: %w", err)
	}

	appLog.Info("calendar updated",
		"database", e.opts.DatabaseID,
		"events", doc.Events,
		"bytes", len(doc.Body),
		"took", e.opts.Now().Sub(started).String(),
	)
	return doc, nil
}

// Events builds the calendar events of one pass, ordered by record (in
// source order) then mention (in title order).
func (e *Engine) Events(ctx context.Context) ([]model.CalendarEvent, error) {
	pages, err := e.source.QueryDatabase(ctx, e.opts.DatabaseID)
	if err != nil {
		return nil, err
	}
	appLog.Info("got notion records", "database", e.opts.DatabaseID, "records", len(pages))

	entries, err := e.extractAll(ctx, pages)
	if err != nil {
		return nil, err
	}

	stamp := e.opts.Now().UTC().Truncate(time.Second)
	events := make([]model.CalendarEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, e.entryEvents(entry, stamp)...)
	}
	return events, nil
}

type extractResult struct {
	entry notion.Entry
	ok    bool
	err   error
}

// extractAll runs Extract over pages with at most opts.Workers in flight.
// Results are collected by index so the output keeps source order.
func (e *Engine) extractAll(ctx context.Context, pages []notion.Page) ([]notion.Entry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]extractResult, len(pages))
	sem := make(chan struct{}, e.opts.Workers)
	var wg sync.WaitGroup

	for i, page := range pages {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i].err = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, page notion.Page) {
			defer wg.Done()
			defer func() { <-sem }()

			entry, ok, err := e.extractor.Extract(ctx, page)
			results[i] = extractResult{entry: entry, ok: ok, err: err}
			if err != nil && !notion.IsRecordScoped(err) {
				cancel()
			}
		}(i, page)
	}
	wg.Wait()

	entries := make([]notion.Entry, 0, len(pages))
	var fatal, lastScoped error
	skipped := 0
	for i, r := range results {
		switch {
		case r.err == nil:
			if r.ok {
				entries = append(entries, r.entry)
			}
		case notion.IsRecordScoped(r.err):
			appLog.Warn("skipping record", "page", pages[i].ID, "err", r.err.Error())
			skipped++
			lastScoped = r.err
		case fatal == nil || errors.Is(fatal, context.Canceled):
			// Prefer the root cause over cancellations it triggered.
			fatal = r.err
		}
	}
	if fatal != nil {
		return nil, fmt.Errorf("extract records: %w", fatal)
	}
	// Every record failing usually means lost access, not an empty calendar.
	if len(pages) > 0 && skipped == len(pages) {
		return nil, fmt.Errorf("extract records: all %d records failed: %w", skipped, lastScoped)
	}
	return entries, nil
}

// entryEvents builds one event per mention. A mention whose start cannot be
// normalized is dropped on its own.
func (e *Engine) entryEvents(entry notion.Entry, stamp time.Time) []model.CalendarEvent {
	events := make([]model.CalendarEvent, 0, len(entry.Mentions))
	for i, m := range entry.Mentions {
		start, end, err := e.span(m)
		if err != nil {
			appLog.Error("skipping date mention", err, "page", entry.PageID, "title", entry.Title, "mention", i)
			continue
		}
		events = append(events, model.CalendarEvent{
			Title: entry.Title,
			Start: start,
			End:   end,
			UID:   e.opts.NewUID() + "@" + e.opts.UIDDomain,
			Stamp: stamp,
		})
	}
	return events
}

// span resolves start and end of a mention.
//
// The end token is used when present, parseable and later than start.
// Otherwise the start token read as an end stands in: the next day for
// all-day starts, the same instant for timed ones.
func (e *Engine) span(m model.DateMention) (model.Date, model.Date, error) {
	loc := e.opts.Location

	start, err := model.Normalize(m.Start, false, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}
	fallback, err := model.Normalize(m.Start, true, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("start as end: %w", err)
	}

	end, err := model.Normalize(m.End, true, loc)
	switch {
	case errors.Is(err, model.ErrNoDate):
		return start, fallback, nil
	case err != nil:
		appLog.Debug("unusable end date; using start", "err", err.Error())
		return start, fallback, nil
	case !model.After(end, start):
		appLog.Debug("end not after start; using start", "start", start.String(), "end", end.String())
		return start, fallback, nil
	}
	return start, end, nil
}
