package main

import (
	"net/http"

	"notioncal/internal/cache"
	"notioncal/internal/calsync"
	"notioncal/internal/config"
	"notioncal/internal/ics"
	"notioncal/internal/notion"
)

// app holds the components shared by the commands.
type app struct {
	feed   *cache.File
	engine *calsync.Engine
}

func newApp(cfg *config.Config) *app {
	client := notion.NewClient(notion.Config{
		APIKey:            cfg.Notion.APIKey,
		Version:           cfg.Notion.Version,
		BaseURL:           cfg.Notion.BaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, &http.Client{Timeout: cfg.RequestTimeout})

	feed := cache.NewFile(cfg.CachePath)

	engine := calsync.New(client, notion.NewExtractor(client), feed, calsync.Options{
		DatabaseID: cfg.Notion.DatabaseID,
		Header: ics.Header{
			ProductID: cfg.ProductID,
			Name:      cfg.CalendarName,
			Timezone:  cfg.Timezone,
		},
		Location:  cfg.Location(),
		UIDDomain: cfg.UIDDomain,
		Workers:   cfg.Workers,
	})

	return &app{feed: feed, engine: engine}
}
