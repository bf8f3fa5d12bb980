package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notioncal/internal/cache"
	"notioncal/internal/config"
)

const feedBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"

type staticFeed struct {
	body string
	err  error
}

func (f staticFeed) ReadAll() (string, error) { return f.body, f.err }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SecretPath = "s3cret"
	return cfg
}

func TestHandleFeed(t *testing.T) {
	tests := []struct {
		name       string
		feed       Reader
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "serves feed", feed: staticFeed{body: feedBody}, method: http.MethodGet, path: "/s3cret", wantStatus: http.StatusOK, wantBody: feedBody},
		{name: "head has no body", feed: staticFeed{body: feedBody}, method: http.MethodHead, path: "/s3cret", wantStatus: http.StatusOK},
		{name: "wrong path", feed: staticFeed{body: feedBody}, method: http.MethodGet, path: "/guess", wantStatus: http.StatusNotFound},
		{name: "root", feed: staticFeed{body: feedBody}, method: http.MethodGet, path: "/", wantStatus: http.StatusNotFound},
		{name: "subpath", feed: staticFeed{body: feedBody}, method: http.MethodGet, path: "/s3cret/extra", wantStatus: http.StatusNotFound},
		{name: "post", feed: staticFeed{body: feedBody}, method: http.MethodPost, path: "/s3cret", wantStatus: http.StatusMethodNotAllowed},
		{name: "not generated", feed: staticFeed{err: cache.ErrEmpty}, method: http.MethodGet, path: "/s3cret", wantStatus: http.StatusServiceUnavailable},
		{name: "read failure", feed: staticFeed{err: errors.New("io")}, method: http.MethodGet, path: "/s3cret", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(testConfig(), tt.feed).Handler()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandleFeed_ReadsCurrentCache(t *testing.T) {
	file := cache.NewFile(filepath.Join(t.TempDir(), "feed.ics"))
	h := NewServer(testConfig(), file).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s3cret", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, file.Write(feedBody))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s3cret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feedBody, rec.Body.String())
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	// Reserve a free port, then hand it to the server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig()
	cfg.Listen = addr
	s := NewServer(cfg, staticFeed{body: feedBody})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/s3cret")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, feedBody, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
