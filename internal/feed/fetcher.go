// Package feed implements FeedFetcher over HTTP with conditional GET.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/truthscan/feedd/internal/ingest"
)

// Config controls fetcher behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxBody   int64
}

// Fetcher fetches and parses RSS/Atom documents. It sends If-None-Match /
// If-Modified-Since from the source's last successful fetch and maps a 304
// response to a not-modified document.
type Fetcher struct {
	cfg    Config
	client *http.Client
	parser *gofeed.Parser
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBody == 0 {
		cfg.MaxBody = 10 << 20
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		parser: gofeed.NewParser(),
	}
}

// Fetch executes a single conditional GET and parses the body.
func (f *Fetcher) Fetch(ctx context.Context, src ingest.Source) (ingest.FeedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return ingest.FeedDocument{}, &ingest.ValidationError{Field: "url", Reason: err.Error()}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ingest.FeedDocument{}, ingest.Transient(fmt.Errorf("fetch %s: %w", src.URL, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return ingest.FeedDocument{NotModified: true}, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ingest.FeedDocument{}, fmt.Errorf("fetch %s: status %d: %w", src.URL, resp.StatusCode, ingest.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return ingest.FeedDocument{}, ingest.Transient(fmt.Errorf("fetch %s: status %d", src.URL, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return ingest.FeedDocument{}, fmt.Errorf("fetch %s: unexpected status %d", src.URL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBody))
	if err != nil {
		return ingest.FeedDocument{}, ingest.Transient(fmt.Errorf("read body %s: %w", src.URL, err))
	}

	parsed, err := f.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return ingest.FeedDocument{}, ingest.Transient(fmt.Errorf("parse feed %s: %w", src.URL, err))
	}

	doc := ingest.FeedDocument{
		Entries:      make([]ingest.Entry, 0, len(parsed.Items)),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Raw:          raw,
	}
	for _, it := range parsed.Items {
		doc.Entries = append(doc.Entries, toEntry(it))
	}
	return doc, nil
}

func toEntry(it *gofeed.Item) ingest.Entry {
	e := ingest.Entry{
		URL:     it.Link,
		Title:   it.Title,
		Content: it.Content,
	}
	if e.Content == "" {
		e.Content = it.Description
	}
	if it.PublishedParsed != nil {
		e.PublishedAt = it.PublishedParsed.UTC()
	} else if it.UpdatedParsed != nil {
		e.PublishedAt = it.UpdatedParsed.UTC()
	}
	return e
}
