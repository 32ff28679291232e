package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"podhound/internal/config"
	"podhound/internal/storage"
)

const acceptFeeds = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, text/html;q=0.7"

type Fetcher struct {
	client      *http.Client
	userAgent   string
	pageTimeout time.Duration
	maxBodySize int64
	ignoreCache bool
}

func NewFetcher(cfg *config.Config) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Feed.HTTPTimeout,
		},
		userAgent:   cfg.Feed.UserAgent,
		pageTimeout: cfg.Feed.PageTimeout,
		maxBodySize: cfg.Feed.MaxBodySize,
	}
}

// SetIgnoreCache makes subsequent feed fetches skip conditional request
// headers, forcing a full response.
func (f *Fetcher) SetIgnoreCache(ignore bool) {
	f.ignoreCache = ignore
}

// FetchPage retrieves an HTML page for feed discovery. The page timeout is
// shorter than the feed timeout since pages are fetched interactively.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	return body, nil
}

// FetchFeed retrieves a feed document. Conditional request headers are sent
// when the stored feed carries ETag/Last-Modified state; a 304 reply returns
// notModified=true with a nil body. Response caching headers are written
// back onto the feed.
func (f *Fetcher) FetchFeed(ctx context.Context, feed *storage.Feed) (body []byte, notModified bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, false, &FetchError{URL: feed.URL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptFeeds)

	if !f.ignoreCache {
		if feed.ETag != "" {
			req.Header.Set("If-None-Match", feed.ETag)
		}
		if feed.LastModified != "" {
			req.Header.Set("If-Modified-Since", feed.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, &FetchError{URL: feed.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		feed.LastFetched = time.Now()
		return nil, true, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, &FetchError{URL: feed.URL, StatusCode: resp.StatusCode}
	}

	body, err = f.readBody(resp)
	if err != nil {
		return nil, false, &FetchError{URL: feed.URL, Err: err}
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}
	feed.LastFetched = time.Now()

	return body, false, nil
}

// readBody reads at most maxBodySize bytes; anything larger is rejected
// rather than truncated.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, f.maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("response exceeds %d bytes", f.maxBodySize)
	}
	return body, nil
}
