package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"podhound/internal/config"
	"podhound/internal/validation"
)

func rssFeed(title string, episodeTitles ...string) string {
	items := ""
	for i, episodeTitle := range episodeTitles {
		items += fmt.Sprintf(`
		<item>
			<title>%s</title>
			<guid>guid-%d</guid>
			<enclosure url="http://example.com/%d.mp3" type="audio/mpeg"/>
		</item>`, episodeTitle, i, i)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
	<channel>
		<title>%s</title>
		<description>test feed</description>%s
	</channel>
</rss>`, title, items)
}

// discoveryServer serves a page at /blog plus whatever feed documents the
// test registers by path.
func discoveryServer(t *testing.T, page string, feeds map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blog" {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page)
			return
		}
		if content, ok := feeds[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprint(w, content)
			return
		}
		http.NotFound(w, r)
	}))
}

func newTestResolver(cfg *config.Config) *Resolver {
	if cfg == nil {
		cfg = config.TestConfig()
	}
	return NewResolver(cfg, validation.NewPermissiveURLValidator())
}

func TestResolver_DiscoverInvalidInput(t *testing.T) {
	resolver := newTestResolver(nil)

	inputs := []string{"not a url", "", "/feed.xml", "ftp://example.com/feed"}
	for _, input := range inputs {
		_, err := resolver.Discover(context.Background(), input)
		var invalidErr *InvalidInputError
		if !errors.As(err, &invalidErr) {
			t.Errorf("Discover(%q): expected InvalidInputError, got %v", input, err)
		}
	}
}

func TestResolver_DiscoverFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := newTestResolver(nil)

	_, err := resolver.Discover(context.Background(), server.URL+"/blog")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestResolver_DiscoverNoFeeds(t *testing.T) {
	page := `<html><body><a href="/about">About us</a><p>nothing here</p></body></html>`
	server := discoveryServer(t, page, nil)
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatalf("no feeds on a page must not be an error, got %v", err)
	}
	if len(feeds) != 0 {
		t.Errorf("expected no feeds, got %d", len(feeds))
	}
}

func TestResolver_DiscoverStructuralLink(t *testing.T) {
	page := `<html><head>
		<link rel="alternate" type="application/rss+xml" href="/podcast.rss">
	</head><body></body></html>`
	server := discoveryServer(t, page, map[string]string{
		"/podcast.rss": rssFeed("My Show", "Ep1", "Ep2"),
	})
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected exactly one confirmed feed, got %d", len(feeds))
	}
	if feeds[0].URL != server.URL+"/podcast.rss" {
		t.Errorf("URL = %s", feeds[0].URL)
	}
	if feeds[0].Title != "My Show" {
		t.Errorf("Title = %q, want My Show", feeds[0].Title)
	}
	if feeds[0].EpisodeCount != 2 {
		t.Errorf("EpisodeCount = %d, want 2", feeds[0].EpisodeCount)
	}
}

func TestResolver_DiscoverHeuristicAnchor(t *testing.T) {
	page := `<html><body>
		<a href="/feed.xml">RSS</a>
		<a href="/about">About</a>
	</body></html>`
	server := discoveryServer(t, page, map[string]string{
		"/feed.xml": rssFeed("Blog Cast", "Ep1", "Ep2"),
	})
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected one confirmed feed, got %d", len(feeds))
	}
	if feeds[0].URL != server.URL+"/feed.xml" {
		t.Errorf("URL = %s, want %s/feed.xml", feeds[0].URL, server.URL)
	}
	if feeds[0].EpisodeCount != 2 {
		t.Errorf("EpisodeCount = %d, want 2", feeds[0].EpisodeCount)
	}
}

func TestResolver_DiscoverDeduplicates(t *testing.T) {
	// The same feed referenced both structurally and by anchor
	page := `<html><head>
		<link rel="alternate" type="application/rss+xml" href="/feed.xml">
	</head><body>
		<a href="/feed.xml">Subscribe via RSS</a>
	</body></html>`
	server := discoveryServer(t, page, map[string]string{
		"/feed.xml": rssFeed("Once Only", "Ep1"),
	})
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 {
		t.Fatalf("duplicate candidate returned %d results, want 1", len(feeds))
	}
}

func TestResolver_DiscoverStructuralBeforeHeuristic(t *testing.T) {
	page := `<html><head>
		<link rel="alternate" type="application/atom+xml" href="/official.atom">
	</head><body>
		<a href="/other-feed.xml">another feed</a>
	</body></html>`
	server := discoveryServer(t, page, map[string]string{
		"/official.atom":  rssFeed("Official", "Ep1"),
		"/other-feed.xml": rssFeed("Other", "Ep1"),
	})
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].Title != "Official" {
		t.Errorf("structural link should come first, got %q", feeds[0].Title)
	}
	if feeds[1].Title != "Other" {
		t.Errorf("heuristic link should come second, got %q", feeds[1].Title)
	}
}

func TestResolver_DiscoverWellKnownPaths(t *testing.T) {
	// Page with no markup hints at all; the feed lives at a common path
	page := `<html><body><p>welcome</p></body></html>`
	server := discoveryServer(t, page, map[string]string{
		"/feed": rssFeed("Hidden Feed", "Ep1"),
	})
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected the well-known path feed, got %d results", len(feeds))
	}
	if feeds[0].Title != "Hidden Feed" {
		t.Errorf("Title = %q", feeds[0].Title)
	}
}

func TestResolver_DiscoverCandidateCap(t *testing.T) {
	page := "<html><body>"
	feeds := make(map[string]string)
	for i := 0; i < 30; i++ {
		path := fmt.Sprintf("/feed-%d.xml", i)
		page += fmt.Sprintf(`<a href="%s">feed %d</a>`, path, i)
		feeds[path] = rssFeed(fmt.Sprintf("Feed %d", i), "Ep1")
	}
	page += "</body></html>"

	server := discoveryServer(t, page, feeds)
	defer server.Close()

	cfg := config.TestConfig()
	cfg.Discovery.MaxCandidates = 3
	resolver := newTestResolver(cfg)

	confirmed, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(confirmed) != 3 {
		t.Errorf("expected the candidate cap to hold, got %d results", len(confirmed))
	}
}

func TestExtractCandidates_SkipsNonHTTPSchemes(t *testing.T) {
	page := `<html><body>
		<a href="mailto:rss@example.com">mail the rss team</a>
		<a href="javascript:void(0)">feed popup</a>
	</body></html>`
	server := discoveryServer(t, page, nil)
	defer server.Close()

	resolver := newTestResolver(nil)

	feeds, err := resolver.Discover(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 0 {
		t.Errorf("expected no feeds from non-http candidates, got %d", len(feeds))
	}
}
