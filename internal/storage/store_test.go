package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	if err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewStore(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatal(err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestStore_SaveAndGetFeed(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	feed := &Feed{
		ID:           "test-feed-1",
		URL:          "http://example.com/feed.xml",
		Title:        "Test Feed",
		Description:  "A test feed",
		SiteURL:      "http://example.com",
		LastFetched:  time.Now(),
		ETag:         "\"abc123\"",
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
		UpdatedAt:    time.Now(),
	}

	if err := store.SaveFeed(feed); err != nil {
		t.Fatalf("failed to save feed: %v", err)
	}

	got, err := store.GetFeed("test-feed-1")
	if err != nil {
		t.Fatalf("failed to get feed: %v", err)
	}
	if got.URL != feed.URL {
		t.Errorf("URL = %s, want %s", got.URL, feed.URL)
	}
	if got.Title != feed.Title {
		t.Errorf("Title = %s, want %s", got.Title, feed.Title)
	}
	if got.ETag != feed.ETag {
		t.Errorf("ETag = %s, want %s", got.ETag, feed.ETag)
	}
}

func TestStore_GetFeedNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetFeed("missing")
	if !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("expected ErrFeedNotFound, got %v", err)
	}

	if err := store.DeleteFeed("missing"); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("DeleteFeed: expected ErrFeedNotFound, got %v", err)
	}

	if _, err := store.GetFeedByURL("http://example.com/nowhere.xml"); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("GetFeedByURL: expected ErrFeedNotFound, got %v", err)
	}
}

func TestStore_GetFeedByURL(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	feed := &Feed{ID: "id-1", URL: "http://example.com/feed.xml"}
	if err := store.SaveFeed(feed); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetFeedByURL("http://example.com/feed.xml")
	if err != nil {
		t.Fatalf("failed to get feed by URL: %v", err)
	}
	if got.ID != "id-1" {
		t.Errorf("ID = %s, want id-1", got.ID)
	}

	if _, err := store.GetFeedByURL("http://example.com/other.xml"); err == nil {
		t.Error("expected error for unknown URL")
	}
}

func TestStore_SaveFeedWithEpisodes(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	feed := &Feed{ID: "combined-1", URL: "http://example.com/feed.xml", ETag: "\"v1\""}
	episodes := []*Episode{
		{ID: "combined-1:ep1", FeedID: "combined-1", Title: "Ep1"},
		{ID: "combined-1:ep2", FeedID: "combined-1", Title: "Ep2"},
	}

	if err := store.SaveFeedWithEpisodes(feed, episodes); err != nil {
		t.Fatalf("failed to save feed with episodes: %v", err)
	}

	got, err := store.GetFeed("combined-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ETag != "\"v1\"" {
		t.Errorf("ETag = %s, want \"v1\"", got.ETag)
	}

	stored, err := store.GetEpisodes("combined-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("expected 2 episodes, got %d", len(stored))
	}
}

func TestStore_SaveFeedWithEpisodesAtomic(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	feed := &Feed{ID: "atomic-1", URL: "http://example.com/feed.xml", ETag: "\"v1\""}
	// An episode key beyond bbolt's key size limit fails the Put mid-transaction
	episodes := []*Episode{
		{ID: strings.Repeat("x", 40000), FeedID: "atomic-1", Title: "Oversized"},
	}

	if err := store.SaveFeedWithEpisodes(feed, episodes); err == nil {
		t.Fatal("expected error for oversized episode key")
	}

	// The feed's cache headers must not be visible after the rollback;
	// otherwise later conditional fetches would skip content the store
	// never received.
	if _, err := store.GetFeed("atomic-1"); err == nil {
		t.Error("feed committed despite failed episode write")
	}
}

func TestStore_GetAllFeedsSorted(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	feeds := []*Feed{
		{ID: "1", URL: "http://c.example.com/feed", Title: "zebra cast"},
		{ID: "2", URL: "http://a.example.com/feed", Title: "Alpha Cast"},
		{ID: "3", URL: "http://b.example.com/feed", Title: ""},
	}
	for _, f := range feeds {
		if err := store.SaveFeed(f); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.GetAllFeeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 feeds, got %d", len(all))
	}

	// Alpha Cast, then the untitled feed (sorted by URL), then zebra cast
	if all[0].Title != "Alpha Cast" {
		t.Errorf("first feed = %q, want Alpha Cast", all[0].Title)
	}
	if all[1].ID != "3" {
		t.Errorf("second feed ID = %s, want 3", all[1].ID)
	}
	if all[2].Title != "zebra cast" {
		t.Errorf("third feed = %q, want zebra cast", all[2].Title)
	}
}

func TestStore_UpsertEpisodesIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	episodes := []*Episode{
		{ID: "feed1:ep1", FeedID: "feed1", GUID: "ep1", Title: "Ep1", Published: time.Now()},
		{ID: "feed1:ep2", FeedID: "feed1", GUID: "ep2", Title: "Ep2", Published: time.Now().Add(-time.Hour)},
	}

	if err := store.UpsertEpisodes(episodes); err != nil {
		t.Fatal(err)
	}
	// Second upsert with the same IDs must not create duplicates
	if err := store.UpsertEpisodes(episodes); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEpisodes("feed1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(got))
	}
	// Newest first
	if got[0].Title != "Ep1" {
		t.Errorf("first episode = %q, want Ep1", got[0].Title)
	}
}

func TestStore_UpsertEpisodesOverwritesStaleFields(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ep := &Episode{ID: "f:g", FeedID: "f", GUID: "g", Title: "old title"}
	if err := store.UpsertEpisodes([]*Episode{ep}); err != nil {
		t.Fatal(err)
	}

	ep.Title = "new title"
	if err := store.UpsertEpisodes([]*Episode{ep}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEpisodes("f", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "new title" {
		t.Errorf("expected 1 episode with refreshed title, got %+v", got)
	}
}

func TestStore_GetEpisodesLimit(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var episodes []*Episode
	for i := 0; i < 10; i++ {
		episodes = append(episodes, &Episode{
			ID:        fmt.Sprintf("f:ep%d", i),
			FeedID:    "f",
			Published: time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
	if err := store.UpsertEpisodes(episodes); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEpisodes("f", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 episodes, got %d", len(got))
	}
}

func TestStore_EpisodeIDs(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	episodes := []*Episode{
		{ID: "f1:a", FeedID: "f1"},
		{ID: "f1:b", FeedID: "f1"},
		{ID: "f2:c", FeedID: "f2"},
	}
	if err := store.UpsertEpisodes(episodes); err != nil {
		t.Fatal(err)
	}

	ids, err := store.EpisodeIDs("f1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || !ids["f1:a"] || !ids["f1:b"] {
		t.Errorf("unexpected episode IDs: %v", ids)
	}
}

func TestStore_DeleteFeedCascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.SaveFeed(&Feed{ID: "f1", URL: "http://example.com/feed"}); err != nil {
		t.Fatal(err)
	}
	episodes := []*Episode{
		{ID: "f1:a", FeedID: "f1"},
		{ID: "f2:b", FeedID: "f2"},
	}
	if err := store.UpsertEpisodes(episodes); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteFeed("f1"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetFeed("f1"); err == nil {
		t.Error("feed should be deleted")
	}

	remaining, err := store.GetEpisodes("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != "f2:b" {
		t.Errorf("expected only the other feed's episode to remain, got %+v", remaining)
	}
}

func TestStore_DeleteFeedNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.DeleteFeed("missing"); err == nil {
		t.Error("expected error deleting missing feed")
	}
}
