package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"podhound/internal/config"
	"podhound/internal/debuglog"
	"podhound/internal/storage"
	"podhound/internal/validation"
)

// IndexListener is notified about persisted data changes so an external
// search index can stay current.
type IndexListener interface {
	OnDataUpdated(feed *storage.Feed, episodes []*storage.Episode)
	OnFeedDeleted(feedID string)
}

// RefreshResult reports what a refresh changed. Episodes that disappeared
// upstream are retained locally and do not show up here.
type RefreshResult struct {
	Feed            *storage.Feed      `json:"feed"`
	NewEpisodes     []*storage.Episode `json:"new_episodes"`
	UpdatedEpisodes []*storage.Episode `json:"updated_episodes"`
	NotModified     bool               `json:"not_modified"`
}

// RefreshOutcome is one feed's result from a refresh-all run.
type RefreshOutcome struct {
	FeedID  string         `json:"feed_id"`
	FeedURL string         `json:"feed_url"`
	Result  *RefreshResult `json:"result,omitempty"`
	Err     error          `json:"-"`
	Error   string         `json:"error,omitempty"`
}

type Manager struct {
	store        *storage.Store
	fetcher      *Fetcher
	parser       *Parser
	resolver     *Resolver
	config       *config.Config
	urlValidator *validation.URLValidator
	listener     IndexListener
	mu           sync.RWMutex
}

func NewManager(store *storage.Store, cfg *config.Config) *Manager {
	urlValidator := validation.NewURLValidator()
	return &Manager{
		store:        store,
		fetcher:      NewFetcher(cfg),
		parser:       NewParser(),
		resolver:     NewResolver(cfg, urlValidator),
		config:       cfg,
		urlValidator: urlValidator,
	}
}

// SetIndexListener registers a listener for persisted data changes.
func (m *Manager) SetIndexListener(l IndexListener) {
	m.listener = l
}

// SetForceRefresh configures the manager to ignore ETag/Last-Modified headers
func (m *Manager) SetForceRefresh(force bool) {
	m.fetcher.SetIgnoreCache(force)
}

// SetPermissiveValidation enables permissive URL validation for development/testing
func (m *Manager) SetPermissiveValidation(permissive bool) {
	if permissive {
		m.urlValidator = validation.NewPermissiveURLValidator()
	} else {
		m.urlValidator = validation.NewURLValidator()
	}
	m.resolver.validator = m.urlValidator
}

// Discover runs feed discovery against a web page. Read-only with respect
// to the store; the caller decides which confirmed feeds to add.
func (m *Manager) Discover(ctx context.Context, pageURL string) ([]ConfirmedFeed, error) {
	return m.resolver.Discover(ctx, pageURL)
}

// AddFeed validates, fetches and parses feedURL, then persists the feed and
// its episodes. Adding a URL that is already stored re-fetches it in place.
func (m *Manager) AddFeed(ctx context.Context, feedURL string) (*storage.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	normalizedURL, err := m.urlValidator.ValidateAndNormalize(feedURL)
	if err != nil {
		return nil, &InvalidInputError{Input: feedURL, Err: err}
	}

	// Re-adding a stored URL reuses its record so conditional request
	// headers still apply.
	feed, err := m.store.GetFeedByURL(normalizedURL)
	if err != nil {
		feed = &storage.Feed{
			ID:  generateFeedID(normalizedURL),
			URL: normalizedURL,
		}
	}

	body, notModified, err := m.fetcher.FetchFeed(ctx, feed)
	if err != nil {
		return nil, err
	}

	if notModified {
		if saveErr := m.store.SaveFeed(feed); saveErr != nil {
			return nil, fmt.Errorf("saving feed metadata: %w", saveErr)
		}
		return feed, nil
	}

	info, err := m.parser.Parse(bytes.NewReader(body), feed.ID)
	if err != nil {
		return nil, &ParseError{URL: normalizedURL, Err: err}
	}

	feed.Title = info.Title
	feed.Description = info.Description
	feed.SiteURL = info.SiteURL
	feed.UpdatedAt = time.Now()

	if err := m.store.SaveFeedWithEpisodes(feed, info.Episodes); err != nil {
		return nil, fmt.Errorf("saving feed: %w", err)
	}

	m.notifyUpdated(feed, info.Episodes)

	debuglog.WithFields(map[string]any{
		"feed":     feed.URL,
		"episodes": len(info.Episodes),
	}).Infof("feed added")

	return feed, nil
}

// RefreshFeed re-fetches a stored feed and reports which episodes are new or
// changed. Stored episodes missing from the upstream document stay in place.
func (m *Manager) RefreshFeed(ctx context.Context, feedID string) (*RefreshResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshLocked(ctx, feedID)
}

func (m *Manager) refreshLocked(ctx context.Context, feedID string) (*RefreshResult, error) {
	feed, err := m.store.GetFeed(feedID)
	if err != nil {
		return nil, fmt.Errorf("getting feed: %w", err)
	}

	body, notModified, err := m.fetcher.FetchFeed(ctx, feed)
	if err != nil {
		return nil, err
	}

	if notModified {
		if saveErr := m.store.SaveFeed(feed); saveErr != nil {
			return nil, fmt.Errorf("saving feed metadata: %w", saveErr)
		}
		return &RefreshResult{Feed: feed, NotModified: true}, nil
	}

	info, err := m.parser.Parse(bytes.NewReader(body), feed.ID)
	if err != nil {
		return nil, &ParseError{URL: feed.URL, Err: err}
	}

	known, err := m.store.EpisodeIDs(feed.ID)
	if err != nil {
		return nil, fmt.Errorf("listing stored episodes: %w", err)
	}

	result := &RefreshResult{Feed: feed}
	for _, episode := range info.Episodes {
		if known[episode.ID] {
			result.UpdatedEpisodes = append(result.UpdatedEpisodes, episode)
		} else {
			result.NewEpisodes = append(result.NewEpisodes, episode)
		}
	}

	feed.Title = info.Title
	feed.Description = info.Description
	feed.SiteURL = info.SiteURL
	feed.UpdatedAt = time.Now()

	if err := m.store.SaveFeedWithEpisodes(feed, info.Episodes); err != nil {
		return nil, fmt.Errorf("saving feed: %w", err)
	}

	m.notifyUpdated(feed, info.Episodes)

	return result, nil
}

// RefreshAll refreshes every stored feed through a small worker pool. Feeds
// fetched within the configured refresh interval are skipped. The returned
// error aggregates per-feed failures; outcomes carry the details.
func (m *Manager) RefreshAll(ctx context.Context) ([]*RefreshOutcome, error) {
	feeds, err := m.store.GetAllFeeds()
	if err != nil {
		return nil, fmt.Errorf("getting feeds: %w", err)
	}

	if len(feeds) == 0 {
		return nil, nil
	}

	const maxConcurrentRefresh = 5
	feedChan := make(chan *storage.Feed, len(feeds))
	outcomeChan := make(chan *RefreshOutcome, len(feeds))

	var wg sync.WaitGroup
	for i := 0; i < maxConcurrentRefresh && i < len(feeds); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range feedChan {
				outcome := &RefreshOutcome{FeedID: feed.ID, FeedURL: feed.URL}
				if time.Since(feed.LastFetched) < m.config.Feed.RefreshInterval {
					outcome.Result = &RefreshResult{Feed: feed, NotModified: true}
				} else if result, refreshErr := m.RefreshFeed(ctx, feed.ID); refreshErr != nil {
					outcome.Err = refreshErr
					outcome.Error = refreshErr.Error()
				} else {
					outcome.Result = result
				}
				outcomeChan <- outcome
			}
		}()
	}

	for _, feed := range feeds {
		feedChan <- feed
	}
	close(feedChan)

	wg.Wait()
	close(outcomeChan)

	var outcomes []*RefreshOutcome
	var errs []error
	for outcome := range outcomeChan {
		outcomes = append(outcomes, outcome)
		if outcome.Err != nil {
			errs = append(errs, outcome.Err)
		}
	}

	return outcomes, errors.Join(errs...)
}

// DeleteFeed removes a feed and all of its episodes.
func (m *Manager) DeleteFeed(feedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.store.GetFeed(feedID); err != nil {
		return err
	}

	// The index enumerates a feed's episode documents through the store,
	// so it has to be notified while the rows are still readable.
	if m.listener != nil {
		m.listener.OnFeedDeleted(feedID)
	}

	return m.store.DeleteFeed(feedID)
}

func (m *Manager) notifyUpdated(feed *storage.Feed, episodes []*storage.Episode) {
	if m.listener != nil {
		m.listener.OnDataUpdated(feed, episodes)
	}
}

func generateFeedID(url string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(url)))
}
