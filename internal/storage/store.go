package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	feedsBucket    = []byte("feeds")
	episodesBucket = []byte("episodes")
)

// ErrFeedNotFound reports a lookup or delete against an unknown feed ID.
// Callers distinguish it from storage failures with errors.Is.
var ErrFeedNotFound = errors.New("feed not found")

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{feedsBucket, episodesBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveFeed(feed *Feed) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		data, err := json.Marshal(feed)
		if err != nil {
			return err
		}
		return b.Put([]byte(feed.ID), data)
	})
}

// SaveFeedWithEpisodes writes a feed and its episodes in one transaction.
// The feed's cache headers must never become visible without the episodes
// they cover; a partial write would make later conditional fetches skip
// content the store never received.
func (s *Store) SaveFeedWithEpisodes(feed *Feed, episodes []*Episode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(feed)
		if err != nil {
			return err
		}
		if err := tx.Bucket(feedsBucket).Put([]byte(feed.ID), data); err != nil {
			return err
		}

		b := tx.Bucket(episodesBucket)
		for _, episode := range episodes {
			data, err := json.Marshal(episode)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(episode.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetFeed(id string) (*Feed, error) {
	var feed Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrFeedNotFound
		}
		return json.Unmarshal(data, &feed)
	})
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

func (s *Store) GetFeedByURL(url string) (*Feed, error) {
	var found *Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		return b.ForEach(func(_ []byte, v []byte) error {
			var feed Feed
			if err := json.Unmarshal(v, &feed); err != nil {
				return nil
			}
			if feed.URL == url {
				found = &feed
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrFeedNotFound
	}
	return found, nil
}

func (s *Store) GetAllFeeds() ([]*Feed, error) {
	var feeds []*Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		return b.ForEach(func(_ []byte, v []byte) error {
			var feed Feed
			if err := json.Unmarshal(v, &feed); err != nil {
				return err
			}
			feeds = append(feeds, &feed)
			return nil
		})
	})
	// Sort feeds by Title (case-insensitive), fallback to URL
	sort.Slice(feeds, func(i, j int) bool {
		ti := feeds[i].Title
		tj := feeds[j].Title
		if ti == "" {
			ti = feeds[i].URL
		}
		if tj == "" {
			tj = feeds[j].URL
		}
		return strings.ToLower(ti) < strings.ToLower(tj)
	})
	return feeds, err
}

// UpsertEpisodes writes episodes keyed by ID. Existing entries with the same
// ID are overwritten with the fresh fields, which keeps refreshes idempotent.
func (s *Store) UpsertEpisodes(episodes []*Episode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(episodesBucket)
		for _, episode := range episodes {
			data, err := json.Marshal(episode)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(episode.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetEpisodes(feedID string, limit int) ([]*Episode, error) {
	var episodes []*Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(episodesBucket)
		return b.ForEach(func(_ []byte, v []byte) error {
			var episode Episode
			if err := json.Unmarshal(v, &episode); err != nil {
				return nil
			}
			if feedID == "" || episode.FeedID == feedID {
				episodes = append(episodes, &episode)
			}
			return nil
		})
	})
	// Sort by publish date, newest first
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].Published.After(episodes[j].Published)
	})
	if limit > 0 && len(episodes) > limit {
		episodes = episodes[:limit]
	}
	return episodes, err
}

// EpisodeIDs returns the set of stored episode IDs for a feed, used by the
// refresh diff.
func (s *Store) EpisodeIDs(feedID string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(episodesBucket)
		return b.ForEach(func(k []byte, v []byte) error {
			var episode Episode
			if err := json.Unmarshal(v, &episode); err != nil {
				return nil
			}
			if episode.FeedID == feedID {
				ids[string(k)] = true
			}
			return nil
		})
	})
	return ids, err
}

func (s *Store) DeleteFeed(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		feedBucket := tx.Bucket(feedsBucket)
		if feedBucket.Get([]byte(id)) == nil {
			return ErrFeedNotFound
		}
		if err := feedBucket.Delete([]byte(id)); err != nil {
			return err
		}

		episodeBucket := tx.Bucket(episodesBucket)
		c := episodeBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var episode Episode
			if err := json.Unmarshal(v, &episode); err != nil {
				continue
			}
			if episode.FeedID == id {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}

		return nil
	})
}
