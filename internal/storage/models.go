package storage

import (
	"time"
)

type Feed struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	SiteURL      string    `json:"site_url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	LastFetched  time.Time `json:"last_fetched"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Episode struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feed_id"`
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AudioURL    string    `json:"audio_url"`
	AudioType   string    `json:"audio_type"`
	Duration    string    `json:"duration"`
	Published   time.Time `json:"published"`
	Updated     time.Time `json:"updated"`
}
