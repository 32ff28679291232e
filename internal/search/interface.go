package search

// Result is a search hit over the indexed feeds and episodes.
type Result struct {
	FeedID      string  `json:"feed_id"`
	EpisodeID   string  `json:"episode_id,omitempty"`
	IsEpisode   bool    `json:"is_episode"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Score       float64 `json:"score"`
}

// Searcher defines the minimal search API used by the HTTP layer.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (uint64, error)
}
