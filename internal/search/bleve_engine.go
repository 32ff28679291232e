package search

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"podhound/internal/storage"
)

type bleveEngine struct {
	store *storage.Store
	idx   bleve.Index
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes the
// store's current feeds and episodes. The returned engine also implements
// the feed manager's IndexListener so the index follows data changes.
func NewBleveEngine(store *storage.Store, indexPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating search index: %w", err)
		}
	}

	be := &Engine{inner: &bleveEngine{store: store, idx: idx}}
	if err := be.inner.reindexAll(); err != nil {
		return nil, err
	}
	return be, nil
}

// Engine is the exported wrapper around the bleve-backed index.
type Engine struct {
	inner *bleveEngine
}

func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	return e.inner.search(query, limit)
}

func (e *Engine) DocCount() (uint64, error) {
	return e.inner.idx.DocCount()
}

func (e *Engine) Close() error {
	return e.inner.idx.Close()
}

// OnDataUpdated indexes a feed and its episodes after they were persisted.
func (e *Engine) OnDataUpdated(feed *storage.Feed, episodes []*storage.Episode) {
	_ = e.inner.indexFeed(feed, episodes)
}

// OnFeedDeleted removes a feed's documents from the index.
func (e *Engine) OnFeedDeleted(feedID string) {
	_ = e.inner.deleteFeed(feedID)
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	desc := bleve.NewTextFieldMapping()
	desc.Analyzer = standard.Name
	desc.Store = true

	url := bleve.NewTextFieldMapping()
	url.Analyzer = standard.Name
	url.Store = true

	feedID := bleve.NewTextFieldMapping()
	feedID.Analyzer = standard.Name
	feedID.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("description", desc)
	dm.AddFieldMappingsAt("url", url)
	dm.AddFieldMappingsAt("feed_id", feedID)

	im.DefaultMapping = dm
	return im
}

func (b *bleveEngine) reindexAll() error {
	feeds, err := b.store.GetAllFeeds()
	if err != nil {
		return err
	}

	batch := b.idx.NewBatch()
	for _, f := range feeds {
		_ = batch.Index(docIDForFeed(f.ID), feedDoc(f))

		episodes, _ := b.store.GetEpisodes(f.ID, 0)
		for _, ep := range episodes {
			_ = batch.Index(docIDForEpisode(ep.ID), episodeDoc(ep))
		}
	}
	return b.idx.Batch(batch)
}

func (b *bleveEngine) indexFeed(feed *storage.Feed, episodes []*storage.Episode) error {
	batch := b.idx.NewBatch()
	_ = batch.Index(docIDForFeed(feed.ID), feedDoc(feed))
	for _, ep := range episodes {
		_ = batch.Index(docIDForEpisode(ep.ID), episodeDoc(ep))
	}
	return b.idx.Batch(batch)
}

func (b *bleveEngine) deleteFeed(feedID string) error {
	episodes, err := b.store.GetEpisodes(feedID, 0)
	if err != nil {
		episodes = nil
	}

	batch := b.idx.NewBatch()
	batch.Delete(docIDForFeed(feedID))
	for _, ep := range episodes {
		batch.Delete(docIDForEpisode(ep.ID))
	}
	return b.idx.Batch(batch)
}

func (b *bleveEngine) search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}

	tokens := tokenize(query)
	var qs []bleveQuery.Query
	for _, tok := range tokens {
		qt := bleve.NewMatchQuery(tok)
		qt.SetField("title")
		qt.SetBoost(4.0)
		qs = append(qs, qt)

		qtp := bleve.NewPrefixQuery(strings.ToLower(tok))
		qtp.SetField("title")
		qtp.SetBoost(3.5)
		qs = append(qs, qtp)

		qd := bleve.NewMatchQuery(tok)
		qd.SetField("description")
		qd.SetBoost(2.0)
		qs = append(qs, qd)

		qu := bleve.NewMatchQuery(tok)
		qu.SetField("url")
		qu.SetBoost(0.5)
		qs = append(qs, qu)
	}

	if len(qs) == 0 {
		return []*Result{}, nil
	}

	if limit <= 0 {
		limit = 25
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"type", "feed_id", "title", "description", "url"}

	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		result := &Result{
			FeedID:      fieldString(hit.Fields, "feed_id"),
			Title:       fieldString(hit.Fields, "title"),
			Description: fieldString(hit.Fields, "description"),
			URL:         fieldString(hit.Fields, "url"),
			Score:       hit.Score,
		}
		if fieldString(hit.Fields, "type") == "episode" {
			result.IsEpisode = true
			result.EpisodeID = strings.TrimPrefix(hit.ID, "episode:")
		}
		results = append(results, result)
	}
	return results, nil
}

func feedDoc(f *storage.Feed) map[string]any {
	return map[string]any{
		"type":        "feed",
		"feed_id":     f.ID,
		"title":       f.Title,
		"description": f.Description,
		"url":         f.URL,
	}
}

func episodeDoc(ep *storage.Episode) map[string]any {
	return map[string]any{
		"type":        "episode",
		"feed_id":     ep.FeedID,
		"title":       ep.Title,
		"description": ep.Description,
		"url":         ep.AudioURL,
	}
}

func docIDForFeed(id string) string    { return "feed:" + id }
func docIDForEpisode(id string) string { return "episode:" + id }

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// tokenize breaks a query into lowercase alphanumeric terms, dropping
// single-character fragments.
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if current.Len() > 1 {
		terms = append(terms, current.String())
	}

	return terms
}
