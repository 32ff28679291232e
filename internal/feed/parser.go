package feed

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"

	"podhound/internal/storage"
)

// FeedInfo is the typed result of parsing a feed document: the feed's
// self-reported metadata plus its episodes mapped to storage models.
type FeedInfo struct {
	Title       string
	Description string
	SiteURL     string
	Episodes    []*storage.Episode
}

type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
	}
}

// Parse reads a feed document and maps it onto storage models. Entries keep
// their upstream GUID as identity; entries without one fall back to the
// enclosure URL, then the item link, so identifiers stay stable across
// refreshes.
func (p *Parser) Parse(reader io.Reader, feedID string) (*FeedInfo, error) {
	parsed, err := p.parser.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	info := &FeedInfo{
		Title:       parsed.Title,
		Description: parsed.Description,
		SiteURL:     parsed.Link,
		Episodes:    make([]*storage.Episode, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		guid := episodeGUID(item)
		if guid == "" {
			// No usable identity at all; cannot deduplicate across
			// refreshes, so the entry is rejected at the parse boundary.
			continue
		}

		episode := &storage.Episode{
			ID:          generateID(feedID, guid),
			FeedID:      feedID,
			GUID:        guid,
			Title:       item.Title,
			Description: item.Description,
		}

		if enc := audioEnclosure(item); enc != nil {
			episode.AudioURL = enc.URL
			episode.AudioType = enc.Type
		}

		if item.ITunesExt != nil {
			episode.Duration = item.ITunesExt.Duration
		}

		if item.PublishedParsed != nil {
			episode.Published = *item.PublishedParsed
		}
		if item.UpdatedParsed != nil {
			episode.Updated = *item.UpdatedParsed
		}

		info.Episodes = append(info.Episodes, episode)
	}

	return info, nil
}

func episodeGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if enc := audioEnclosure(item); enc != nil {
		return enc.URL
	}
	return item.Link
}

// audioEnclosure picks the item's audio enclosure, preferring an explicit
// audio/* type and falling back to the first enclosure with a URL.
func audioEnclosure(item *gofeed.Item) *gofeed.Enclosure {
	var first *gofeed.Enclosure
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") {
			return enc
		}
		if first == nil {
			first = enc
		}
	}
	return first
}

func generateID(feedID, guid string) string {
	return fmt.Sprintf("%s:%s", feedID, guid)
}
