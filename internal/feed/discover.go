package feed

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"podhound/internal/config"
	"podhound/internal/debuglog"
	"podhound/internal/storage"
	"podhound/internal/validation"
)

// ConfirmedFeed is a candidate URL that fetched and parsed as a feed,
// annotated with the feed's self-reported metadata.
type ConfirmedFeed struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	EpisodeCount int    `json:"episode_count"`
}

// CandidateLink is a URL extracted from page markup that might reference a
// feed, together with what suggested it. Candidates only live for the
// duration of a Discover call.
type CandidateLink struct {
	URL  string
	Hint string // "link", "anchor" or "well-known"
}

var (
	feedMIMEPattern  = regexp.MustCompile(`(?i)(rss|atom|xml)`)
	feedTokenPattern = regexp.MustCompile(`(?i)(rss|feed|atom|podcast)`)
)

// Resolver turns an arbitrary web page URL into zero or more confirmed feed
// URLs. It performs network I/O only; persisting results is the caller's
// decision.
type Resolver struct {
	fetcher        *Fetcher
	parser         *Parser
	validator      *validation.URLValidator
	maxCandidates  int
	wellKnownPaths []string
}

func NewResolver(cfg *config.Config, validator *validation.URLValidator) *Resolver {
	return &Resolver{
		fetcher:        NewFetcher(cfg),
		parser:         NewParser(),
		validator:      validator,
		maxCandidates:  cfg.Discovery.MaxCandidates,
		wellKnownPaths: cfg.Discovery.WellKnownPaths,
	}
}

// Discover fetches pageURL, extracts candidate feed links from its markup,
// and confirms each candidate by parsing it as a feed. Candidates that fail
// to parse are dropped silently; an empty result means the page has no
// feeds, not that the call failed.
func (r *Resolver) Discover(ctx context.Context, pageURL string) ([]ConfirmedFeed, error) {
	normalized, err := r.validator.ValidateAndNormalize(pageURL)
	if err != nil {
		return nil, &InvalidInputError{Input: pageURL, Err: err}
	}

	body, err := r.fetcher.FetchPage(ctx, normalized)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(normalized)
	if err != nil {
		return nil, &InvalidInputError{Input: pageURL, Err: err}
	}

	candidates, err := extractCandidates(base, body, r.wellKnownPaths)
	if err != nil {
		return nil, &ParseError{URL: normalized, Err: err}
	}

	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}

	confirmed := make([]ConfirmedFeed, 0, len(candidates))
	for _, candidate := range candidates {
		feed, probeErr := r.probe(ctx, candidate.URL)
		if probeErr != nil {
			debuglog.WithFields(map[string]any{
				"candidate": candidate.URL,
				"hint":      candidate.Hint,
			}).Debugf("candidate rejected: %v", probeErr)
			continue
		}
		confirmed = append(confirmed, *feed)
	}

	return confirmed, nil
}

// probe fetches a single candidate and tries to parse it as a feed.
func (r *Resolver) probe(ctx context.Context, candidateURL string) (*ConfirmedFeed, error) {
	body, _, err := r.fetcher.FetchFeed(ctx, &storage.Feed{URL: candidateURL})
	if err != nil {
		return nil, err
	}

	info, err := r.parser.Parse(bytes.NewReader(body), "probe")
	if err != nil {
		return nil, &ParseError{URL: candidateURL, Err: err}
	}

	return &ConfirmedFeed{
		URL:          candidateURL,
		Title:        info.Title,
		Description:  info.Description,
		EpisodeCount: len(info.Episodes),
	}, nil
}

// extractCandidates pulls candidate links out of page markup. Structural
// <link rel=alternate> elements come first, then anchors whose URL looks
// feed-like, then the well-known paths podcast sites commonly publish under.
// The result is de-duplicated by absolute URL, preserving first-seen order.
func extractCandidates(base *url.URL, body []byte, wellKnownPaths []string) ([]CandidateLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var candidates []CandidateLink

	add := func(raw, hint string) {
		abs := resolveCandidate(base, raw)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		candidates = append(candidates, CandidateLink{URL: abs, Hint: hint})
	}

	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel, _ := sel.Attr("rel")
		typ, _ := sel.Attr("type")
		if !strings.Contains(strings.ToLower(rel), "alternate") {
			return
		}
		if !feedMIMEPattern.MatchString(typ) {
			return
		}
		href, _ := sel.Attr("href")
		add(href, "link")
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		parsed, parseErr := url.Parse(strings.TrimSpace(href))
		if parseErr != nil {
			return
		}
		if !feedTokenPattern.MatchString(parsed.Path) && !feedTokenPattern.MatchString(parsed.RawQuery) {
			return
		}
		add(href, "anchor")
	})

	root := &url.URL{Scheme: base.Scheme, Host: base.Host}
	for _, path := range wellKnownPaths {
		add(root.String()+path, "well-known")
	}

	return candidates, nil
}

// resolveCandidate turns a raw href into an absolute http(s) URL, or ""
// when the href cannot reference a feed.
func resolveCandidate(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
