package news

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

// contextTransport injects a context into every outgoing request so that
// context cancellation and deadlines propagate through the rss library.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// RSSSource is an alternative digest provider backed by a single RSS feed,
// for deployments without a news-search API credential. It honors the same
// contract as APISource: bounded output, sanitized items, fallback on error.
type RSSSource struct {
	URL     string
	Name    string
	timeout time.Duration
}

func NewRSSSource(feedURL, name string, timeout time.Duration) *RSSSource {
	return &RSSSource{URL: feedURL, Name: name, timeout: timeout}
}

func (s *RSSSource) Fetch(ctx context.Context) (model.Digest, error) {
	feed, err := s.loadFeed(ctx)
	if err != nil {
		log.Printf("[ERROR] failed to fetch rss feed: %v", err)
		return fallbackDigest(), nil
	}

	now := time.Now().UTC()

	kept := lo.Filter(feed.Items, func(item *rss.Item, _ int) bool {
		return item.Title != "" && item.Link != "" && item.Summary != "" && item.Title != removedTombstone
	})

	articles := lo.Map(kept, func(item *rss.Item, _ int) model.Article {
		date := item.Date
		return model.Article{
			Title:       item.Title,
			URL:         item.Link,
			Description: truncateDescription(item.Summary),
			Source:      s.Name,
			PublishedAt: &date,
			FetchedAt:   now,
			Category:    "AI",
		}
	})

	if len(articles) > maxArticles {
		articles = articles[:maxArticles]
	}
	if len(articles) == 0 {
		log.Printf("[ERROR] rss feed yielded no usable items, using fallback articles")
		return fallbackDigest(), nil
	}

	return model.Digest{Articles: articles}, nil
}

func (s *RSSSource) loadFeed(ctx context.Context) (*rss.Feed, error) {
	client := &http.Client{
		Transport: contextTransport{ctx: ctx, base: http.DefaultTransport},
		Timeout:   s.timeout,
	}
	return rss.FetchByClient(s.URL, client)
}
