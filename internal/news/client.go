// Package news implements the article sources feeding the daily digest: an
// HTTP news-search provider and an RSS feed, both degrading to a static
// fallback list so a batch never goes out empty.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

const (
	maxArticles       = 5
	maxDescriptionLen = 250
	pageSize          = 10

	// Providers replace withdrawn content with this title instead of
	// dropping the item from the response.
	removedTombstone = "[Removed]"
)

type APISource struct {
	baseURL string
	apiKey  string
	query   string
	client  *http.Client
}

func NewAPISource(baseURL, apiKey, query string, timeout time.Duration) *APISource {
	return &APISource{
		baseURL: baseURL,
		apiKey:  apiKey,
		query:   query,
		client:  &http.Client{Timeout: timeout},
	}
}

type apiArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
}

type apiResponse struct {
	Status   string       `json:"status"`
	Articles []apiArticle `json:"articles"`
}

// Fetch returns at most maxArticles recent items matching the configured
// query. Provider failure is never fatal: any transport error, non-2xx
// response or missing credential degrades to the static fallback list and
// the returned error is always nil.
func (s *APISource) Fetch(ctx context.Context) (model.Digest, error) {
	if s.apiKey == "" {
		log.Printf("[ERROR] news api key is not configured, using fallback articles")
		return fallbackDigest(), nil
	}

	log.Printf("[INFO] fetching news from provider")

	body, err := s.get(ctx)
	if err != nil {
		log.Printf("[ERROR] failed to fetch news: %v", err)
		return fallbackDigest(), nil
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("[ERROR] failed to decode news response: %v", err)
		return fallbackDigest(), nil
	}

	articles := collectArticles(resp.Articles)
	log.Printf("[INFO] fetched %d articles from provider", len(articles))

	return model.Digest{Articles: articles}, nil
}

func (s *APISource) get(ctx context.Context) ([]byte, error) {
	params := url.Values{}
	params.Set("q", s.query)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("from", time.Now().AddDate(0, 0, -1).Format("2006-01-02"))
	params.Set("pageSize", fmt.Sprint(pageSize))
	params.Set("apiKey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func collectArticles(in []apiArticle) []model.Article {
	now := time.Now().UTC()

	kept := lo.Filter(in, func(a apiArticle, _ int) bool {
		return a.Title != "" && a.URL != "" && a.Description != "" && a.Title != removedTombstone
	})

	articles := lo.Map(kept, func(a apiArticle, _ int) model.Article {
		return model.Article{
			Title:       a.Title,
			URL:         a.URL,
			Description: truncateDescription(a.Description),
			Source:      a.Source.Name,
			PublishedAt: parseTime(a.PublishedAt),
			FetchedAt:   now,
			Category:    "AI",
		}
	})

	if len(articles) > maxArticles {
		articles = articles[:maxArticles]
	}
	return articles
}

// truncateDescription bounds a description to maxDescriptionLen characters
// including the ellipsis marker.
func truncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= maxDescriptionLen {
		return description
	}
	return string(runes[:maxDescriptionLen-3]) + "..."
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func fallbackDigest() model.Digest {
	return model.Digest{Articles: FallbackArticles(), Fallback: true}
}
