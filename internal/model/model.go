// Package model defines the data structures used in the dailyDigest application, including Subscriber, Article, and DeliveryLogEntry. These structures represent mailing-list members, fetched news items, and the per-recipient delivery audit trail stored in the database, respectively.
package model

import "time"

type Subscriber struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	SubscribedAt time.Time  `json:"subscribed_at"`
	IsActive     bool       `json:"is_active"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
}

type Article struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Category    string     `json:"category"`
}

// Digest is the article set shared by every recipient of one batch run.
// Fallback reports that the provider was unavailable and the static list
// was used instead.
type Digest struct {
	Articles []Article
	Fallback bool
}

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// DeliveryLogEntry is one append-only audit row per (subscriber, run).
type DeliveryLogEntry struct {
	ID           int64     `json:"id"`
	SubscriberID int64     `json:"subscriber_id"`
	SentAt       time.Time `json:"sent_at"`
	ArticleCount int       `json:"article_count"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

type RunSummary struct {
	StartedAt    time.Time `json:"started_at"`
	Attempted    int       `json:"attempted"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	ArticleCount int       `json:"article_count"`
	Fallback     bool      `json:"fallback"`
}

// SendResult is the per-recipient outcome returned by the manual trigger.
type SendResult struct {
	Email string `json:"email"`
	OK    bool   `json:"ok"`
}
