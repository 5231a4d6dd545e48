// Package dispatcher orchestrates one daily batch run: snapshot the active
// subscribers, fetch the shared article set once, deliver to each recipient
// in order, and commit the audit trail in a single transaction.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

// ErrRunInProgress is returned when a trigger fires while a run is still
// executing. The attempt is dropped, not queued.
var ErrRunInProgress = errors.New("a digest run is already in progress")

type SubscriberDirectory interface {
	ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error)
}

// ArticleSource must degrade to fallback content instead of failing; an
// error is treated like an empty digest and short-circuits the run.
type ArticleSource interface {
	Fetch(ctx context.Context) (model.Digest, error)
}

type Mailer interface {
	SendDigest(ctx context.Context, email string, articles []model.Article) error
}

type ArticleStorage interface {
	Store(ctx context.Context, article model.Article) error
}

type RunStorage interface {
	CommitRun(ctx context.Context, sentAt map[int64]time.Time, entries []model.DeliveryLogEntry) error
}

type Dispatcher struct {
	subscribers SubscriberDirectory
	source      ArticleSource
	mailer      Mailer
	articles    ArticleStorage
	runs        RunStorage
	sendTimeout time.Duration

	mu sync.Mutex
}

func New(
	subscribers SubscriberDirectory,
	source ArticleSource,
	mailer Mailer,
	articles ArticleStorage,
	runs RunStorage,
	sendTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		subscribers: subscribers,
		source:      source,
		mailer:      mailer,
		articles:    articles,
		runs:        runs,
		sendTimeout: sendTimeout,
	}
}

// Run executes one batch end to end and returns its summary along with the
// per-recipient outcomes. At most one run executes at a time; a concurrent
// call fails fast with ErrRunInProgress.
//
// A single recipient's failure never stops the loop: the outcome is staged
// as a failed log row and delivery continues. Only a failure to enumerate
// subscribers or to commit the staged state aborts the run, and even then
// the returned summary reflects what was actually attempted.
func (d *Dispatcher) Run(ctx context.Context) (model.RunSummary, []model.SendResult, error) {
	if !d.mu.TryLock() {
		return model.RunSummary{}, nil, ErrRunInProgress
	}
	defer d.mu.Unlock()

	summary := model.RunSummary{StartedAt: time.Now()}
	log.Printf("[INFO] starting daily digest run")

	subscribers, err := d.subscribers.ActiveSubscribers(ctx)
	if err != nil {
		return summary, nil, fmt.Errorf("list active subscribers: %w", err)
	}
	if len(subscribers) == 0 {
		log.Printf("[INFO] no active subscribers, skipping run")
		return summary, nil, nil
	}
	log.Printf("[INFO] found %d active subscribers", len(subscribers))

	digest, err := d.source.Fetch(ctx)
	if err != nil {
		log.Printf("[ERROR] article source failed: %v", err)
		return summary, nil, nil
	}
	if len(digest.Articles) == 0 {
		log.Printf("[INFO] no articles available, skipping run")
		return summary, nil, nil
	}

	summary.ArticleCount = len(digest.Articles)
	summary.Fallback = digest.Fallback
	summary.Attempted = len(subscribers)

	d.storeArticles(ctx, digest)

	var (
		results []model.SendResult
		entries []model.DeliveryLogEntry
		sentAt  = make(map[int64]time.Time)
	)

	for _, subscriber := range subscribers {
		entry := model.DeliveryLogEntry{
			SubscriberID: subscriber.ID,
			SentAt:       time.Now(),
			ArticleCount: len(digest.Articles),
		}

		if sendErr := d.send(ctx, subscriber.Email, digest.Articles); sendErr != nil {
			summary.Failed++
			entry.Status = model.StatusFailed
			entry.ErrorMessage = sendErr.Error()
			log.Printf("[ERROR] failed to send digest to %s: %v", subscriber.Email, sendErr)
		} else {
			summary.Succeeded++
			entry.Status = model.StatusSent
			sentAt[subscriber.ID] = entry.SentAt
			log.Printf("[INFO] digest sent to %s", subscriber.Email)
		}

		entries = append(entries, entry)
		results = append(results, model.SendResult{
			Email: subscriber.Email,
			OK:    entry.Status == model.StatusSent,
		})
	}

	var commitErr error
	if err := d.runs.CommitRun(ctx, sentAt, entries); err != nil {
		// Emails already transmitted cannot be un-sent; the log for this
		// run is lost and will under-report relative to actual delivery.
		log.Printf("[ERROR] failed to commit run results: %v", err)
		commitErr = fmt.Errorf("commit run results: %w", err)
	}

	log.Printf("[INFO] daily digest run completed: %d sent, %d failed, %d articles",
		summary.Succeeded, summary.Failed, summary.ArticleCount)

	return summary, results, commitErr
}

// send wraps one transmission with the uniform timeout and a panic safety
// net so a misbehaving transport surfaces as a failed log row instead of
// taking down the run.
func (d *Dispatcher) send(ctx context.Context, email string, articles []model.Article) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send panicked: %v", p)
		}
	}()

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	return d.mailer.SendDigest(sendCtx, email, articles)
}

// storeArticles records freshly fetched items for the read-side endpoints.
// Fallback content is static and never persisted. Store failures are
// logged and ignored; the batch matters more than the archive.
func (d *Dispatcher) storeArticles(ctx context.Context, digest model.Digest) {
	if digest.Fallback || d.articles == nil {
		return
	}
	for _, article := range digest.Articles {
		if err := d.articles.Store(ctx, article); err != nil {
			log.Printf("[ERROR] failed to store article %q: %v", article.URL, err)
		}
	}
}
