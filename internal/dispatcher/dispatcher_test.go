package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

type fakeDirectory struct {
	subscribers []model.Subscriber
	err         error
}

func (f *fakeDirectory) ActiveSubscribers(context.Context) ([]model.Subscriber, error) {
	return f.subscribers, f.err
}

type fakeSource struct {
	digest model.Digest
	calls  int
}

func (f *fakeSource) Fetch(context.Context) (model.Digest, error) {
	f.calls++
	return f.digest, nil
}

type fakeMailer struct {
	sent    []string
	failFor map[string]error
	panicOn string
	block   chan struct{}
}

func (f *fakeMailer) SendDigest(ctx context.Context, email string, _ []model.Article) error {
	if f.block != nil {
		<-f.block
	}
	if email == f.panicOn {
		panic("smtp client blew up")
	}
	if err, ok := f.failFor[email]; ok {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	f.sent = append(f.sent, email)
	return nil
}

type fakeArticleStore struct {
	stored []model.Article
}

func (f *fakeArticleStore) Store(_ context.Context, article model.Article) error {
	f.stored = append(f.stored, article)
	return nil
}

type fakeRunStore struct {
	sentAt  map[int64]time.Time
	entries []model.DeliveryLogEntry
	commits int
	err     error
}

func (f *fakeRunStore) CommitRun(_ context.Context, sentAt map[int64]time.Time, entries []model.DeliveryLogEntry) error {
	f.commits++
	f.sentAt = sentAt
	f.entries = entries
	return f.err
}

func subscribers(emails ...string) []model.Subscriber {
	out := make([]model.Subscriber, len(emails))
	for i, email := range emails {
		out[i] = model.Subscriber{ID: int64(i + 1), Email: email, IsActive: true}
	}
	return out
}

func articles(n int) []model.Article {
	out := make([]model.Article, n)
	for i := range out {
		out[i] = model.Article{Title: "t", URL: "https://example.com", Description: "d"}
	}
	return out
}

func TestRunNoSubscribers(t *testing.T) {
	source := &fakeSource{digest: model.Digest{Articles: articles(3)}}
	runs := &fakeRunStore{}
	d := New(&fakeDirectory{}, source, &fakeMailer{}, nil, runs, time.Second)

	summary, results, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Attempted)
	assert.Zero(t, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.ArticleCount)
	assert.Empty(t, results)
	assert.Zero(t, source.calls, "articles must not be fetched for an empty snapshot")
	assert.Zero(t, runs.commits, "nothing must be committed for an empty snapshot")
}

func TestRunEmptyDigest(t *testing.T) {
	runs := &fakeRunStore{}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com")},
		&fakeSource{},
		&fakeMailer{},
		nil,
		runs,
		time.Second,
	)

	summary, results, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Attempted)
	assert.Zero(t, summary.ArticleCount)
	assert.Empty(t, results)
	assert.Zero(t, runs.commits)
}

func TestRunMixedOutcomes(t *testing.T) {
	mailer := &fakeMailer{failFor: map[string]error{
		"b@example.com": errors.New("mailbox full"),
	}}
	runs := &fakeRunStore{}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com", "b@example.com", "c@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(5)}},
		mailer,
		nil,
		runs,
		time.Second,
	)

	summary, results, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 5, summary.ArticleCount)
	assert.False(t, summary.StartedAt.IsZero())

	// One log row per snapshotted subscriber, regardless of outcome.
	require.Len(t, runs.entries, 3)
	require.Len(t, results, 3)

	var failed []model.DeliveryLogEntry
	for _, entry := range runs.entries {
		assert.Equal(t, 5, entry.ArticleCount)
		if entry.Status == model.StatusFailed {
			failed = append(failed, entry)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, int64(2), failed[0].SubscriberID)
	assert.Contains(t, failed[0].ErrorMessage, "mailbox full")

	// Only successful recipients get a last-sent update.
	assert.Len(t, runs.sentAt, 2)
	assert.Contains(t, runs.sentAt, int64(1))
	assert.Contains(t, runs.sentAt, int64(3))

	assert.Equal(t, []model.SendResult{
		{Email: "a@example.com", OK: true},
		{Email: "b@example.com", OK: false},
		{Email: "c@example.com", OK: true},
	}, results)
}

func TestRunPanicIsIsolated(t *testing.T) {
	mailer := &fakeMailer{panicOn: "b@example.com"}
	runs := &fakeRunStore{}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com", "b@example.com", "c@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(2)}},
		mailer,
		nil,
		runs,
		time.Second,
	)

	summary, _, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, mailer.sent)

	require.Len(t, runs.entries, 3)
	assert.Equal(t, model.StatusFailed, runs.entries[1].Status)
	assert.NotEmpty(t, runs.entries[1].ErrorMessage)
}

func TestRunSendTimeout(t *testing.T) {
	blocked := make(chan struct{})
	defer close(blocked)

	slowMailer := &slowFakeMailer{wait: blocked}
	runs := &fakeRunStore{}
	d := New(
		&fakeDirectory{subscribers: subscribers("slow@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(1)}},
		slowMailer,
		nil,
		runs,
		20*time.Millisecond,
	)

	summary, _, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, runs.entries, 1)
	assert.Equal(t, model.StatusFailed, runs.entries[0].Status)
	assert.NotEmpty(t, runs.entries[0].ErrorMessage)
}

// slowFakeMailer only returns once its context expires, standing in for an
// unresponsive transport.
type slowFakeMailer struct {
	wait chan struct{}
}

func (f *slowFakeMailer) SendDigest(ctx context.Context, _ string, _ []model.Article) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.wait:
		return nil
	}
}

func TestRunCommitFailure(t *testing.T) {
	runs := &fakeRunStore{err: errors.New("connection reset")}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(1)}},
		&fakeMailer{},
		nil,
		runs,
		time.Second,
	)

	summary, results, err := d.Run(context.Background())
	require.Error(t, err)

	// The summary still reflects what was transmitted even though the
	// bookkeeping was lost.
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
}

func TestRunFallbackDigestNotArchived(t *testing.T) {
	store := &fakeArticleStore{}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(5), Fallback: true}},
		&fakeMailer{},
		store,
		&fakeRunStore{},
		time.Second,
	)

	summary, _, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Fallback)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Empty(t, store.stored)
}

func TestRunFreshDigestArchived(t *testing.T) {
	store := &fakeArticleStore{}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(4)}},
		&fakeMailer{},
		store,
		&fakeRunStore{},
		time.Second,
	)

	_, _, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.stored, 4)
}

func TestRunConcurrentTriggerDropped(t *testing.T) {
	release := make(chan struct{})
	mailer := &fakeMailer{block: release}
	d := New(
		&fakeDirectory{subscribers: subscribers("a@example.com")},
		&fakeSource{digest: model.Digest{Articles: articles(1)}},
		mailer,
		nil,
		&fakeRunStore{},
		time.Second,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = d.Run(context.Background())
	}()

	// Wait until the first run is inside the send loop.
	require.Eventually(t, func() bool {
		if d.mu.TryLock() {
			d.mu.Unlock()
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)

	_, _, err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	<-done
}

func TestRunDirectoryFailure(t *testing.T) {
	d := New(
		&fakeDirectory{err: errors.New("db down")},
		&fakeSource{digest: model.Digest{Articles: articles(1)}},
		&fakeMailer{},
		nil,
		&fakeRunStore{},
		time.Second,
	)

	_, _, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active subscribers")
}
