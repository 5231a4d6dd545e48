package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

type SubscriberPostgresStorage struct {
	db *sqlx.DB
}

func NewSubscriberStorage(db *sqlx.DB) *SubscriberPostgresStorage {
	return &SubscriberPostgresStorage{db: db}
}

type dbSubscriber struct {
	ID           int64      `db:"id"`
	Email        string     `db:"email"`
	SubscribedAt time.Time  `db:"subscribed_at"`
	IsActive     bool       `db:"is_active"`
	LastSentAt   *time.Time `db:"last_sent_at"`
}

// ActiveSubscribers returns the recipient snapshot for one batch run,
// ordered by id so delivery order is stable between runs.
func (s *SubscriberPostgresStorage) ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	var rows []dbSubscriber
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, email, subscribed_at, is_active, last_sent_at
		 FROM subscribers WHERE is_active ORDER BY id`,
	); err != nil {
		return nil, err
	}

	return lo.Map(rows, func(row dbSubscriber, _ int) model.Subscriber {
		return model.Subscriber(row)
	}), nil
}

// ByEmail returns the subscriber with the given address or nil when the
// address was never subscribed.
func (s *SubscriberPostgresStorage) ByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	var row dbSubscriber
	err := s.db.GetContext(ctx, &row,
		`SELECT id, email, subscribed_at, is_active, last_sent_at
		 FROM subscribers WHERE email = $1`, email,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	subscriber := model.Subscriber(row)
	return &subscriber, nil
}

func (s *SubscriberPostgresStorage) Add(ctx context.Context, email string) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO subscribers (email) VALUES ($1) RETURNING id`, email,
	).Scan(&id)
	return id, err
}

// Reactivate flips an unsubscribed address back to active and resets the
// subscription timestamp; prior delivery-log rows are untouched.
func (s *SubscriberPostgresStorage) Reactivate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET is_active = TRUE, subscribed_at = now() WHERE id = $1`, id,
	)
	return err
}

// Deactivate marks an address unsubscribed. Rows are never deleted so the
// delivery history stays attributable.
func (s *SubscriberPostgresStorage) Deactivate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET is_active = FALSE WHERE id = $1`, id,
	)
	return err
}

func (s *SubscriberPostgresStorage) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM subscribers WHERE is_active`,
	)
	return count, err
}

func (s *SubscriberPostgresStorage) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM subscribers WHERE is_active AND subscribed_at >= $1`, since,
	)
	return count, err
}
