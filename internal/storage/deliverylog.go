package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

type DeliveryLogPostgresStorage struct {
	db *sqlx.DB
}

func NewDeliveryLogStorage(db *sqlx.DB) *DeliveryLogPostgresStorage {
	return &DeliveryLogPostgresStorage{db: db}
}

// CommitRun persists everything one batch run staged: the last-sent
// timestamps of the subscribers that received mail and one log row per
// attempted recipient. All of it lands in a single transaction so a run is
// either fully recorded or not at all.
func (s *DeliveryLogPostgresStorage) CommitRun(
	ctx context.Context,
	sentAt map[int64]time.Time,
	entries []model.DeliveryLogEntry,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for subscriberID, at := range sentAt {
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscribers SET last_sent_at = $1 WHERE id = $2`, at, subscriberID,
		); err != nil {
			return fmt.Errorf("update last_sent_at for subscriber %d: %w", subscriberID, err)
		}
	}

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO delivery_log (subscriber_id, sent_at, article_count, status, error_message)
			 VALUES ($1, $2, $3, $4, $5)`,
			entry.SubscriberID,
			entry.SentAt,
			entry.ArticleCount,
			entry.Status,
			entry.ErrorMessage,
		); err != nil {
			return fmt.Errorf("insert delivery log row for subscriber %d: %w", entry.SubscriberID, err)
		}
	}

	return tx.Commit()
}

func (s *DeliveryLogPostgresStorage) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM delivery_log WHERE status = $1`, status,
	)
	return count, err
}

// LastBatchTime reports when the most recent delivery attempt was logged,
// nil when no batch has run yet.
func (s *DeliveryLogPostgresStorage) LastBatchTime(ctx context.Context) (*time.Time, error) {
	var at time.Time
	err := s.db.GetContext(ctx, &at,
		`SELECT sent_at FROM delivery_log ORDER BY sent_at DESC LIMIT 1`,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
