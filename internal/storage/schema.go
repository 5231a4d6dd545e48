// Package storage provides the Postgres persistence layer: subscribers,
// fetched articles and the append-only delivery log.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	id            BIGSERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	subscribed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	last_sent_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS articles (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL UNIQUE,
	description  TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	category     TEXT NOT NULL DEFAULT 'AI'
);

CREATE TABLE IF NOT EXISTS delivery_log (
	id            BIGSERIAL PRIMARY KEY,
	subscriber_id BIGINT NOT NULL REFERENCES subscribers (id),
	sent_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	article_count INT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_delivery_log_subscriber ON delivery_log (subscriber_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_articles_fetched ON articles (fetched_at);
`

func InitSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
