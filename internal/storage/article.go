package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

type ArticlePostgresStorage struct {
	db *sqlx.DB
}

func NewArticleStorage(db *sqlx.DB) *ArticlePostgresStorage {
	return &ArticlePostgresStorage{db: db}
}

type dbArticle struct {
	ID          int64      `db:"id"`
	Title       string     `db:"title"`
	URL         string     `db:"url"`
	Description string     `db:"description"`
	Source      string     `db:"source"`
	PublishedAt *time.Time `db:"published_at"`
	FetchedAt   time.Time  `db:"fetched_at"`
	Category    string     `db:"category"`
}

// Store upserts one fetched article keyed by URL; a re-fetch of the same
// URL overwrites the previous row.
func (s *ArticlePostgresStorage) Store(ctx context.Context, article model.Article) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (title, url, description, source, published_at, fetched_at, category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (url) DO UPDATE
		 SET title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     source = EXCLUDED.source,
		     published_at = EXCLUDED.published_at,
		     fetched_at = EXCLUDED.fetched_at,
		     category = EXCLUDED.category`,
		article.Title,
		article.URL,
		article.Description,
		article.Source,
		article.PublishedAt,
		article.FetchedAt,
		article.Category,
	)
	return err
}

// Latest returns the most recently fetched articles, newest first.
func (s *ArticlePostgresStorage) Latest(ctx context.Context, limit uint64) ([]model.Article, error) {
	var rows []dbArticle
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, title, url, description, source, published_at, fetched_at, category
		 FROM articles ORDER BY fetched_at DESC LIMIT $1`, limit,
	); err != nil {
		return nil, err
	}

	return lo.Map(rows, func(row dbArticle, _ int) model.Article {
		return model.Article(row)
	}), nil
}
