// Package postgres は pgx を使った storage.Store 実装です。
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourusername/bookflow/internal/storage"
)

// Store が storage.Store を満たすことをコンパイル時に確認します。
var _ storage.Store = (*Store)(nil)

const uniqueViolation = "23505"

// Store は PostgreSQL にレコードを保存します。スキーマは internal/database のマイグレーションで作成します。
type Store struct {
	pool *pgxpool.Pool
}

// New はコネクションプールを作成して疎通を確認します。
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping はデータベースへの疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close はコネクションプールを解放します。
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrAlreadyExists
	}
	return err
}

func (s *Store) deleteByID(ctx context.Context, table, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
