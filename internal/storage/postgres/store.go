// Package postgres хранит снимок датасета в PostgreSQL (database/sql + pgx).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultConnTimeout = 5 * time.Second

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolOptions: параметры пула database/sql.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolOptions подходит для одного инстанса дашборда.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    10,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Option меняет PoolOptions при Open.
type Option func(*PoolOptions)

// WithMaxOpenConns ограничивает число соединений; idle-лимит не превышает его.
func WithMaxOpenConns(n int) Option {
	return func(o *PoolOptions) {
		if n <= 0 {
			return
		}
		o.MaxOpenConns = n
		o.MaxIdleConns = min(o.MaxIdleConns, n)
	}
}

// WithConnMaxLifetime задаёт время жизни соединения.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *PoolOptions) {
		if d > 0 {
			o.ConnMaxLifetime = d
		}
	}
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db   *sql.DB
	pool PoolOptions
}

// Open открывает пул и пингует базу; при ошибке пинга пул закрывается.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool := DefaultPoolOptions()
	for _, opt := range opts {
		opt(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := &Store{db: db, pool: pool}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает raw SQL DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Pool возвращает применённые параметры пула.
func (s *Store) Pool() PoolOptions {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул; на nil-хранилище ничего не делает.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
