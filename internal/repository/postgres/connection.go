package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB - подмножество pgxpool.Pool, которым пользуются репозитории. Его же реализует pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewConnection создает новое подключение к PostgreSQL
func NewConnection(ctx context.Context, connString string, log *logger.Logger) (*pgxpool.Pool, error) {
	log.Infow("Connecting to PostgreSQL")

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Настраиваем пул соединений
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Проверяем подключение
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Infow("Successfully connected to PostgreSQL")
	return pool, nil
}

// Connector открывает реальный пул. В тестах подменяется.
type Connector func(ctx context.Context) (DB, func(), error)

// connectTimeout ограничивает одну попытку подключения.
const connectTimeout = 10 * time.Second

// LazyPool подключается к базе при первом запросе и переиспользует пул.
// Одновременные первые запросы ждут одну попытку; неудачная попытка не запоминается.
type LazyPool struct {
	mu      sync.Mutex
	db      DB
	closeFn func()
	connect Connector
	log     *logger.Logger
}

// NewLazyPool создает ленивый пул для строки подключения.
func NewLazyPool(connString string, log *logger.Logger) *LazyPool {
	return NewLazyPoolWith(func(ctx context.Context) (DB, func(), error) {
		pool, err := NewConnection(ctx, connString, log)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool.Close, nil
	}, log)
}

// NewLazyPoolWith создает ленивый пул с произвольным способом подключения.
func NewLazyPoolWith(connect Connector, log *logger.Logger) *LazyPool {
	return &LazyPool{connect: connect, log: log}
}

func (p *LazyPool) get(ctx context.Context) (DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}
	// Подключение не зависит от отмены запроса первого вызывающего
	connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
	defer cancel()
	db, closeFn, err := p.connect(connectCtx)
	if err != nil {
		p.log.Errorw("Database connection failed", "error", err)
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	p.db, p.closeFn = db, closeFn
	return db, nil
}

// Connect подключается заранее (например, при старте или для migrate).
func (p *LazyPool) Connect(ctx context.Context) error {
	_, err := p.get(ctx)
	return err
}

func (p *LazyPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db, err := p.get(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return db.Exec(ctx, sql, args...)
}

func (p *LazyPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, sql, args...)
}

func (p *LazyPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db, err := p.get(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return db.QueryRow(ctx, sql, args...)
}

func (p *LazyPool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	db, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return db.BeginTx(ctx, txOptions)
}

// Close закрывает пул, если он был открыт.
func (p *LazyPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closeFn != nil {
		p.closeFn()
	}
	p.db, p.closeFn = nil, nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
