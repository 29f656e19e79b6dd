// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/finance"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound возвращается, если запрошенная запись отсутствует.
var ErrNotFound = errors.New("not found")

var (
	// ErrMemberNotFound возвращается, если участник не найден.
	ErrMemberNotFound = fmt.Errorf("member %w", ErrNotFound)
	// ErrLoanNotFound возвращается, если займ не найден или удалён.
	ErrLoanNotFound = fmt.Errorf("loan %w", ErrNotFound)
	// ErrGroupNotFound возвращается, если группа не найдена.
	ErrGroupNotFound = fmt.Errorf("rotating group %w", ErrNotFound)
	// ErrRoundNotFound возвращается, если раунд не найден.
	ErrRoundNotFound = fmt.Errorf("round %w", ErrNotFound)
	// ErrContributionNotFound возвращается, если взнос не найден.
	ErrContributionNotFound = fmt.Errorf("contribution %w", ErrNotFound)
	// ErrPenaltyNotFound возвращается, если штраф не найден.
	ErrPenaltyNotFound = fmt.Errorf("penalty %w", ErrNotFound)
	// ErrGroupMemberNotFound возвращается, если участник не состоит в группе.
	ErrGroupMemberNotFound = fmt.Errorf("group member %w", ErrNotFound)
	// ErrDuplicateContribution возвращается при повторном взносе участника в раунд в строгом режиме.
	ErrDuplicateContribution = errors.New("contribution already recorded for member in round")
	// ErrLedgerNotEmpty возвращается при удалении группы или раунда, по которым есть взносы или штрафы.
	ErrLedgerNotEmpty = errors.New("contributions or penalties are recorded")
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// inTx выполняет fn в транзакции с повтором при конфликте сериализации.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// retryDelays задаёт паузы между повторами транзакции.
var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

func retryBackoff() retry.Backoff {
	var attempt int
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= len(retryDelays) {
			return 0, true
		}
		d := retryDelays[attempt]
		attempt++
		return d, false
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, retryBackoff(), func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

func centsPtr(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	c := finance.ToCents(*d)
	return &c
}

func decimalPtr(c *int64) *decimal.Decimal {
	if c == nil {
		return nil
	}
	d := finance.FromCents(*c)
	return &d
}

func parseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", s, err)
	}
	return d, nil
}
