package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/dgduncan/go-query-cache/tokens"
)

var (
	// ErrPingFailed is returned if the initial ping to the database returns an error
	ErrPingFailed = errors.New("ping returned error")
)

var (
	//go:embed create_table.sql
	queryCreateTable string
	//go:embed delete_expired.sql
	queryDeleteExpired string
	//go:embed fetch_by_key.sql
	queryFetchByKey string
	//go:embed upsert_item.sql
	queryUpsertItem string
	//go:embed delete_item.sql
	queryDeleteItem string
)

// Config defines the configuration options for the PostgreSQL token store.
type Config struct {
	// DeleteExpiredItems enables automatic cleanup of expired rows
	// through a background task.
	DeleteExpiredItems bool

	// ExpiredTaskTimer defines the interval at which the cleanup task runs.
	// Shorter durations may impact database performance.
	ExpiredTaskTimer time.Duration

	// ItemExpiration defines how long a stored token remains readable.
	ItemExpiration time.Duration
}

// Store implements tokens.Store using PostgreSQL as the storage backend.
type Store struct {
	db *sql.DB

	expiration time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Get returns the value stored under k if it exists and has not expired.
// Returns tokens.ErrNoToken otherwise.
func (p *Store) Get(ctx context.Context, k string) (string, error) {
	stmt, err := p.db.PrepareContext(ctx, queryFetchByKey)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	var value string
	if err := stmt.QueryRowContext(ctx, k, p.now().UTC()).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", tokens.ErrNoToken
		}
		return "", err
	}

	return value, nil
}

// Set stores v under k, replacing any previous value and restarting its
// expiration.
func (p *Store) Set(ctx context.Context, k, v string) error {
	stmt, err := p.db.PrepareContext(ctx, queryUpsertItem)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := p.now().UTC()
	_, err = stmt.ExecContext(ctx, k, v, now, now.Add(p.expiration))
	return err
}

// Delete removes k. Deleting a missing key is not an error.
func (p *Store) Delete(ctx context.Context, k string) error {
	stmt, err := p.db.PrepareContext(ctx, queryDeleteItem)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, k)
	return err
}

func createTable(ctx context.Context, db *sql.DB) error {
	stmt, err := db.PrepareContext(ctx, queryCreateTable)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx)
	return err
}

func deleteExpiredItems(ctx context.Context, db *sql.DB, now time.Time) error {
	stmt, err := db.PrepareContext(ctx, queryDeleteExpired)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, now)
	return err
}

func (p *Store) expiredTask(ctx context.Context, interval time.Duration) {
	t := time.NewTimer(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.DebugContext(ctx, "stopping expired token sweeper")
			return
		case <-t.C:
			if err := deleteExpiredItems(ctx, p.db, p.now().UTC()); err != nil {
				p.logger.WarnContext(ctx, "error deleting expired tokens", "error", err)
			}
			_ = t.Reset(interval)
		}
	}
}

// New creates a PostgreSQL token store. It verifies the connection, creates
// the table if needed, and optionally starts the sweeper for expired rows,
// which runs until ctx is done.
//
// Returns an error if:
// - db is nil
// - The database connection test fails
// - Table creation fails
func New(ctx context.Context, db *sql.DB, config *Config, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, tokens.ValidationError{Reason: "nil database"}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrPingFailed, err)
	}

	if err := createTable(ctx, db); err != nil {
		return nil, err
	}

	p := &Store{
		db:         db,
		expiration: tokens.DefaultItemExpiration,
		now:        time.Now,
		logger:     logger,
	}

	if config != nil {
		if config.ItemExpiration > 0 {
			p.expiration = config.ItemExpiration
		}
		if config.DeleteExpiredItems {
			interval := config.ExpiredTaskTimer
			if interval <= 0 {
				interval = tokens.DefaultExpiredTaskTimer
			}
			go p.expiredTask(ctx, interval)
		}
	}

	return p, nil
}
