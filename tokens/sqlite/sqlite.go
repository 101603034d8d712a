package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgduncan/go-query-cache/tokens"
)

var (
	//go:embed create_table.sql
	queryCreateTable string
	//go:embed fetch_by_key.sql
	queryFetchByKey string
	//go:embed upsert_item.sql
	queryUpsertItem string
	//go:embed delete_item.sql
	queryDeleteItem string
)

// Store implements tokens.Store on a local SQLite file, which is how a
// device keeps its session across restarts.
type Store struct {
	db *sql.DB

	now func() time.Time
}

func (s *Store) Get(ctx context.Context, k string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, queryFetchByKey, k).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", tokens.ErrNoToken
		}
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, k, v string) error {
	_, err := s.db.ExecContext(ctx, queryUpsertItem, k, v, s.now().UTC().Unix())
	return err
}

func (s *Store) Delete(ctx context.Context, k string) error {
	_, err := s.db.ExecContext(ctx, queryDeleteItem, k)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, tokens.ValidationError{Reason: "empty path"}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes
	// writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, queryCreateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}
