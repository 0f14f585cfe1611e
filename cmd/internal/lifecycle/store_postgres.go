package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

const (
	slotActive  = "active"
	slotPassive = "passive"
)

// PostgresSchema creates the token table. It is idempotent.
const PostgresSchema = `
CREATE SCHEMA IF NOT EXISTS rotator;
CREATE TABLE IF NOT EXISTS rotator.jws_tokens (
	id          text PRIMARY KEY,
	slot        text NOT NULL,
	position    integer NOT NULL,
	token       text NOT NULL,
	created_at  timestamptz NOT NULL,
	expires_at  timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS jws_tokens_slot_position_idx ON rotator.jws_tokens (slot, position);
`

// PostgresStore implements Store using PostgreSQL (rotator.jws_tokens).
//
// Each token is one row tagged with its slot. Save rewrites the active slot and
// the passive slot inside a single transaction.
//
// Postgres keeps timestamps at microsecond resolution.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore creates a Postgres-backed token store. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{pool: pool, log: log}
}

// EnsureSchema applies PostgresSchema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", ErrStore, err)
	}
	return nil
}

// Save replaces both slots atomically.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStore, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM rotator.jws_tokens`); err != nil {
		return fmt.Errorf("%w: clear slots: %w", ErrStore, err)
	}

	if snap.Active != nil {
		if err := insertTokenTx(ctx, tx, slotActive, 0, *snap.Active); err != nil {
			return fmt.Errorf("%w: active: %w", ErrStore, err)
		}
	}
	for i, p := range snap.Passive {
		if err := insertTokenTx(ctx, tx, slotPassive, i, p); err != nil {
			return fmt.Errorf("%w: passive %d: %w", ErrStore, i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStore, err)
	}
	return nil
}

func insertTokenTx(ctx context.Context, tx pgx.Tx, slot string, position int, info Info) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO rotator.jws_tokens (id, slot, position, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ulid.Make().String(), slot, position, info.Token(), info.CreatedAt(), info.ExpiresAt())
	return err
}

// Load reads both slots. Rows that fail validation are dropped individually.
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot, position, token, created_at, expires_at
		FROM rotator.jws_tokens
		ORDER BY slot, position
	`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: query: %w", ErrStore, err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var (
			slot     string
			position int
			tok      string
			created  time.Time
			expires  time.Time
		)
		if err := rows.Scan(&slot, &position, &tok, &created, &expires); err != nil {
			s.drop("row", err)
			continue
		}

		info, err := NewInfo(tok, created, expires)
		if err != nil {
			s.drop(slot+"."+strconv.Itoa(position), err)
			continue
		}

		switch slot {
		case slotActive:
			if snap.Active != nil {
				s.drop("active."+strconv.Itoa(position), fmt.Errorf("duplicate active row"))
				continue
			}
			snap.Active = &info
		case slotPassive:
			snap.Passive = append(snap.Passive, info)
		default:
			s.drop(slot, fmt.Errorf("unknown slot %q", slot))
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: rows: %w", ErrStore, err)
	}
	return snap, nil
}

func (s *PostgresStore) drop(record string, cause error) {
	s.log.Warn("lifecycle.store.record.drop",
		"record", record,
		"err", fmt.Errorf("%w: %w", ErrCorruptRecord, cause),
	)
}

// Clear deletes all token rows.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rotator.jws_tokens`); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrStore, err)
	}
	return nil
}
