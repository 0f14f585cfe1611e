package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"

	"rotator/cmd/internal/lifecycle"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// newTokenStore picks the token persistence backend:
//   - Postgres when a database URL is configured (the app owns the pool);
//   - memory only when the persistence path is empty;
//   - the properties-file store otherwise.
func newTokenStore(ctx context.Context, cfg Config, fs afero.Fs, log Logger) (lifecycle.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		st := lifecycle.NewPostgresStore(pool, log)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("store.postgres")
		return st, pool, nil
	}

	if cfg.Lifecycle.PersistencePath == "" {
		log.Warn("store.memory", "reason", "persistence disabled; tokens are lost on restart")
		return lifecycle.NewMemoryStore(), nil, nil
	}

	st, err := lifecycle.NewFileStore(fs, cfg.Lifecycle.PersistencePath, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("store.file", "dir", cfg.Lifecycle.PersistencePath, "has_data", st.HasPersistedData())
	return st, nil, nil
}
