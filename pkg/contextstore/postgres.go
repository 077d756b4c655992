package contextstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only to run migrations
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is a BlockContextStorage backed directly by pgx (no ORM).
// Schema migrations run through golang-migrate via a throwaway
// database/sql connection using the pgx stdlib driver; all runtime
// reads/writes go through the pgxpool pool instead.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, runs pending migrations, and returns a ready
// PostgresStore.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("contextstore: migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("contextstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("contextstore: ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, documentID, blockID string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO block_contexts (document_id, block_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (document_id, block_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, documentID, blockID, data)
	if err != nil {
		return fmt.Errorf("contextstore: save %s/%s: %w", documentID, blockID, err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, documentID, blockID string) ([]byte, bool, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `
		SELECT data FROM block_contexts WHERE document_id = $1 AND block_id = $2
	`, documentID, blockID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("contextstore: load %s/%s: %w", documentID, blockID, err)
	}
	return data, true, nil
}

func (p *PostgresStore) Delete(ctx context.Context, documentID, blockID string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM block_contexts WHERE document_id = $1 AND block_id = $2
	`, documentID, blockID)
	if err != nil {
		return fmt.Errorf("contextstore: delete %s/%s: %w", documentID, blockID, err)
	}
	return nil
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM block_contexts WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("contextstore: delete document %s: %w", documentID, err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
