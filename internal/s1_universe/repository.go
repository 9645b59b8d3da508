package s1_universe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/earningsedge/internal/contracts"
)

// Repository handles data persistence for S1
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const universeSchema = `
	CREATE SCHEMA IF NOT EXISTS edge;
	CREATE TABLE IF NOT EXISTS edge.universe_snapshots (
		id          BIGSERIAL   PRIMARY KEY,
		symbols     TEXT[]      NOT NULL,
		total_count INTEGER     NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS edge.universe_splits (
		name          TEXT             PRIMARY KEY,
		train         TEXT[]           NOT NULL,
		test          TEXT[]           NOT NULL,
		seed          BIGINT           NOT NULL,
		test_fraction DOUBLE PRECISION NOT NULL,
		created_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	);
`

// EnsureSchema creates the universe tables when they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, universeSchema); err != nil {
		return fmt.Errorf("create universe schema: %w", err)
	}
	return nil
}

// SaveUniverse appends a universe snapshot
func (r *Repository) SaveUniverse(ctx context.Context, universe *contracts.Universe) error {
	query := `
		INSERT INTO edge.universe_snapshots (symbols, total_count, created_at)
		VALUES ($1, $2, NOW())
	`

	if _, err := r.db.Exec(ctx, query, universe.Symbols, universe.Count()); err != nil {
		return fmt.Errorf("insert universe: %w", err)
	}
	return nil
}

// GetLatestUniverse retrieves the most recent universe snapshot
func (r *Repository) GetLatestUniverse(ctx context.Context) (*contracts.Universe, time.Time, error) {
	query := `
		SELECT symbols, created_at
		FROM edge.universe_snapshots
		ORDER BY id DESC
		LIMIT 1
	`

	universe := &contracts.Universe{}
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query).Scan(&universe.Symbols, &createdAt); err != nil {
		return nil, time.Time{}, fmt.Errorf("query latest universe: %w", err)
	}
	return universe, createdAt, nil
}

// SaveSplit stores a named split, replacing an existing one of the same name
func (r *Repository) SaveSplit(ctx context.Context, name string, split *contracts.UniverseSplit, cfg SplitConfig) error {
	if err := checkDisjoint(split); err != nil {
		return err
	}

	query := `
		INSERT INTO edge.universe_splits (name, train, test, seed, test_fraction, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (name) DO UPDATE SET
			train = EXCLUDED.train,
			test = EXCLUDED.test,
			seed = EXCLUDED.seed,
			test_fraction = EXCLUDED.test_fraction,
			created_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, name, split.Train, split.Test, cfg.Seed, cfg.TestFraction); err != nil {
		return fmt.Errorf("upsert split: %w", err)
	}
	return nil
}

// GetSplit loads a named split; a missing row is an ArtifactError
func (r *Repository) GetSplit(ctx context.Context, name string) (*contracts.UniverseSplit, error) {
	query := `SELECT train, test FROM edge.universe_splits WHERE name = $1`

	split := &contracts.UniverseSplit{}
	err := r.db.QueryRow(ctx, query, name).Scan(&split.Train, &split.Test)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contracts.ArtifactError{Path: "edge.universe_splits/" + name, Producer: "edge universe split --db"}
	}
	if err != nil {
		return nil, fmt.Errorf("query split: %w", err)
	}
	return split, nil
}
