package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/earningsedge/internal/contracts"
)

// PanelRepository mirrors the feature panel into PostgreSQL
// ⭐ SSOT: 패널 DB 저장소는 여기서만
type PanelRepository struct {
	db *pgxpool.Pool
}

// NewPanelRepository creates a new PanelRepository instance
func NewPanelRepository(db *pgxpool.Pool) *PanelRepository {
	return &PanelRepository{db: db}
}

// Pool returns the underlying database pool
func (r *PanelRepository) Pool() *pgxpool.Pool {
	return r.db
}

const panelSchema = `
	CREATE SCHEMA IF NOT EXISTS edge;
	CREATE TABLE IF NOT EXISTS edge.panel_rows (
		symbol              TEXT             NOT NULL,
		trade_date          DATE             NOT NULL,
		open_price          DOUBLE PRECISION NOT NULL,
		high_price          DOUBLE PRECISION NOT NULL,
		low_price           DOUBLE PRECISION NOT NULL,
		close_price         DOUBLE PRECISION NOT NULL,
		adj_close           DOUBLE PRECISION NOT NULL,
		volume              DOUBLE PRECISION NOT NULL,
		split_coefficient   DOUBLE PRECISION NOT NULL,
		next_earnings_date  DATE,
		prev_earnings_date  DATE,
		days_to_earnings    INTEGER          NOT NULL,
		days_since_earnings INTEGER          NOT NULL,
		is_earnings_window  BOOLEAN          NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	);
`

// EnsureSchema creates the panel table when it does not exist
func (r *PanelRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, panelSchema); err != nil {
		return fmt.Errorf("create panel schema: %w", err)
	}
	return nil
}

var panelCopyColumns = []string{
	"symbol", "trade_date", "open_price", "high_price", "low_price", "close_price",
	"adj_close", "volume", "split_coefficient", "next_earnings_date", "prev_earnings_date",
	"days_to_earnings", "days_since_earnings", "is_earnings_window",
}

// SavePanel replaces the stored panel with rows in one transaction
func (r *PanelRepository) SavePanel(ctx context.Context, rows []contracts.FeatureRow) error {
	if err := r.EnsureSchema(ctx); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE edge.panel_rows`); err != nil {
		return fmt.Errorf("truncate panel: %w", err)
	}

	source := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		row := rows[i]
		return []any{
			row.Symbol, row.Date.Time, row.Open, row.High, row.Low, row.Close,
			row.AdjustedClose, row.Volume, row.SplitCoefficient,
			nullableDate(row.NextEarningsDate), nullableDate(row.PrevEarningsDate),
			row.DaysToEarnings, row.DaysSinceEarnings, row.IsEarningsWindow,
		}, nil
	})

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"edge", "panel_rows"}, panelCopyColumns, source); err != nil {
		return fmt.Errorf("copy panel rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit panel: %w", err)
	}
	return nil
}

// LoadPanel reads the stored panel back
func (r *PanelRepository) LoadPanel(ctx context.Context) (*Panel, error) {
	query := `
		SELECT symbol, trade_date, open_price, high_price, low_price, close_price,
		       adj_close, volume, split_coefficient, next_earnings_date, prev_earnings_date,
		       days_to_earnings, days_since_earnings, is_earnings_window
		FROM edge.panel_rows
		ORDER BY symbol, trade_date
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query panel rows: %w", err)
	}
	defer rows.Close()

	var out []contracts.FeatureRow
	for rows.Next() {
		var (
			row        contracts.FeatureRow
			date       time.Time
			next, prev *time.Time
		)
		if err := rows.Scan(
			&row.Symbol, &date, &row.Open, &row.High, &row.Low, &row.Close,
			&row.AdjustedClose, &row.Volume, &row.SplitCoefficient, &next, &prev,
			&row.DaysToEarnings, &row.DaysSinceEarnings, &row.IsEarningsWindow,
		); err != nil {
			return nil, fmt.Errorf("scan panel row: %w", err)
		}
		row.Date = contracts.NewDate(date)
		if next != nil {
			row.NextEarningsDate = contracts.NewDate(*next)
		}
		if prev != nil {
			row.PrevEarningsDate = contracts.NewDate(*prev)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panel rows: %w", err)
	}

	return NewPanel(out)
}

// CountRows returns the number of stored rows
func (r *PanelRepository) CountRows(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM edge.panel_rows`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count panel rows: %w", err)
	}
	return count, nil
}

func nullableDate(d contracts.Date) any {
	if !d.Valid() {
		return nil
	}
	return d.Time
}
