package output

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/tidwall/gjson"
)

// DefaultDecisionTable stores accepted events and their triggersFired bitmask.
const DefaultDecisionTable = "trigger_decisions"

// PostgresOutput records accepted events, one row per event id.
type PostgresOutput struct {
	db    *sql.DB
	table string
}

// OpenPostgresOutput connects with the lib/pq driver.
func OpenPostgresOutput(dsn, table string) (*PostgresOutput, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresOutput(db, table), nil
}

func NewPostgresOutput(db *sql.DB, table string) *PostgresOutput {
	if table == "" {
		table = DefaultDecisionTable
	}
	return &PostgresOutput{db: db, table: table}
}

// EnsureSchema creates the decision table if needed.
func (p *PostgresOutput) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+pq.QuoteIdentifier(p.table)+` (
    event_id TEXT PRIMARY KEY,
    triggers_fired BOOLEAN[] NOT NULL,
    event JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}
	return nil
}

// WriteBatch upserts the batch in a single transaction.
func (p *PostgresOutput) WriteBatch(ctx context.Context, entries [][]byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+pq.QuoteIdentifier(p.table)+` (event_id, triggers_fired, event)
    VALUES ($1, $2, $3)
    ON CONFLICT (event_id) DO UPDATE SET triggers_fired = EXCLUDED.triggers_fired, event = EXCLUDED.event`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		id := gjson.GetBytes(e, "id").String()
		var fired []bool
		for _, b := range gjson.GetBytes(e, "triggersFired").Array() {
			fired = append(fired, b.Bool())
		}
		if fired == nil {
			fired = []bool{}
		}
		if _, err := stmt.ExecContext(ctx, id, pq.Array(fired), string(e)); err != nil {
			return fmt.Errorf("insert event %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (p *PostgresOutput) Close() error {
	return p.db.Close()
}
