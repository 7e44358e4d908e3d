package execution

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"contractbot/internal/model"
)

// JournalConfig configures the SQLite trade journal.
type JournalConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/trades.db"
}

// Journal persists settled trades to SQLite for audit and offline analysis.
// Single-writer; the lifecycle manager is the only caller of RecordTrade.
type Journal struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// NewJournal opens (or creates) the journal database with WAL mode and the
// trades schema.
func NewJournal(cfg JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened database at %s", cfg.DBPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			trade_id      TEXT    PRIMARY KEY,
			broker_ref    TEXT,
			symbol        TEXT    NOT NULL,
			direction     TEXT    NOT NULL,
			rule          TEXT,
			entry_price   REAL    NOT NULL,
			stake         REAL    NOT NULL,
			stop_loss     REAL,
			take_profit   REAL,
			duration_secs INTEGER NOT NULL,
			state         TEXT    NOT NULL,
			outcome       TEXT,
			pnl           REAL    NOT NULL,
			reason        TEXT,
			opened_at     INTEGER,
			closed_at     INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades (closed_at);
	`)
	return err
}

// RecordTrade upserts one trade row. Terminal redeliveries overwrite with
// identical values, keeping the journal idempotent like the state machine.
func (j *Journal) RecordTrade(t model.Trade) error {
	_, err := j.db.Exec(`
		INSERT INTO trades (
			trade_id, broker_ref, symbol, direction, rule,
			entry_price, stake, stop_loss, take_profit, duration_secs,
			state, outcome, pnl, reason, opened_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			broker_ref = excluded.broker_ref,
			state      = excluded.state,
			outcome    = excluded.outcome,
			pnl        = excluded.pnl,
			reason     = excluded.reason,
			closed_at  = excluded.closed_at
	`,
		t.ID, t.BrokerRef, t.Symbol, string(t.Direction), t.Rule,
		t.EntryPrice, t.Stake, t.StopLoss, t.TakeProfit, int64(t.Duration.Seconds()),
		string(t.State), string(t.Outcome), t.PnL, t.Reason,
		t.OpenedAt.Unix(), t.ClosedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Trades returns the most recent limit trades, newest first.
func (j *Journal) Trades(limit int) ([]model.Trade, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, broker_ref, symbol, direction, rule,
		       entry_price, stake, stop_loss, take_profit,
		       state, outcome, pnl, reason
		FROM trades ORDER BY closed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var dir, state, outcome string
		if err := rows.Scan(
			&t.ID, &t.BrokerRef, &t.Symbol, &dir, &t.Rule,
			&t.EntryPrice, &t.Stake, &t.StopLoss, &t.TakeProfit,
			&state, &outcome, &t.PnL, &t.Reason,
		); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		t.Direction = model.Direction(dir)
		t.State = model.TradeState(state)
		t.Outcome = model.Outcome(outcome)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close flushes and closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
