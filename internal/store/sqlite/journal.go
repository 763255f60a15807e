// Package sqlite keeps an append-only audit journal of position events.
// Rows are never updated and the journal is never read back into the
// ledger; only reporting queries read it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gainer-scanner/internal/portfolio"
)

const (
	defaultBatchSize  = 50
	defaultFlushDelay = 500 * time.Millisecond
)

// Config configures the journal.
type Config struct {
	DBPath string // e.g. "data/journal.db"
}

// Journal batches ledger events into SQLite.
type Journal struct {
	db *sql.DB

	// OnCommit, if set, receives the duration of each batch commit.
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Open opens or creates the journal with WAL mode and schema.
func Open(cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened %s", cfg.DBPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS openings (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id   TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			coin        TEXT,
			entry_level INTEGER,
			entry       REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			tp1         REAL    NOT NULL,
			tp2         REAL    NOT NULL,
			opened_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS exits (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id TEXT    NOT NULL,
			symbol    TEXT    NOT NULL,
			status    TEXT    NOT NULL,
			price     REAL    NOT NULL,
			fraction  REAL    NOT NULL,
			pnl_pct   REAL    NOT NULL,
			at        INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id    TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			coin         TEXT,
			status       TEXT    NOT NULL,
			entry        REAL    NOT NULL,
			exit_price   REAL    NOT NULL,
			realized_pct REAL    NOT NULL,
			hit_tp1      INTEGER NOT NULL,
			opened_at    INTEGER NOT NULL,
			closed_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
		CREATE INDEX IF NOT EXISTS idx_exits_signal ON exits(signal_id);
	`)
	return err
}

// Run reads events and inserts them in batched transactions, flushing
// every batch-size events or flush delay, whichever comes first. Blocks
// until ctx is cancelled or events is closed.
func (j *Journal) Run(ctx context.Context, events <-chan portfolio.Event) {
	batch := make([]portfolio.Event, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.insertBatch(batch); err != nil {
			log.Printf("[journal] batch insert error: %v", err)
		} else if j.OnCommit != nil {
			j.OnCommit(time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (j *Journal) insertBatch(events []portfolio.Event) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := insertEvent(tx, ev); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s %s: %w", ev.Kind, ev.Symbol, err)
		}
	}
	return tx.Commit()
}

func insertEvent(tx *sql.Tx, ev portfolio.Event) error {
	p := ev.Position
	var last portfolio.Exit
	if n := len(p.Exits); n > 0 {
		last = p.Exits[n-1]
	}

	if ev.Kind == portfolio.EventOpened {
		_, err := tx.Exec(`
			INSERT INTO openings (signal_id, symbol, coin, entry_level, entry, stop_loss, tp1, tp2, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.SignalID, p.Symbol, p.Coin, p.EntryLevel, p.Entry, p.InitialStop, p.TP1, p.TP2, p.OpenedAt.UnixMilli())
		return err
	}

	if len(p.Exits) > 0 {
		if _, err := tx.Exec(`
			INSERT INTO exits (signal_id, symbol, status, price, fraction, pnl_pct, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.SignalID, p.Symbol, string(last.Status), last.Price, last.Fraction, last.PnLPct, last.At.UnixMilli()); err != nil {
			return err
		}
	}

	if ev.Kind != portfolio.EventClosed {
		return nil
	}
	_, err := tx.Exec(`
		INSERT INTO trades (signal_id, symbol, coin, status, entry, exit_price, realized_pct, hit_tp1, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SignalID, p.Symbol, p.Coin, string(p.Status), p.Entry, last.Price, p.RealizedPct,
		p.HitFirstTarget(), p.OpenedAt.UnixMilli(), p.ClosedAt.UnixMilli())
	return err
}

// TradeRecord is one row of the trades table.
type TradeRecord struct {
	ID          int64     `json:"id"`
	SignalID    string    `json:"signal_id"`
	Symbol      string    `json:"symbol"`
	Coin        string    `json:"coin"`
	Status      string    `json:"status"`
	Entry       float64   `json:"entry"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPct float64   `json:"realized_pct"`
	HitTP1      bool      `json:"hit_tp1"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// Trades returns the last limit completed trades, newest first.
func (j *Journal) Trades(limit int) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, signal_id, symbol, coin, status, entry, exit_price, realized_pct, hit_tp1, opened_at, closed_at
		FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var (
			t              TradeRecord
			coin           sql.NullString
			opened, closed int64
		)
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Symbol, &coin, &t.Status, &t.Entry,
			&t.ExitPrice, &t.RealizedPct, &t.HitTP1, &opened, &closed); err != nil {
			return nil, err
		}
		t.Coin = coin.String
		t.OpenedAt = time.UnixMilli(opened).UTC()
		t.ClosedAt = time.UnixMilli(closed).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExitCount returns how many exit rows were recorded for signalID.
func (j *Journal) ExitCount(signalID string) (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM exits WHERE signal_id = ?`, signalID).Scan(&n)
	return n, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
