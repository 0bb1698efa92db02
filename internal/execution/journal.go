package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jerbotron/binance-bot/internal/model"
)

// Journal persists confirmed fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite fill journal.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id      INTEGER NOT NULL,
		symbol        TEXT NOT NULL,
		side          TEXT NOT NULL,
		qty           TEXT NOT NULL,
		price         REAL NOT NULL,
		simulated     INTEGER NOT NULL DEFAULT 0,
		transact_time DATETIME NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_transact ON fills(transact_time);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened fill journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists one fill report.
func (j *Journal) RecordFill(f model.FillReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	sim := 0
	if f.Simulated {
		sim = 1
	}
	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, symbol, side, qty, price, simulated, transact_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID,
		f.Symbol,
		string(f.Side),
		f.Qty.String(),
		f.Price,
		sim,
		f.TransactTime.UTC().Format(time.RFC3339),
	)
	return err
}

// FillRecord is one row from the fills table.
type FillRecord struct {
	ID           int64   `json:"id"`
	OrderID      int64   `json:"order_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Qty          string  `json:"qty"`
	Price        float64 `json:"price"`
	Simulated    bool    `json:"simulated"`
	TransactTime string  `json:"transact_time"`
}

// RecentFills returns the last N fills, newest first.
func (j *Journal) RecentFills(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, symbol, side, qty, price, simulated, transact_time
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var r FillRecord
		var sim int
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Symbol, &r.Side, &r.Qty,
			&r.Price, &sim, &r.TransactTime); err != nil {
			continue
		}
		r.Simulated = sim == 1
		fills = append(fills, r)
	}
	return fills, rows.Err()
}

// DB exposes the underlying handle for health checks.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
