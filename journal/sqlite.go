package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal stores records in a single SQLite file. A mutex serializes
// writers since queue workers share one connection.
type SQLiteJournal struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordDeal(d DealRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO deals
		(run_id, ticket, order_id, position_id, symbol, side, entry, volume, price, profit, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Ticket, d.OrderID, d.PositionID, d.Symbol, d.Side, d.Entry,
		d.Volume, d.Price, d.Profit, d.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquityRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, step, time, balance, equity, margin, margin_free, margin_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Step, e.Time, e.Balance, e.Equity, e.Margin, e.MarginFree, e.MarginLevel,
	)
	return err
}

func (j *SQLiteJournal) RecordRun(r RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, start, end, steps, trades, wins, losses, balance, equity, stop_cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Start, r.End, r.Steps, r.Trades, r.Wins, r.Losses,
		r.Balance, r.Equity, r.StopCause,
	)
	return err
}

// DealsBetween returns deals executed in [from, to) for one run, ordered by
// time then ticket.
func (j *SQLiteJournal) DealsBetween(runID string, from, to time.Time) ([]DealRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.Query(`
		SELECT run_id, ticket, order_id, position_id, symbol, side, entry, volume, price, profit, time
		FROM deals WHERE run_id = ? AND time >= ? AND time < ?
		ORDER BY time, ticket`,
		runID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeals(rows)
}

// DealsByPosition returns both legs recorded for one position.
func (j *SQLiteJournal) DealsByPosition(runID string, positionID int64) ([]DealRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.Query(`
		SELECT run_id, ticket, order_id, position_id, symbol, side, entry, volume, price, profit, time
		FROM deals WHERE run_id = ? AND position_id = ?
		ORDER BY time, ticket`,
		runID, positionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeals(rows)
}

// GetRun loads a run summary, ok=false when the run is unknown.
func (j *SQLiteJournal) GetRun(runID string) (RunRecord, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var r RunRecord
	err := j.db.QueryRow(`
		SELECT run_id, start, end, steps, trades, wins, losses, balance, equity, stop_cause
		FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.Start, &r.End, &r.Steps, &r.Trades, &r.Wins, &r.Losses,
		&r.Balance, &r.Equity, &r.StopCause)
	if err == sql.ErrNoRows {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, err
	}
	return r, true, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func scanDeals(rows *sql.Rows) ([]DealRecord, error) {
	var out []DealRecord
	for rows.Next() {
		var d DealRecord
		if err := rows.Scan(&d.RunID, &d.Ticket, &d.OrderID, &d.PositionID, &d.Symbol,
			&d.Side, &d.Entry, &d.Volume, &d.Price, &d.Profit, &d.Time); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
