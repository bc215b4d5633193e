// Package store persists position snapshots, closed-trade history, and
// compound-engine state to a local sqlite database using raw
// database/sql statements rather than an ORM.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/steinwealth/easyorb/internal/compound"
	"github.com/steinwealth/easyorb/internal/model"
)

// Store is the sqlite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// initializes its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			position_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			side TEXT NOT NULL,
			mode TEXT NOT NULL,
			substate TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE TABLE IF NOT EXISTS options_positions (
			position_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			realized_pnl REAL NOT NULL,
			reason TEXT NOT NULL,
			closed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol)`,
		`CREATE TABLE IF NOT EXISTS compound_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			trading_date TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SavePosition upserts a position snapshot.
func (s *Store) SavePosition(pos model.Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO positions (position_id, symbol, signal_type, side, mode, substate, status, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(position_id) DO UPDATE SET
			substate=excluded.substate, status=excluded.status, snapshot=excluded.snapshot, updated_at=CURRENT_TIMESTAMP
	`, pos.PositionID, pos.Symbol, string(pos.SignalType), string(pos.Side), string(pos.Mode), string(pos.Substate), string(pos.Status), raw)
	return err
}

// OpenPositions loads every position not yet marked closed, for restart
// reconciliation.
func (s *Store) OpenPositions() ([]model.Position, error) {
	rows, err := s.db.Query(`SELECT snapshot FROM positions WHERE status != ?`, string(model.StatusClosed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var pos model.Position
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// SaveOptionsPosition upserts a 0DTE position snapshot.
func (s *Store) SaveOptionsPosition(pos model.OptionsPosition) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO options_positions (position_id, symbol, kind, status, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(position_id) DO UPDATE SET
			status=excluded.status, snapshot=excluded.snapshot, updated_at=CURRENT_TIMESTAMP
	`, pos.PositionID, pos.Symbol, string(pos.Kind), string(pos.Status), raw)
	return err
}

// RecordClosedTrade appends a row to the closed-trade history that
// ClosedTradesSince reads back. No admin HTTP endpoint reads this table.
func (s *Store) RecordClosedTrade(positionID, symbol string, signalType model.SignalType, realizedPnL float64, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO closed_trades (position_id, symbol, signal_type, realized_pnl, reason, closed_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, positionID, symbol, string(signalType), realizedPnL, reason)
	return err
}

// RecordClosedOptionsTrade appends a 0DTE close to the same closed-trade
// history table, storing the options position kind (debit_spread,
// credit_spread, lotto) in the signal_type column so one ClosedTradesSince
// query covers both equity and options activity.
func (s *Store) RecordClosedOptionsTrade(positionID, symbol string, kind model.OptionsPositionKind, realizedPnL float64, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO closed_trades (position_id, symbol, signal_type, realized_pnl, reason, closed_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, positionID, symbol, string(kind), realizedPnL, reason)
	return err
}

// ExportClosedOptionsHistory zstd-compresses every closed 0DTE position
// snapshot into a single blob at path. The exported rows are not removed
// from options_positions.
func (s *Store) ExportClosedOptionsHistory(path string) error {
	rows, err := s.db.Query(`SELECT snapshot FROM options_positions WHERE status = ?`, string(model.StatusClosed))
	if err != nil {
		return err
	}
	defer rows.Close()

	var snapshots []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		snapshots = append(snapshots, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	blob, err := json.Marshal(snapshots)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := zw.Write(blob); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// SaveCompoundState persists the compound engine's snapshot for tradingDate,
// overwriting any prior save (the table holds a single row, so a new
// trading day's first save replaces the previous day's state).
func (s *Store) SaveCompoundState(tradingDate string, snap compound.State) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO compound_state (id, trading_date, snapshot, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET trading_date=excluded.trading_date, snapshot=excluded.snapshot, updated_at=CURRENT_TIMESTAMP
	`, tradingDate, raw)
	return err
}

// LoadCompoundState returns the persisted snapshot if it was saved on
// tradingDate, or ok=false otherwise (a new day always starts fresh).
func (s *Store) LoadCompoundState(tradingDate string) (compound.State, bool, error) {
	var storedDate, raw string
	err := s.db.QueryRow(`SELECT trading_date, snapshot FROM compound_state WHERE id = 1`).Scan(&storedDate, &raw)
	if err == sql.ErrNoRows {
		return compound.State{}, false, nil
	}
	if err != nil {
		return compound.State{}, false, err
	}
	if storedDate != tradingDate {
		return compound.State{}, false, nil
	}
	var snap compound.State
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return compound.State{}, false, err
	}
	return snap, true, nil
}

// ClosedTradesSince returns closed trades recorded at or after since,
// newest first.
func (s *Store) ClosedTradesSince(since time.Time) ([]ClosedTrade, error) {
	rows, err := s.db.Query(`
		SELECT position_id, symbol, signal_type, realized_pnl, reason, closed_at
		FROM closed_trades WHERE closed_at >= ? ORDER BY closed_at DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClosedTrade
	for rows.Next() {
		var t ClosedTrade
		if err := rows.Scan(&t.PositionID, &t.Symbol, &t.SignalType, &t.RealizedPnL, &t.Reason, &t.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClosedTrade is one row of closed-trade history.
type ClosedTrade struct {
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	SignalType  string    `json:"signal_type"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason"`
	ClosedAt    time.Time `json:"closed_at"`
}
