// Package localstore implements journal.Store on an embedded SQLite
// database shared by all traders, fsync'd on every append.
package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nof0-api/pkg/journal"
)

// Store is a SQLite-backed journal.Store. One underlying *sql.DB serves all
// traders; SQLite itself serializes writers, so a single connection (as
// SQLite's own docs recommend) is enough.
type Store struct {
	db *sql.DB
}

// Open creates/opens the SQLite database at path and ensures its schema
// exists. A single connection is held open for the lifetime of the store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("localstore: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA synchronous=FULL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: set synchronous pragma: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trader_id TEXT NOT NULL,
			cycle_number INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			input_prompt TEXT DEFAULT '',
			cot_trace TEXT DEFAULT '',
			decision_json TEXT DEFAULT '',
			raw_response TEXT DEFAULT '',
			success INTEGER NOT NULL DEFAULT 0,
			error_message TEXT DEFAULT '',
			account_total_balance REAL DEFAULT 0,
			account_available_balance REAL DEFAULT 0,
			account_unrealized_profit REAL DEFAULT 0,
			account_position_count INTEGER DEFAULT 0,
			account_margin_used_pct REAL DEFAULT 0,
			candidate_coins TEXT DEFAULT '',
			execution_log TEXT DEFAULT '',
			UNIQUE(trader_id, cycle_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_trader_cycle ON decisions(trader_id, cycle_number)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id INTEGER NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL DEFAULT 0,
			entry_price REAL DEFAULT 0,
			mark_price REAL DEFAULT 0,
			unrealized_profit REAL DEFAULT 0,
			leverage INTEGER DEFAULT 0,
			liquidation_price REAL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_decision ON positions(decision_id)`,
		`CREATE TABLE IF NOT EXISTS decision_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id INTEGER NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity REAL DEFAULT 0,
			leverage INTEGER DEFAULT 0,
			price REAL DEFAULT 0,
			order_id TEXT DEFAULT '',
			timestamp TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 0,
			error TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_decision ON decision_actions(decision_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("localstore: init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists rec transactionally across the decisions/positions/
// decision_actions tables, failing with *journal.ConflictError if the cycle
// was already recorded.
func (s *Store) Append(rec journal.DecisionRecord) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM decisions WHERE trader_id = ? AND cycle_number = ?`,
		rec.TraderID, rec.CycleNumber,
	).Scan(&exists)
	if err == nil {
		return &journal.ConflictError{TraderID: rec.TraderID, CycleNumber: rec.CycleNumber}
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("localstore: check conflict: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("localstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	candidatesJSON, _ := json.Marshal(rec.CandidateCoins)
	execLogJSON, _ := json.Marshal(rec.ExecutionLog)

	res, err := tx.Exec(`
		INSERT INTO decisions (
			trader_id, cycle_number, timestamp, input_prompt, cot_trace,
			decision_json, raw_response, success, error_message,
			account_total_balance, account_available_balance,
			account_unrealized_profit, account_position_count,
			account_margin_used_pct, candidate_coins, execution_log
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraderID, rec.CycleNumber, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.InputPrompt, rec.CoTTrace, rec.DecisionJSON, rec.RawResponse,
		boolToInt(rec.Success), rec.ErrorMessage,
		rec.Account.TotalBalance, rec.Account.AvailableBalance,
		rec.Account.UnrealizedProfit, rec.Account.PositionCount,
		rec.Account.MarginUsedPct, string(candidatesJSON), string(execLogJSON),
	)
	if err != nil {
		return fmt.Errorf("localstore: insert decision: %w", err)
	}
	decisionID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("localstore: decision id: %w", err)
	}

	for _, p := range rec.Positions {
		if _, err := tx.Exec(`
			INSERT INTO positions (
				decision_id, symbol, side, quantity, entry_price, mark_price,
				unrealized_profit, leverage, liquidation_price
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			decisionID, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.MarkPrice,
			p.UnrealizedProfit, p.Leverage, p.LiquidationPrice,
		); err != nil {
			return fmt.Errorf("localstore: insert position: %w", err)
		}
	}

	for _, a := range rec.Actions {
		if _, err := tx.Exec(`
			INSERT INTO decision_actions (
				decision_id, action, symbol, quantity, leverage, price,
				order_id, timestamp, success, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			decisionID, a.Action, a.Symbol, a.Quantity, a.Leverage, a.Price,
			a.OrderID, a.Timestamp.UTC().Format(time.RFC3339Nano), boolToInt(a.Success), a.Error,
		); err != nil {
			return fmt.Errorf("localstore: insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("localstore: commit: %w", err)
	}
	return nil
}

// Seed inserts the cycle-0 record for traderID if absent.
func (s *Store) Seed(traderID string, initialBalance float64, at time.Time) error {
	err := s.Append(journal.SeedRecord(traderID, initialBalance, at))
	var conflict *journal.ConflictError
	if err != nil && !isConflict(err, &conflict) {
		return err
	}
	return nil
}

func isConflict(err error, target **journal.ConflictError) bool {
	c, ok := err.(*journal.ConflictError)
	if ok {
		*target = c
	}
	return ok
}

// Latest returns the highest-cycle_number record for traderID.
func (s *Store) Latest(traderID string) (journal.DecisionRecord, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM decisions WHERE trader_id = ? ORDER BY cycle_number DESC LIMIT 1`,
		traderID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return journal.DecisionRecord{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("localstore: latest: %w", err)
	}
	return s.loadByID(id)
}

// Range returns ascending records for traderID with cycle_number in [from, to].
func (s *Store) Range(traderID string, from, to int) ([]journal.DecisionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id FROM decisions WHERE trader_id = ? AND cycle_number BETWEEN ? AND ? ORDER BY cycle_number ASC`,
		traderID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("localstore: range: %w", err)
	}
	defer rows.Close()
	return s.loadRows(rows)
}

// All returns the full ascending history for traderID.
func (s *Store) All(traderID string) ([]journal.DecisionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id FROM decisions WHERE trader_id = ? ORDER BY cycle_number ASC`,
		traderID,
	)
	if err != nil {
		return nil, fmt.Errorf("localstore: all: %w", err)
	}
	defer rows.Close()
	return s.loadRows(rows)
}

// RestoreState reads the seed and latest record for traderID.
func (s *Store) RestoreState(traderID string) (journal.ResumeState, error) {
	var seed int64
	err := s.db.QueryRow(
		`SELECT id FROM decisions WHERE trader_id = ? AND cycle_number = 0`,
		traderID,
	).Scan(&seed)
	if err == sql.ErrNoRows {
		return journal.ResumeState{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.ResumeState{}, fmt.Errorf("localstore: restore seed: %w", err)
	}
	seedRec, err := s.loadByID(seed)
	if err != nil {
		return journal.ResumeState{}, err
	}

	latest, err := s.Latest(traderID)
	if err != nil {
		return journal.ResumeState{}, err
	}

	return journal.ResumeState{
		InitialBalance:    seedRec.Account.TotalBalance,
		LastAccount:       latest.Account,
		ResumeCycleNumber: latest.CycleNumber + 1,
	}, nil
}

func (s *Store) loadRows(rows *sql.Rows) ([]journal.DecisionRecord, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("localstore: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]journal.DecisionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.loadByID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) loadByID(id int64) (journal.DecisionRecord, error) {
	var (
		rec                         journal.DecisionRecord
		tsStr                       string
		success                     int
		candidatesJSON, execLogJSON string
	)
	err := s.db.QueryRow(`
		SELECT trader_id, cycle_number, timestamp, input_prompt, cot_trace,
			decision_json, raw_response, success, error_message,
			account_total_balance, account_available_balance,
			account_unrealized_profit, account_position_count,
			account_margin_used_pct, candidate_coins, execution_log
		FROM decisions WHERE id = ?`, id,
	).Scan(
		&rec.TraderID, &rec.CycleNumber, &tsStr, &rec.InputPrompt, &rec.CoTTrace,
		&rec.DecisionJSON, &rec.RawResponse, &success, &rec.ErrorMessage,
		&rec.Account.TotalBalance, &rec.Account.AvailableBalance,
		&rec.Account.UnrealizedProfit, &rec.Account.PositionCount,
		&rec.Account.MarginUsedPct, &candidatesJSON, &execLogJSON,
	)
	if err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("localstore: load decision %d: %w", id, err)
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	rec.Success = success != 0
	_ = json.Unmarshal([]byte(candidatesJSON), &rec.CandidateCoins)
	_ = json.Unmarshal([]byte(execLogJSON), &rec.ExecutionLog)

	posRows, err := s.db.Query(`
		SELECT symbol, side, quantity, entry_price, mark_price, unrealized_profit,
			leverage, liquidation_price
		FROM positions WHERE decision_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("localstore: load positions: %w", err)
	}
	defer posRows.Close()
	for posRows.Next() {
		var p journal.PositionSnapshot
		if err := posRows.Scan(&p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice, &p.MarkPrice,
			&p.UnrealizedProfit, &p.Leverage, &p.LiquidationPrice); err != nil {
			return journal.DecisionRecord{}, fmt.Errorf("localstore: scan position: %w", err)
		}
		rec.Positions = append(rec.Positions, p)
	}

	actRows, err := s.db.Query(`
		SELECT action, symbol, quantity, leverage, price, order_id, timestamp, success, error
		FROM decision_actions WHERE decision_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("localstore: load actions: %w", err)
	}
	defer actRows.Close()
	for actRows.Next() {
		var a journal.ActionResult
		var actTS string
		var actSuccess int
		if err := actRows.Scan(&a.Action, &a.Symbol, &a.Quantity, &a.Leverage, &a.Price,
			&a.OrderID, &actTS, &actSuccess, &a.Error); err != nil {
			return journal.DecisionRecord{}, fmt.Errorf("localstore: scan action: %w", err)
		}
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, actTS)
		a.Success = actSuccess != 0
		rec.Actions = append(rec.Actions, a)
	}

	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
