// Package sqlstore implements journal.Store on a network-attached
// PostgreSQL database via go-zero's sqlx wrapper over the pgx stdlib driver.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"nof0-api/pkg/journal"
)

// Store is a Postgres-backed journal.Store.
type Store struct {
	conn sqlx.SqlConn
}

// Open connects to dsn through the pgx stdlib driver (registered as "pgx" by
// its blank import) and ensures the journal schema exists.
func Open(dsn string) (*Store, error) {
	conn := sqlx.NewSqlConn("pgx", dsn)
	s := &Store{conn: conn}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithConn wraps an already-constructed sqlx.SqlConn, e.g. one shared
// with the rest of a service's persistence layer.
func NewWithConn(conn sqlx.SqlConn) *Store {
	return &Store{conn: conn}
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id BIGSERIAL PRIMARY KEY,
			trader_id TEXT NOT NULL,
			cycle_number INTEGER NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			input_prompt TEXT DEFAULT '',
			cot_trace TEXT DEFAULT '',
			decision_json TEXT DEFAULT '',
			raw_response TEXT DEFAULT '',
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT DEFAULT '',
			account_total_balance DOUBLE PRECISION DEFAULT 0,
			account_available_balance DOUBLE PRECISION DEFAULT 0,
			account_unrealized_profit DOUBLE PRECISION DEFAULT 0,
			account_position_count INTEGER DEFAULT 0,
			account_margin_used_pct DOUBLE PRECISION DEFAULT 0,
			candidate_coins JSONB DEFAULT '[]',
			execution_log JSONB DEFAULT '[]',
			UNIQUE (trader_id, cycle_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_trader_cycle ON decisions(trader_id, cycle_number)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			decision_id BIGINT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity DOUBLE PRECISION DEFAULT 0,
			entry_price DOUBLE PRECISION DEFAULT 0,
			mark_price DOUBLE PRECISION DEFAULT 0,
			unrealized_profit DOUBLE PRECISION DEFAULT 0,
			leverage INTEGER DEFAULT 0,
			liquidation_price DOUBLE PRECISION DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_decision ON positions(decision_id)`,
		`CREATE TABLE IF NOT EXISTS decision_actions (
			id BIGSERIAL PRIMARY KEY,
			decision_id BIGINT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity DOUBLE PRECISION DEFAULT 0,
			leverage INTEGER DEFAULT 0,
			price DOUBLE PRECISION DEFAULT 0,
			order_id TEXT DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_decision ON decision_actions(decision_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecCtx(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: init schema: %w", err)
		}
	}
	return nil
}

// Close is a no-op: sqlx.SqlConn pools connections internally and has no
// explicit close; callers that own the *sql.DB behind it close that instead.
func (s *Store) Close() error { return nil }

// Append persists rec transactionally, returning *journal.ConflictError on a
// duplicate (trader_id, cycle_number).
func (s *Store) Append(rec journal.DecisionRecord) error {
	ctx := context.Background()
	var exists int
	err := s.conn.QueryRowCtx(ctx, &exists,
		`SELECT 1 FROM decisions WHERE trader_id = $1 AND cycle_number = $2`,
		rec.TraderID, rec.CycleNumber)
	if err == nil {
		return &journal.ConflictError{TraderID: rec.TraderID, CycleNumber: rec.CycleNumber}
	}
	if err != sqlx.ErrNotFound {
		return fmt.Errorf("sqlstore: check conflict: %w", err)
	}

	candidatesJSON, _ := json.Marshal(rec.CandidateCoins)
	execLogJSON, _ := json.Marshal(rec.ExecutionLog)

	return s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		var decisionID int64
		err := session.QueryRowCtx(ctx, &decisionID, `
			INSERT INTO decisions (
				trader_id, cycle_number, timestamp, input_prompt, cot_trace,
				decision_json, raw_response, success, error_message,
				account_total_balance, account_available_balance,
				account_unrealized_profit, account_position_count,
				account_margin_used_pct, candidate_coins, execution_log
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			RETURNING id`,
			rec.TraderID, rec.CycleNumber, rec.Timestamp.UTC(), rec.InputPrompt, rec.CoTTrace,
			rec.DecisionJSON, rec.RawResponse, rec.Success, rec.ErrorMessage,
			rec.Account.TotalBalance, rec.Account.AvailableBalance,
			rec.Account.UnrealizedProfit, rec.Account.PositionCount,
			rec.Account.MarginUsedPct, string(candidatesJSON), string(execLogJSON),
		)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}

		for _, p := range rec.Positions {
			if _, err := session.ExecCtx(ctx, `
				INSERT INTO positions (
					decision_id, symbol, side, quantity, entry_price, mark_price,
					unrealized_profit, leverage, liquidation_price
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				decisionID, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.MarkPrice,
				p.UnrealizedProfit, p.Leverage, p.LiquidationPrice,
			); err != nil {
				return fmt.Errorf("insert position: %w", err)
			}
		}

		for _, a := range rec.Actions {
			if _, err := session.ExecCtx(ctx, `
				INSERT INTO decision_actions (
					decision_id, action, symbol, quantity, leverage, price,
					order_id, timestamp, success, error
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				decisionID, a.Action, a.Symbol, a.Quantity, a.Leverage, a.Price,
				a.OrderID, a.Timestamp.UTC(), a.Success, a.Error,
			); err != nil {
				return fmt.Errorf("insert action: %w", err)
			}
		}
		return nil
	})
}

// Seed inserts the cycle-0 record for traderID if absent.
func (s *Store) Seed(traderID string, initialBalance float64, at time.Time) error {
	err := s.Append(journal.SeedRecord(traderID, initialBalance, at))
	if err != nil {
		if _, ok := err.(*journal.ConflictError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Latest returns the highest-cycle_number record for traderID.
func (s *Store) Latest(traderID string) (journal.DecisionRecord, error) {
	ctx := context.Background()
	var id int64
	err := s.conn.QueryRowCtx(ctx, &id,
		`SELECT id FROM decisions WHERE trader_id = $1 ORDER BY cycle_number DESC LIMIT 1`, traderID)
	if err == sqlx.ErrNotFound {
		return journal.DecisionRecord{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("sqlstore: latest: %w", err)
	}
	return s.loadByID(ctx, id)
}

// Range returns ascending records for traderID with cycle_number in [from, to].
func (s *Store) Range(traderID string, from, to int) ([]journal.DecisionRecord, error) {
	ctx := context.Background()
	var ids []int64
	if err := s.conn.QueryRowsCtx(ctx, &ids,
		`SELECT id FROM decisions WHERE trader_id = $1 AND cycle_number BETWEEN $2 AND $3 ORDER BY cycle_number ASC`,
		traderID, from, to); err != nil {
		return nil, fmt.Errorf("sqlstore: range: %w", err)
	}
	return s.loadIDs(ctx, ids)
}

// All returns the full ascending history for traderID.
func (s *Store) All(traderID string) ([]journal.DecisionRecord, error) {
	ctx := context.Background()
	var ids []int64
	if err := s.conn.QueryRowsCtx(ctx, &ids,
		`SELECT id FROM decisions WHERE trader_id = $1 ORDER BY cycle_number ASC`, traderID); err != nil {
		return nil, fmt.Errorf("sqlstore: all: %w", err)
	}
	return s.loadIDs(ctx, ids)
}

// RestoreState reads the seed and latest record for traderID.
func (s *Store) RestoreState(traderID string) (journal.ResumeState, error) {
	ctx := context.Background()
	var seedID int64
	err := s.conn.QueryRowCtx(ctx, &seedID,
		`SELECT id FROM decisions WHERE trader_id = $1 AND cycle_number = 0`, traderID)
	if err == sqlx.ErrNotFound {
		return journal.ResumeState{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.ResumeState{}, fmt.Errorf("sqlstore: restore seed: %w", err)
	}
	seedRec, err := s.loadByID(ctx, seedID)
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

type decisionRow struct {
	TraderID                 string    `db:"trader_id"`
	CycleNumber              int       `db:"cycle_number"`
	Timestamp                time.Time `db:"timestamp"`
	InputPrompt              string    `db:"input_prompt"`
	CoTTrace                 string    `db:"cot_trace"`
	DecisionJSON             string    `db:"decision_json"`
	RawResponse              string    `db:"raw_response"`
	Success                  bool      `db:"success"`
	ErrorMessage             string    `db:"error_message"`
	AccountTotalBalance      float64   `db:"account_total_balance"`
	AccountAvailableBalance  float64   `db:"account_available_balance"`
	AccountUnrealizedProfit  float64   `db:"account_unrealized_profit"`
	AccountPositionCount     int       `db:"account_position_count"`
	AccountMarginUsedPct     float64   `db:"account_margin_used_pct"`
	CandidateCoins           string    `db:"candidate_coins"`
	ExecutionLog             string    `db:"execution_log"`
}

type positionRow struct {
	Symbol           string  `db:"symbol"`
	Side             string  `db:"side"`
	Quantity         float64 `db:"quantity"`
	EntryPrice       float64 `db:"entry_price"`
	MarkPrice        float64 `db:"mark_price"`
	UnrealizedProfit float64 `db:"unrealized_profit"`
	Leverage         int     `db:"leverage"`
	LiquidationPrice float64 `db:"liquidation_price"`
}

type actionRow struct {
	Action    string    `db:"action"`
	Symbol    string    `db:"symbol"`
	Quantity  float64   `db:"quantity"`
	Leverage  int       `db:"leverage"`
	Price     float64   `db:"price"`
	OrderID   string    `db:"order_id"`
	Timestamp time.Time `db:"timestamp"`
	Success   bool      `db:"success"`
	Error     string    `db:"error"`
}

func (s *Store) loadIDs(ctx context.Context, ids []int64) ([]journal.DecisionRecord, error) {
	out := make([]journal.DecisionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.loadByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) loadByID(ctx context.Context, id int64) (journal.DecisionRecord, error) {
	var row decisionRow
	if err := s.conn.QueryRowCtx(ctx, &row, `
		SELECT trader_id, cycle_number, timestamp, input_prompt, cot_trace,
			decision_json, raw_response, success, error_message,
			account_total_balance, account_available_balance,
			account_unrealized_profit, account_position_count,
			account_margin_used_pct, candidate_coins, execution_log
		FROM decisions WHERE id = $1`, id); err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("sqlstore: load decision %d: %w", id, err)
	}

	rec := journal.DecisionRecord{
		TraderID:     row.TraderID,
		CycleNumber:  row.CycleNumber,
		Timestamp:    row.Timestamp,
		InputPrompt:  row.InputPrompt,
		CoTTrace:     row.CoTTrace,
		DecisionJSON: row.DecisionJSON,
		RawResponse:  row.RawResponse,
		Success:      row.Success,
		ErrorMessage: row.ErrorMessage,
		Account: journal.AccountSnapshot{
			TotalBalance:     row.AccountTotalBalance,
			AvailableBalance: row.AccountAvailableBalance,
			UnrealizedProfit: row.AccountUnrealizedProfit,
			PositionCount:    row.AccountPositionCount,
			MarginUsedPct:    row.AccountMarginUsedPct,
		},
	}
	_ = json.Unmarshal([]byte(row.CandidateCoins), &rec.CandidateCoins)
	_ = json.Unmarshal([]byte(row.ExecutionLog), &rec.ExecutionLog)

	var posRows []positionRow
	if err := s.conn.QueryRowsCtx(ctx, &posRows, `
		SELECT symbol, side, quantity, entry_price, mark_price, unrealized_profit,
			leverage, liquidation_price
		FROM positions WHERE decision_id = $1 ORDER BY id ASC`, id); err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("sqlstore: load positions: %w", err)
	}
	for _, p := range posRows {
		rec.Positions = append(rec.Positions, journal.PositionSnapshot{
			Symbol: p.Symbol, Side: p.Side, Quantity: p.Quantity, EntryPrice: p.EntryPrice,
			MarkPrice: p.MarkPrice, UnrealizedProfit: p.UnrealizedProfit, Leverage: p.Leverage,
			LiquidationPrice: p.LiquidationPrice,
		})
	}

	var actRows []actionRow
	if err := s.conn.QueryRowsCtx(ctx, &actRows, `
		SELECT action, symbol, quantity, leverage, price, order_id, timestamp, success, error
		FROM decision_actions WHERE decision_id = $1 ORDER BY id ASC`, id); err != nil {
		return journal.DecisionRecord{}, fmt.Errorf("sqlstore: load actions: %w", err)
	}
	for _, a := range actRows {
		rec.Actions = append(rec.Actions, journal.ActionResult{
			Action: a.Action, Symbol: a.Symbol, Quantity: a.Quantity, Leverage: a.Leverage,
			Price: a.Price, OrderID: a.OrderID, Timestamp: a.Timestamp, Success: a.Success, Error: a.Error,
		})
	}

	return rec, nil
}
