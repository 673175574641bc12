package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"nof0-api/pkg/exchange"
	"nof0-api/pkg/executor"
)

// Store is a deterministic, in-memory PositionStore used for tests and the
// Scheduler's paper-trading mode. It fills synchronously under a mutex and
// operates directly on executor.Decision rather than a venue wire-format
// order, since the Scheduler never needs venue-specific order plumbing.
type Store struct {
	mu sync.Mutex

	positions map[string]executor.Position // keyed by canonical symbol; one side at a time
	markPx    map[string]float64

	cash float64 // realized cash balance, excludes unrealized PnL
}

// NewStore constructs a Store with the given starting cash balance and no
// open positions.
func NewStore(initialBalance float64) *Store {
	return &Store{
		positions: make(map[string]executor.Position),
		markPx:    make(map[string]float64),
		cash:      initialBalance,
	}
}

func canonical(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

// SetMarkPrice updates the reference price used to fill orders and compute
// unrealized PnL for a symbol.
func (s *Store) SetMarkPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markPx[canonical(symbol)] = price
}

// Positions implements exchange.PositionStore.
func (s *Store) Positions(ctx context.Context) ([]executor.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]executor.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, s.markToMarketLocked(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Account implements exchange.PositionStore.
func (s *Store) Account(ctx context.Context) (executor.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountLocked(), nil
}

func (s *Store) accountLocked() executor.AccountSnapshot {
	var unrealized, marginUsed float64
	for _, p := range s.positions {
		mtm := s.markToMarketLocked(p)
		unrealized += mtm.UnrealizedProfit
		if mtm.Leverage > 0 {
			marginUsed += mtm.Quantity * mtm.EntryPrice / float64(mtm.Leverage)
		}
	}
	total := s.cash + unrealized
	available := s.cash - marginUsed
	if available < 0 {
		available = 0
	}
	var marginUsedPct float64
	if total > 0 {
		marginUsedPct = marginUsed / total * 100
	}
	return executor.AccountSnapshot{
		TotalBalance:     total,
		AvailableBalance: available,
		UnrealizedProfit: unrealized,
		PositionCount:    len(s.positions),
		MarginUsedPct:    marginUsedPct,
	}
}

func (s *Store) markToMarketLocked(p executor.Position) executor.Position {
	mark := s.resolveMarkLocked(p.Symbol, p.EntryPrice)
	p.MarkPrice = mark
	if p.Side == executor.SideLong {
		p.UnrealizedProfit = p.Quantity * (mark - p.EntryPrice)
	} else {
		p.UnrealizedProfit = p.Quantity * (p.EntryPrice - mark)
	}
	return p
}

func (s *Store) resolveMarkLocked(symbol string, fallback float64) float64 {
	if px, ok := s.markPx[canonical(symbol)]; ok && px > 0 {
		return px
	}
	return fallback
}

// Execute implements exchange.PositionStore, filling the decision
// synchronously at the current mark price. Opening without a mark price set
// fails; closing without one fills at the position's entry price.
func (s *Store) Execute(ctx context.Context, d executor.Decision) (exchange.ExecutionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := canonical(d.Symbol)
	switch d.Action {
	case executor.ActionOpenLong, executor.ActionOpenShort:
		return s.openLocked(symbol, d)
	case executor.ActionCloseLong, executor.ActionCloseShort:
		return s.closeLocked(symbol, d)
	case executor.ActionHold, executor.ActionWait:
		return exchange.ExecutionOutcome{}, nil
	default:
		return exchange.ExecutionOutcome{}, fmt.Errorf("sim: unknown action %q", d.Action)
	}
}

func (s *Store) openLocked(symbol string, d executor.Decision) (exchange.ExecutionOutcome, error) {
	if _, exists := s.positions[symbol]; exists {
		return exchange.ExecutionOutcome{}, fmt.Errorf("sim: position already open on %s", symbol)
	}
	price, ok := s.markPx[symbol]
	if !ok || price <= 0 {
		return exchange.ExecutionOutcome{}, fmt.Errorf("sim: no mark price available for %s", symbol)
	}
	leverage := d.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	side := executor.SideLong
	if d.Action == executor.ActionOpenShort {
		side = executor.SideShort
	}
	margin := d.Quantity * price / float64(leverage)
	if margin > s.cash {
		return exchange.ExecutionOutcome{}, fmt.Errorf("sim: insufficient cash for margin %.2f", margin)
	}

	s.positions[symbol] = executor.Position{
		Symbol:     d.Symbol,
		Side:       side,
		Quantity:   d.Quantity,
		EntryPrice: price,
		MarkPrice:  price,
		Leverage:   leverage,
	}
	s.cash -= margin
	s.markPx[symbol] = price
	return s.fill(price), nil
}

func (s *Store) closeLocked(symbol string, d executor.Decision) (exchange.ExecutionOutcome, error) {
	wantSide := executor.SideLong
	if d.Action == executor.ActionCloseShort {
		wantSide = executor.SideShort
	}
	p, ok := s.positions[symbol]
	if !ok || p.Side != wantSide {
		return exchange.ExecutionOutcome{}, fmt.Errorf("sim: no matching %s position on %s", wantSide, symbol)
	}
	price := s.resolveMarkLocked(symbol, p.EntryPrice)
	mtm := s.markToMarketLocked(p)
	margin := p.Quantity * p.EntryPrice / float64(p.Leverage)

	s.cash += margin + mtm.UnrealizedProfit
	delete(s.positions, symbol)
	s.markPx[symbol] = price
	return s.fill(price), nil
}

func (s *Store) fill(price float64) exchange.ExecutionOutcome {
	return exchange.ExecutionOutcome{
		Price:   price,
		OrderID: "sim-" + uuid.NewString(),
	}
}
