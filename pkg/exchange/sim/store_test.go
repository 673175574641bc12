package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nof0-api/pkg/executor"
)

func TestStoreOpenRequiresMarkPrice(t *testing.T) {
	s := NewStore(10000)
	_, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionOpenLong, Quantity: 1, Leverage: 5})
	assert.Error(t, err)
}

func TestStoreOpenDebitsMarginAndTracksPosition(t *testing.T) {
	s := NewStore(10000)
	s.SetMarkPrice("BTC", 100)

	outcome, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionOpenLong, Quantity: 1, Leverage: 5})
	require.NoError(t, err)
	assert.Equal(t, 100.0, outcome.Price)

	positions, err := s.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, executor.SideLong, positions[0].Side)

	account, err := s.Account(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 9980, account.AvailableBalance, 0.001, "margin = 1*100/5 = 20 debited from cash")
}

func TestStoreRejectsSecondOpenOnSameSymbol(t *testing.T) {
	s := NewStore(10000)
	s.SetMarkPrice("BTC", 100)
	_, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionOpenLong, Quantity: 1, Leverage: 5})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionOpenShort, Quantity: 1, Leverage: 5})
	assert.Error(t, err)
}

func TestStoreCloseRealizesPnLAndFreesMargin(t *testing.T) {
	s := NewStore(10000)
	s.SetMarkPrice("BTC", 100)
	_, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionOpenLong, Quantity: 1, Leverage: 5})
	require.NoError(t, err)

	s.SetMarkPrice("BTC", 120)
	outcome, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionCloseLong})
	require.NoError(t, err)
	assert.Equal(t, 120.0, outcome.Price)

	positions, err := s.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	account, err := s.Account(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10020, account.TotalBalance, 0.001, "10000 + (120-100)*1 realized pnl")
}

func TestStoreCloseWithoutMatchingPositionErrors(t *testing.T) {
	s := NewStore(10000)
	_, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: executor.ActionCloseLong})
	assert.Error(t, err)
}

func TestStoreHoldAndWaitAreNoops(t *testing.T) {
	s := NewStore(10000)
	for _, action := range []executor.Action{executor.ActionHold, executor.ActionWait} {
		_, err := s.Execute(context.Background(), executor.Decision{Symbol: "BTC", Action: action})
		assert.NoError(t, err)
	}
}
