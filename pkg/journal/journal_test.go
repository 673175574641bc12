package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeedRecordCarriesInitialBalanceAndNoPositions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := SeedRecord("trader-1", 10000, now)

	assert.Equal(t, 0, rec.CycleNumber)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Positions)
	assert.Empty(t, rec.Actions)
	assert.Equal(t, 10000.0, rec.Account.TotalBalance)
	assert.Equal(t, 10000.0, rec.Account.AvailableBalance)
	assert.Equal(t, `{"seed":true}`, rec.DecisionJSON)
}

func TestConflictErrorMessageNamesTraderAndCycle(t *testing.T) {
	err := &ConflictError{TraderID: "trader-1", CycleNumber: 7}
	assert.Contains(t, err.Error(), "trader-1")
	assert.Contains(t, err.Error(), "7")
}
