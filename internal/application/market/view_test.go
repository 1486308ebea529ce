package market_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ctfdesk/internal/application/market"
	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports/portstest"
)

var (
	ammAddr    = common.HexToAddress("0xa11")
	oracleAddr = common.HexToAddress("0x0c1e")
	questionID = common.HexToHash("0x51")
)

func newFixture(t *testing.T) (*portstest.Ledger, *portstest.AMM, domain.MarketDescriptor) {
	t.Helper()
	l := portstest.NewLedger()
	a := l.AddAMM(ammAddr, 2)
	a.Fee = big.NewInt(2e16)
	a.Funding = big.NewInt(1e18)
	half := new(big.Int).Lsh(big.NewInt(1), 63)
	a.Prices = []*big.Int{half, half}
	desc := domain.MarketDescriptor{
		Title:        "Will it rain in Madrid?",
		OutcomeCount: 2,
		QuestionID:   questionID,
		AMM:          ammAddr,
	}
	l.CTF.Prepare(domain.ConditionID(oracleAddr, questionID, 2), 2)
	return l, a, desc
}

// --- tests ---

func TestRefresh_UnresolvedBinaryMarket(t *testing.T) {
	l, _, desc := newFixture(t)
	v := market.NewView(l, desc, oracleAddr)

	cond := domain.ConditionID(oracleAddr, questionID, 2)
	pos0 := domain.PositionID(l.WETH.Addr, portstest.CollectionID(cond, domain.IndexSet(0)))
	l.CTF.SetBalance(l.Acct, pos0, big.NewInt(3e18))

	m, err := v.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, cond, m.ConditionID)
	assert.False(t, m.Resolved())
	assert.Equal(t, domain.StageRunning, m.Stage)
	require.Len(t, m.Outcomes, 2)
	for _, o := range m.Outcomes {
		assert.Nil(t, o.PayoutNumerator, "numerators are indeterminate while unresolved")
		assert.Equal(t, "50", o.Probability.String())
	}
	assert.Equal(t, "Yes", m.Outcomes[0].Title)
	assert.Equal(t, "No", m.Outcomes[1].Title)
	assert.Equal(t, "3", m.Outcomes[0].BalanceUnits.String())
	assert.Equal(t, 0, m.Outcomes[1].Balance.Sign())
	assert.Empty(t, m.Winners())

	got, stale, ok := v.Snapshot()
	require.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, m.ConditionID, got.ConditionID)
}

func TestRefresh_UsesIndexSetBitmask(t *testing.T) {
	l := portstest.NewLedger()
	l.AddAMM(ammAddr, 3)
	l.CTF.Prepare(domain.ConditionID(oracleAddr, questionID, 3), 3)
	desc := domain.MarketDescriptor{Title: "Three way", OutcomeCount: 3, QuestionID: questionID, AMM: ammAddr}

	_, err := market.NewView(l, desc, oracleAddr).Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, l.CTF.IndexSets, 3)
	assert.Equal(t, int64(1), l.CTF.IndexSets[0].Int64())
	assert.Equal(t, int64(2), l.CTF.IndexSets[1].Int64())
	assert.Equal(t, int64(4), l.CTF.IndexSets[2].Int64())
}

func TestRefresh_ConfiguredConditionIDUsedVerbatim(t *testing.T) {
	l, _, desc := newFixture(t)
	desc.ConditionID = common.HexToHash("0xc0ffee")
	l.CTF.Prepare(desc.ConditionID, 2)
	v := market.NewView(l, desc, oracleAddr)

	assert.Equal(t, desc.ConditionID, v.ConditionID())
	m, err := v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, desc.ConditionID, m.ConditionID)
}

func TestRefresh_OutcomeSlotMismatch(t *testing.T) {
	l, _, desc := newFixture(t)
	desc.ConditionID = common.HexToHash("0xc0ffee")
	l.CTF.Prepare(desc.ConditionID, 3)
	v := market.NewView(l, desc, oracleAddr)

	_, err := v.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.ErrorContains(t, err, "3 outcome slots, configured 2")

	_, stale, ok := v.Snapshot()
	assert.False(t, ok)
	assert.True(t, stale)
}

func TestRefresh_UnpreparedCondition(t *testing.T) {
	l, _, desc := newFixture(t)
	v := market.NewView(l, desc, common.HexToAddress("0xbad0"))

	_, err := v.Refresh(context.Background())
	assert.ErrorContains(t, err, "0 outcome slots")
}

func TestRefresh_SlotCountCheckedOnce(t *testing.T) {
	l, _, desc := newFixture(t)
	v := market.NewView(l, desc, oracleAddr)

	_, err := v.Refresh(context.Background())
	require.NoError(t, err)

	l.FailReads["getOutcomeSlotCount"] = errors.New("rpc timeout")
	_, err = v.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestRefresh_ResolvedMarketReadsNumerators(t *testing.T) {
	l, a, desc := newFixture(t)
	a.Stage = domain.StageClosed
	l.CTF.Resolve(domain.ConditionID(oracleAddr, questionID, 2), 0, 1)

	m, err := market.NewView(l, desc, oracleAddr).Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, m.Resolved())
	assert.Equal(t, []int{1}, m.Winners())
	assert.True(t, m.Outcomes[0].Determined())
}

func TestRefresh_ReadFailureKeepsPreviousSnapshotStale(t *testing.T) {
	l, a, desc := newFixture(t)
	v := market.NewView(l, desc, oracleAddr)

	_, err := v.Refresh(context.Background())
	require.NoError(t, err)

	a.Stage = domain.StagePaused
	l.FailReads["calcMarginalPrice"] = errors.New("rpc timeout")

	_, err = v.Refresh(context.Background())
	require.Error(t, err)
	var re *domain.ReadError
	assert.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, v.LastError())

	m, stale, ok := v.Snapshot()
	require.True(t, ok)
	assert.True(t, stale)
	assert.Equal(t, domain.StageRunning, m.Stage, "a partial refresh must not leak into the snapshot")

	delete(l.FailReads, "calcMarginalPrice")
	m, err = v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StagePaused, m.Stage)
	_, stale, _ = v.Snapshot()
	assert.False(t, stale)
	assert.NoError(t, v.LastError())
}

func TestSnapshot_BeforeFirstRefresh(t *testing.T) {
	l, _, desc := newFixture(t)
	l.FailReads["decimals"] = errors.New("down")
	v := market.NewView(l, desc, oracleAddr)

	_, err := v.Refresh(context.Background())
	require.Error(t, err)

	_, stale, ok := v.Snapshot()
	assert.False(t, ok)
	assert.True(t, stale)
}

func TestBoard_LookupAndSnapshots(t *testing.T) {
	l, _, desc := newFixture(t)
	other := common.HexToAddress("0xa22")
	l.AddAMM(other, 2)
	l.CTF.Prepare(domain.ConditionID(oracleAddr, common.HexToHash("0x52"), 2), 2)
	descs := []domain.MarketDescriptor{
		desc,
		{Title: "Will it rain in Lisbon?", OutcomeCount: 2, QuestionID: common.HexToHash("0x52"), AMM: other},
	}
	b := market.NewBoard(l, descs, oracleAddr)

	v, err := b.Lookup(other.Hex())
	require.NoError(t, err)
	assert.Equal(t, other, v.Descriptor().AMM)

	v, err = b.Lookup("will it rain in m")
	require.NoError(t, err)
	assert.Equal(t, ammAddr, v.Descriptor().AMM)

	_, err = b.Lookup("will it rain")
	assert.Error(t, err, "ambiguous prefix")
	_, err = b.Lookup("snow")
	assert.Error(t, err)

	assert.Empty(t, b.RefreshAll(context.Background()))
	markets, stale := b.Snapshots()
	assert.Len(t, markets, 2)
	assert.Empty(t, stale)
}
