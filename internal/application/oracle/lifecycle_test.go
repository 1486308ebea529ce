package oracle_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ctfdesk/internal/application/oracle"
	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports/portstest"
)

var identifier = [32]byte{'Y', 'E', 'S', '_', 'O', 'R', '_', 'N', 'O'}

type fixture struct {
	ledger *portstest.Ledger
	store  *portstest.Store
	lc     *oracle.Lifecycle
	now    time.Time
}

func newFixture(t *testing.T, startBlock uint64) *fixture {
	t.Helper()
	f := &fixture{
		ledger: portstest.NewLedger(),
		store:  portstest.NewStore(),
		now:    time.Unix(1_700_000_000, 0),
	}
	f.ledger.Head = 1_000
	f.lc = f.newLifecycle(startBlock)
	return f
}

func (f *fixture) newLifecycle(startBlock uint64) *oracle.Lifecycle {
	return oracle.NewLifecycle(f.ledger, f.store, oracle.Config{
		StartBlock:      startBlock,
		PriceIdentifier: identifier,
		Clock:           func() time.Time { return f.now },
	})
}

func ancillary(title string) []byte {
	return []byte("q: title: " + title + ", description: test question, res_data: p1: 0, p2: 1, p3: 0.5" +
		",initializer:91430cad2d3975766499717fa0d66a78d814e5c5")
}

// addQuestion registers a question on the adapter and its initialization
// event at block.
func (f *fixture) addQuestion(id common.Hash, block uint64, data domain.QuestionData) domain.QuestionData {
	if data.Creator == (common.Address{}) {
		data.Creator = common.HexToAddress("0xc4ea")
	}
	if data.AncillaryData == nil {
		data.AncillaryData = ancillary("Question " + id.Hex()[60:])
	}
	if data.RequestTimestamp == nil {
		data.RequestTimestamp = new(big.Int)
	}
	f.ledger.Adapt.Questions[id] = data
	f.ledger.Adapt.Initialized = append(f.ledger.Adapt.Initialized, domain.QuestionInitialized{
		QuestionID:       id,
		RequestTimestamp: data.RequestTimestamp,
		Creator:          data.Creator,
		AncillaryData:    data.AncillaryData,
		BlockNumber:      block,
		TxHash:           common.BigToHash(new(big.Int).SetUint64(block)),
	})
	return data
}

func (f *fixture) cursorName() string {
	return "adapter:" + f.ledger.Adapt.Addr.Hex()
}

// --- tests ---

func TestRefresh_NoRequestIsWaitingForProposal(t *testing.T) {
	f := newFixture(t, 0)
	id := common.HexToHash("0x01")
	f.addQuestion(id, 10, domain.QuestionData{AncillaryData: ancillary("Will it rain in Madrid?")})

	qs, err := f.lc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 1)

	q := qs[0]
	assert.Equal(t, domain.StatusWaitingForProposal, q.Status)
	assert.Equal(t, "Will it rain in Madrid?", q.Ancillary.Title)
	assert.Equal(t, uint64(10), q.BlockNumber)
	assert.Nil(t, q.Request, "no oracle request is read without a request timestamp")
	assert.False(t, q.CanPropose())
	assert.Empty(t, f.ledger.OO.Keys)
}

func TestRefresh_RequestWithoutProposerIsWaitingForProposal(t *testing.T) {
	f := newFixture(t, 0)
	id := common.HexToHash("0x02")
	f.addQuestion(id, 10, domain.QuestionData{RequestTimestamp: big.NewInt(f.now.Unix() - 60)})

	qs, err := f.lc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, domain.StatusWaitingForProposal, qs[0].Status)
	assert.True(t, qs[0].CanPropose())
}

func TestLifecycle_ProposalLivenessSettleResolve(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := common.HexToHash("0x03")
	data := f.addQuestion(id, 20, domain.QuestionData{RequestTimestamp: big.NewInt(f.now.Unix() - 60)})
	f.ledger.OO.Requests[portstest.RequestID(data.AncillaryData)] = &domain.OracleRequest{
		Proposer:       common.HexToAddress("0xbeef"),
		ProposedPrice:  big.NewInt(1e18),
		ExpirationTime: big.NewInt(f.now.Add(time.Hour).Unix()),
		Bond:           big.NewInt(500),
		FinalFee:       big.NewInt(5),
	}

	qs, err := f.lc.Refresh(ctx)
	require.NoError(t, err)
	q := qs[0]
	assert.Equal(t, domain.StatusProposedPendingLiveness, q.Status)
	assert.True(t, q.CanDispute(f.now))
	assert.False(t, q.CanSettle(f.now))
	assert.Equal(t, time.Hour, q.Remaining(f.now))

	key := f.ledger.OO.Keys[len(f.ledger.OO.Keys)-1]
	assert.Equal(t, f.ledger.Adapt.Addr, key.Requester)
	assert.Equal(t, identifier, key.Identifier)
	assert.Equal(t, data.RequestTimestamp, key.Timestamp)
	assert.Equal(t, data.AncillaryData, key.AncillaryData)

	// Liveness elapsed, adapter not ready yet: settle is offered.
	f.now = f.now.Add(2 * time.Hour)
	q, err = f.lc.Question(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposedPendingLiveness, q.Status)
	assert.True(t, q.CanSettle(f.now))
	assert.False(t, q.CanDispute(f.now))

	_, err = f.ledger.OptimisticOracle().Settle(ctx, f.lc.RequestKey(data))
	require.NoError(t, err)
	f.ledger.Adapt.ReadyQ[id] = true

	q, err = f.lc.Question(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReadyToResolve, q.Status)
	assert.True(t, q.CanResolve())

	_, err = f.ledger.Adapter().Resolve(ctx, id)
	require.NoError(t, err)
	q, err = f.lc.Question(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, q.Status)
}

func TestRefresh_Disputed(t *testing.T) {
	f := newFixture(t, 0)
	id := common.HexToHash("0x04")
	data := f.addQuestion(id, 30, domain.QuestionData{RequestTimestamp: big.NewInt(f.now.Unix())})
	f.ledger.OO.Requests[portstest.RequestID(data.AncillaryData)] = &domain.OracleRequest{
		Proposer:       common.HexToAddress("0xbeef"),
		Disputer:       common.HexToAddress("0xd15"),
		ExpirationTime: big.NewInt(f.now.Add(time.Hour).Unix()),
	}

	qs, err := f.lc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, qs[0].Status)
	assert.False(t, qs[0].CanDispute(f.now))
	assert.False(t, qs[0].CanSettle(f.now))
}

func TestRefresh_StatusIsRederivedFromLiveReads(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := common.HexToHash("0x05")
	data := f.addQuestion(id, 10, domain.QuestionData{RequestTimestamp: big.NewInt(f.now.Unix())})

	qs, err := f.lc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForProposal, qs[0].Status)

	// Someone else proposes outside this client.
	f.ledger.OO.Requests[portstest.RequestID(data.AncillaryData)] = &domain.OracleRequest{
		Proposer:       common.HexToAddress("0xbeef"),
		ExpirationTime: big.NewInt(f.now.Add(time.Hour).Unix()),
	}
	qs, err = f.lc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposedPendingLiveness, qs[0].Status)
}

func TestRefresh_ReadFailureKeepsStaleSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := common.HexToHash("0x06")
	f.addQuestion(id, 10, domain.QuestionData{})

	_, err := f.lc.Refresh(ctx)
	require.NoError(t, err)

	f.ledger.FailReads["ready"] = errors.New("rpc down")
	qs, err := f.lc.Refresh(ctx)
	require.NoError(t, err, "per-question failures are soft")
	require.Len(t, qs, 1)
	assert.True(t, qs[0].Stale)
	assert.Equal(t, domain.StatusWaitingForProposal, qs[0].Status)

	delete(f.ledger.FailReads, "ready")
	qs, err = f.lc.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, qs[0].Stale)
}

func TestSync_FailedChunkHoldsCursor(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.ledger.Head = 120_000
	f.addQuestion(common.HexToHash("0x0a"), 100, domain.QuestionData{})
	f.addQuestion(common.HexToHash("0x0b"), 60_000, domain.QuestionData{})
	f.addQuestion(common.HexToHash("0x0c"), 110_000, domain.QuestionData{})
	f.ledger.Adapt.ChunkErrs = []*domain.ChunkFetchError{{
		Event: "QuestionInitialized", FromBlock: 50_000, ToBlock: 99_999, Err: errors.New("range too large"),
	}}

	qs, err := f.lc.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, qs, 2, "events of the failed chunk are missing")
	assert.Equal(t, uint64(110_000), qs[0].BlockNumber, "newest first")
	require.Len(t, f.lc.ChunkErrors(), 1)
	assert.Equal(t, uint64(49_999), f.store.Cursors[f.cursorName()])

	// The provider recovers: the next scan starts at the failed chunk.
	f.ledger.Adapt.ChunkErrs = nil
	f.ledger.Head = 130_000
	qs, err = f.lc.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, qs, 3)
	assert.Empty(t, f.lc.ChunkErrors())
	last := f.ledger.Adapt.Queries[len(f.ledger.Adapt.Queries)-1]
	assert.Equal(t, [2]uint64{50_000, 130_000}, last)
	assert.Equal(t, uint64(130_000), f.store.Cursors[f.cursorName()])
}

func TestSync_FirstChunkFailedDoesNotAdvance(t *testing.T) {
	f := newFixture(t, 500)
	f.ledger.Adapt.ChunkErrs = []*domain.ChunkFetchError{{FromBlock: 500, ToBlock: 1_000, Err: errors.New("timeout")}}

	errs, err := f.lc.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, errs, 1)
	_, ok := f.store.Cursors[f.cursorName()]
	assert.False(t, ok)

	f.ledger.Adapt.ChunkErrs = nil
	_, err = f.lc.Sync(context.Background())
	require.NoError(t, err)
	last := f.ledger.Adapt.Queries[len(f.ledger.Adapt.Queries)-1]
	assert.Equal(t, uint64(500), last[0])
}

func TestSync_RestartResumesFromCache(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.addQuestion(common.HexToHash("0x0d"), 10, domain.QuestionData{})

	_, err := f.lc.Refresh(ctx)
	require.NoError(t, err)

	f.ledger.Head = 2_000
	restarted := f.newLifecycle(0)
	qs, err := restarted.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, qs, 1, "questions restored from the event cache")
	last := f.ledger.Adapt.Queries[len(f.ledger.Adapt.Queries)-1]
	assert.Equal(t, uint64(1_001), last[0])
}

func TestSnapshot_Filter(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	waiting := common.HexToHash("0x11")
	ready := common.HexToHash("0x12")
	resolved := common.HexToHash("0x13")
	f.addQuestion(waiting, 10, domain.QuestionData{})
	f.addQuestion(ready, 11, domain.QuestionData{RequestTimestamp: big.NewInt(1)})
	f.addQuestion(resolved, 12, domain.QuestionData{Resolved: true})
	f.ledger.Adapt.ReadyQ[ready] = true

	_, err := f.lc.Refresh(ctx)
	require.NoError(t, err)

	assert.Len(t, f.lc.Snapshot(domain.FilterAll), 3)
	require.Len(t, f.lc.Snapshot(domain.FilterPending), 1)
	assert.Equal(t, waiting, f.lc.Snapshot(domain.FilterPending)[0].QuestionID)
	require.Len(t, f.lc.Snapshot(domain.FilterReady), 1)
	assert.Equal(t, ready, f.lc.Snapshot(domain.FilterReady)[0].QuestionID)
	require.Len(t, f.lc.Snapshot(domain.FilterResolved), 1)
	assert.Equal(t, resolved, f.lc.Snapshot(domain.FilterResolved)[0].QuestionID)
}

func TestQuestion_Unknown(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.lc.Question(context.Background(), common.HexToHash("0xdead"))
	assert.Error(t, err)
}

func TestRefresh_AttachesResolution(t *testing.T) {
	f := newFixture(t, 0)
	id := common.HexToHash("0x21")
	f.addQuestion(id, 10, domain.QuestionData{Resolved: true})
	f.ledger.Adapt.Resolved = []domain.QuestionResolved{{
		QuestionID: id, SettledPrice: big.NewInt(1e18),
		Payouts: []*big.Int{big.NewInt(1), big.NewInt(0)}, BlockNumber: 900,
	}}

	qs, err := f.lc.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, qs[0].Resolution)
	assert.Equal(t, uint64(900), qs[0].Resolution.BlockNumber)
	assert.Equal(t, domain.StatusResolved, qs[0].Status)
}
