package onchain_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ctfdesk/internal/adapters/onchain"
	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// --- fake backend ---

type fakeBackend struct {
	mu sync.Mutex

	calls       map[string][]byte // selector hex -> return data
	callErr     error
	replayErr   error
	estimateErr error
	sendErr     error
	status      uint64
	receiptLogs []*types.Log

	queries   []ethereum.FilterQuery
	failChunk map[uint64]bool // FromBlock -> fail
	events    []types.Log     // served instead of the synthetic per-chunk log when set
	sent      []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:     make(map[string][]byte),
		failChunk: make(map[uint64]bool),
		status:    types.ReceiptStatusSuccessful,
	}
}

func selector(sig string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if block != nil && f.replayErr != nil {
		return nil, f.replayErr
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	out, ok := f.calls[hexutil.Encode(msg.Data[:4])]
	if !ok {
		return nil, errors.New("no such method")
	}
	return out, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	from := q.FromBlock.Uint64()
	if f.failChunk[from] {
		return nil, errors.New("query returned more than 10000 results")
	}
	if f.events != nil {
		var out []types.Log
		for _, l := range f.events {
			if l.BlockNumber >= from && l.BlockNumber <= q.ToBlock.Uint64() && l.Topics[0] == q.Topics[0][0] {
				out = append(out, l)
			}
		}
		return out, nil
	}
	return []types.Log{{Address: q.Addresses[0], BlockNumber: from, Topics: []common.Hash{q.Topics[0][0]}}}, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return 1_000_000, nil }

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(5e18), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1e9), nil }

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:      f.status,
		TxHash:      h,
		BlockNumber: big.NewInt(42),
		GasUsed:     90_000,
		Logs:        f.receiptLogs,
	}, nil
}

// revertErr mimics the JSON-RPC error carrying revert data.
type revertErr struct{ data string }

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	sel := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(sel, packed...))
}

func newGateway(t *testing.T, b *fakeBackend, signer bool) *onchain.Gateway {
	t.Helper()
	opts := onchain.Options{ReceiptPoll: time.Millisecond, ReceiptTimeout: time.Second}
	if !signer {
		return onchain.NewGateway(b, 1337, nil, opts)
	}
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return onchain.NewGateway(b, 1337, key, opts)
}

// --- tests ---

func TestChunks_SplitsInclusiveRanges(t *testing.T) {
	got := onchain.Chunks(0, 119_999, onchain.DefaultLogChunkSize)
	require.Len(t, got, 3)
	assert.Equal(t, onchain.BlockRange{From: 0, To: 49_999}, got[0])
	assert.Equal(t, onchain.BlockRange{From: 50_000, To: 99_999}, got[1])
	assert.Equal(t, onchain.BlockRange{From: 100_000, To: 119_999}, got[2])

	assert.Len(t, onchain.Chunks(10, 10, 50_000), 1)
	assert.Empty(t, onchain.Chunks(11, 10, 50_000))
}

func TestFetchLogs_120kBlocksIssuesThreeQueries(t *testing.T) {
	b := newFakeBackend()
	gw := newGateway(t, b, false)

	event := abi.NewEvent("Ping", "Ping", false, nil)
	logs, failed, err := gw.FetchLogs(context.Background(), common.HexToAddress("0xada"), event, 1_000, 120_999)
	require.NoError(t, err)
	assert.Empty(t, failed)

	require.Len(t, b.queries, 3)
	for _, q := range b.queries {
		span := q.ToBlock.Uint64() - q.FromBlock.Uint64() + 1
		assert.LessOrEqual(t, span, onchain.DefaultLogChunkSize)
	}

	require.Len(t, logs, 3)
	assert.Equal(t, uint64(1_000), logs[0].BlockNumber)
	assert.Equal(t, uint64(51_000), logs[1].BlockNumber)
	assert.Equal(t, uint64(101_000), logs[2].BlockNumber)
}

func TestFetchLogs_FailedChunkDoesNotAbort(t *testing.T) {
	b := newFakeBackend()
	b.failChunk[50_000] = true
	gw := newGateway(t, b, false)

	event := abi.NewEvent("Ping", "Ping", false, nil)
	logs, failed, err := gw.FetchLogs(context.Background(), common.HexToAddress("0xada"), event, 0, 119_999)
	require.NoError(t, err)

	assert.Len(t, b.queries, 3, "remaining chunks are still fetched")
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(0), logs[0].BlockNumber)
	assert.Equal(t, uint64(100_000), logs[1].BlockNumber)

	require.Len(t, failed, 1)
	assert.Equal(t, uint64(50_000), failed[0].FromBlock)
	assert.Equal(t, uint64(99_999), failed[0].ToBlock)
	assert.Equal(t, "Ping", failed[0].Event)
}

func TestCall_FailureIsReadError(t *testing.T) {
	b := newFakeBackend()
	b.callErr = errors.New("connection refused")
	gw := newGateway(t, b, false)

	_, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).Stage(context.Background())
	var re *domain.ReadError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Op, "stage")
}

func TestMarketMaker_Stage(t *testing.T) {
	b := newFakeBackend()
	b.calls[selector("stage()")] = word(1)
	gw := newGateway(t, b, false)

	stage, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).Stage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StagePaused, stage)

	b.calls[selector("stage()")] = word(7)
	_, err = onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).Stage(context.Background())
	assert.Error(t, err)
}

func TestSend_WithoutSigner(t *testing.T) {
	gw := newGateway(t, newFakeBackend(), false)

	_, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).Pause(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSigner)
}

func TestSend_RevertReasonFromEstimate(t *testing.T) {
	b := newFakeBackend()
	b.estimateErr = revertErr{data: encodeRevert(t, "Only owner can pause")}
	gw := newGateway(t, b, true)

	_, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).Pause(context.Background())
	var rev *domain.RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, "Only owner can pause", rev.Reason)
	assert.Equal(t, "pause", rev.Method)
	assert.Empty(t, b.sent, "nothing is submitted when estimation reverts")
}

func TestSend_RevertedReceiptReplaysReason(t *testing.T) {
	b := newFakeBackend()
	b.status = types.ReceiptStatusFailed
	b.replayErr = errors.New("execution reverted: result for condition not received yet")
	gw := newGateway(t, b, true)

	receipt, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).RedeemPositions(context.Background())
	var rev *domain.RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, "result for condition not received yet", rev.Reason)
	assert.Equal(t, receipt.TxHash, rev.TxHash)
	require.Len(t, b.sent, 1)
	assert.Equal(t, b.sent[0].Hash(), receipt.TxHash)
}

func TestSend_SignsWithPendingNonceAndBufferedGas(t *testing.T) {
	b := newFakeBackend()
	gw := newGateway(t, b, true)

	receipt, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).Close(context.Background())
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(1_100_000_000), tx.GasPrice())
	assert.Equal(t, uint64(42), receipt.BlockNumber)

	signer, ok := gw.Signer()
	require.True(t, ok)
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer, from)
}

func TestWithdrawFees_DecodesFeeLog(t *testing.T) {
	amm := common.HexToAddress("0xa11")
	b := newFakeBackend()
	b.receiptLogs = []*types.Log{
		{Address: common.HexToAddress("0xbeef"), Topics: []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))}},
		{Address: amm, Topics: []common.Hash{crypto.Keccak256Hash([]byte("AMMFeeWithdrawal(uint256)"))}, Data: word(12345)},
	}
	gw := newGateway(t, b, true)

	receipt, fees, err := onchain.NewMarketMaker(gw, amm).WithdrawFees(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fees)
	assert.Equal(t, int64(12345), fees.Int64())
	assert.Len(t, receipt.Logs, 2)
}

func TestChangeFee_RejectsOversizedFee(t *testing.T) {
	gw := newGateway(t, newFakeBackend(), true)
	tooBig := new(big.Int).Lsh(big.NewInt(1), 70)

	_, err := onchain.NewMarketMaker(gw, common.HexToAddress("0xa11")).ChangeFee(context.Background(), tooBig)
	assert.True(t, domain.IsValidation(err))
}
