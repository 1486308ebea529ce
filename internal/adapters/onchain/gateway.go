package onchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

const (
	// Upper bound of blocks per eth_getLogs query accepted by public RPCs.
	DefaultLogChunkSize = uint64(50_000)

	defaultGasLimit        = uint64(500_000)
	gasPriceUpdateInterval = time.Minute
	defaultReceiptPoll     = 3 * time.Second
	defaultReceiptTimeout  = 2 * time.Minute
)

// Backend is the subset of the JSON-RPC client the gateway uses.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Options tune a Gateway. Zero values pick the defaults.
type Options struct {
	RatePerSec     float64
	LogChunkSize   uint64
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
}

// Gateway is the single point of contact with the ledger: contract reads,
// signed writes and chunked log retrieval. Every RPC goes through the
// rate limiter.
type Gateway struct {
	backend Backend
	chainID *big.Int
	key     *ecdsa.PrivateKey
	account common.Address
	limiter *rate.Limiter

	chunkSize      uint64
	receiptPoll    time.Duration
	receiptTimeout time.Duration

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Dial connects to rpcURL and builds a gateway. privateKeyHex may be empty
// for watch-only use; writes then fail with domain.ErrNoSigner.
func Dial(ctx context.Context, rpcURL string, chainID int64, privateKeyHex string, opts Options) (*Gateway, error) {
	var key *ecdsa.PrivateKey
	if privateKeyHex != "" {
		k, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("gateway: invalid private key: %w", err)
		}
		key = k
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial rpc %s: %w", rpcURL, err)
	}
	return NewGateway(client, chainID, key, opts), nil
}

// NewGateway wraps an existing backend. key may be nil.
func NewGateway(backend Backend, chainID int64, key *ecdsa.PrivateKey, opts Options) *Gateway {
	g := &Gateway{
		backend:        backend,
		chainID:        big.NewInt(chainID),
		key:            key,
		limiter:        rate.NewLimiter(rate.Inf, 1),
		chunkSize:      DefaultLogChunkSize,
		receiptPoll:    defaultReceiptPoll,
		receiptTimeout: defaultReceiptTimeout,
	}
	if key != nil {
		g.account = crypto.PubkeyToAddress(key.PublicKey)
	}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	if opts.LogChunkSize > 0 {
		g.chunkSize = opts.LogChunkSize
	}
	if opts.ReceiptPoll > 0 {
		g.receiptPoll = opts.ReceiptPoll
	}
	if opts.ReceiptTimeout > 0 {
		g.receiptTimeout = opts.ReceiptTimeout
	}
	return g
}

// Signer returns the signing account and whether a key is configured.
func (g *Gateway) Signer() (common.Address, bool) {
	return g.account, g.key != nil
}

func (g *Gateway) wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// ─── Reads ───────────────────────────────────────────────────────────────

// Call invokes a view method at the latest block and returns its decoded
// outputs. Failures come back as *domain.ReadError.
func (g *Gateway) Call(ctx context.Context, to common.Address, contract *abi.ABI, method string, args ...any) ([]any, error) {
	return g.CallAt(ctx, nil, to, contract, method, args...)
}

// CallAt is Call against a historical block; nil means latest.
func (g *Gateway) CallAt(ctx context.Context, block *big.Int, to common.Address, contract *abi.ABI, method string, args ...any) ([]any, error) {
	op := method + "@" + to.Hex()

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, &domain.ReadError{Op: op, Err: fmt.Errorf("pack: %w", err)}
	}
	if err := g.wait(ctx); err != nil {
		return nil, &domain.ReadError{Op: op, Err: err}
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{From: g.account, To: &to, Data: data}, block)
	if err != nil {
		return nil, &domain.ReadError{Op: op, Err: err}
	}

	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, &domain.ReadError{Op: op, Err: fmt.Errorf("unpack: %w", err)}
	}
	if len(vals) == 0 {
		return nil, &domain.ReadError{Op: op, Err: errors.New("empty result")}
	}
	return vals, nil
}

// BlockNumber returns the current head.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	if err := g.wait(ctx); err != nil {
		return 0, &domain.ReadError{Op: "blockNumber", Err: err}
	}
	n, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return 0, &domain.ReadError{Op: "blockNumber", Err: err}
	}
	return n, nil
}

// BalanceAt returns the native balance of account at the latest block.
func (g *Gateway) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := g.wait(ctx); err != nil {
		return nil, &domain.ReadError{Op: "balance", Err: err}
	}
	bal, err := g.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, &domain.ReadError{Op: "balance@" + account.Hex(), Err: err}
	}
	return bal, nil
}

// ─── Writes ──────────────────────────────────────────────────────────────

// Send signs and submits a call to method, then waits for the receipt.
//
// A rejection during gas estimation or a reverted receipt comes back as
// *domain.RevertError with the ledger's reason string. Once the transaction
// has been submitted the returned receipt carries its hash even when the
// wait fails; cancelling ctx abandons the wait, not the transaction.
func (g *Gateway) Send(ctx context.Context, to common.Address, contract *abi.ABI, method string, value *big.Int, args ...any) (domain.Receipt, error) {
	if g.key == nil {
		return domain.Receipt{}, domain.ErrNoSigner
	}
	if value == nil {
		value = new(big.Int)
	}

	data, err := contract.Pack(method, args...)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("gateway.Send: pack %s: %w", method, err)
	}

	if err := g.wait(ctx); err != nil {
		return domain.Receipt{}, err
	}
	nonce, err := g.backend.PendingNonceAt(ctx, g.account)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("gateway.Send: nonce: %w", err)
	}

	gasPrice, err := g.gasPrice(ctx)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("gateway.Send: gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: g.account, To: &to, GasPrice: gasPrice, Value: value, Data: data}
	if err := g.wait(ctx); err != nil {
		return domain.Receipt{}, err
	}
	gasLimit, err := g.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return domain.Receipt{}, &domain.RevertError{Method: method, Reason: reason}
		}
		gasLimit = defaultGasLimit
		slog.Warn("gateway: gas estimate failed, using default", "method", method, "err", err, "limit", gasLimit)
	}
	// 20% headroom over the estimate.
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("gateway.Send: sign tx: %w", err)
	}

	if err := g.wait(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		if reason, ok := revertReason(err); ok {
			return domain.Receipt{}, &domain.RevertError{Method: method, Reason: reason}
		}
		return domain.Receipt{}, fmt.Errorf("gateway.Send: send %s: %w", method, err)
	}

	txHash := signed.Hash()
	slog.Info("gateway: transaction sent", "method", method, "to", to.Hex(), "tx", txHash.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, g.receiptTimeout)
	defer cancel()

	receipt, err := g.waitForReceipt(waitCtx, txHash)
	if err != nil {
		return domain.Receipt{TxHash: txHash}, fmt.Errorf("gateway.Send: wait receipt for %s: %w", txHash.Hex(), err)
	}

	out := toReceipt(receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := g.replayReason(ctx, msg, receipt.BlockNumber)
		return out, &domain.RevertError{Method: method, TxHash: txHash, Reason: reason}
	}

	slog.Info("gateway: confirmed", "method", method, "tx", txHash.Hex(),
		"block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
	return out, nil
}

// replayReason re-executes a reverted call at its block to recover the
// revert string, which receipts do not carry.
func (g *Gateway) replayReason(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	if err := g.wait(ctx); err != nil {
		return "execution reverted"
	}
	msg.GasPrice = nil
	_, err := g.backend.CallContract(ctx, msg, block)
	if err == nil {
		return "execution reverted"
	}
	if reason, ok := revertReason(err); ok {
		return reason
	}
	return err.Error()
}

// revertReason extracts the revert string from an RPC error. ok is false
// when err is not an execution revert.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimPrefix(msg[i:], "execution reverted")
		reason = strings.TrimPrefix(reason, ": ")
		if reason == "" {
			reason = "execution reverted"
		}
		return reason, true
	}
	return "", false
}

// gasPrice returns the suggested gas price plus 10%, cached for a minute.
func (g *Gateway) gasPrice(ctx context.Context) (*big.Int, error) {
	g.mu.RLock()
	cached := g.cachedGasWei
	updatedAt := g.gasUpdatedAt
	g.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	price, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	g.mu.Lock()
	g.cachedGasWei = buffered
	g.gasUpdatedAt = time.Now()
	g.mu.Unlock()

	return buffered, nil
}

// waitForReceipt polls for a transaction receipt until mined or ctx ends.
func (g *Gateway) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.receiptPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if err := g.wait(ctx); err != nil {
				return nil, err
			}
			receipt, err := g.backend.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

func toReceipt(r *types.Receipt) domain.Receipt {
	out := domain.Receipt{TxHash: r.TxHash, GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	out.Logs = make([]domain.LogRecord, 0, len(r.Logs))
	for _, l := range r.Logs {
		if l != nil {
			out.Logs = append(out.Logs, toLogRecord(*l))
		}
	}
	return out
}

func toLogRecord(l types.Log) domain.LogRecord {
	return domain.LogRecord{
		Address:     l.Address,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		Index:       l.Index,
	}
}
