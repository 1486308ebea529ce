// Package portstest provides an in-memory ledger implementing the contract
// ports, for tests of the application layer.
package portstest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// Call is one write submitted to the fake ledger.
type Call struct {
	Contract common.Address
	Method   string
	Args     []any
	Value    *big.Int
	TxHash   common.Hash
}

// Ledger is a fake chain. Its exported state can be set directly by tests;
// writes mutate it roughly the way the real contracts would.
type Ledger struct {
	mu sync.Mutex

	Acct   common.Address
	Signer bool
	Native *big.Int
	Head   uint64

	AMMs   map[common.Address]*AMM
	CTF    *CTF
	WETH   *Token
	Reward *Token
	Adapt  *Adapter
	OO     *Oracle

	// FailReads makes the named view method fail with a ReadError.
	FailReads map[string]error
	// Reverts makes the named write revert with the given reason.
	Reverts map[string]string

	Calls []Call
	reads int
}

// NewLedger returns a ledger with a signing account and empty contracts.
func NewLedger() *Ledger {
	return &Ledger{
		Acct:      common.HexToAddress("0xacc0"),
		Signer:    true,
		Native:    new(big.Int),
		Head:      1,
		AMMs:      make(map[common.Address]*AMM),
		CTF:       NewCTF(common.HexToAddress("0xc7f0")),
		WETH:      NewToken(common.HexToAddress("0xe770"), 18),
		Reward:    NewToken(common.HexToAddress("0x7e70"), 18),
		Adapt:     NewAdapter(common.HexToAddress("0xada0")),
		OO:        NewOracle(common.HexToAddress("0x0a00")),
		FailReads: make(map[string]error),
		Reverts:   make(map[string]string),
	}
}

// AddAMM registers an AMM and returns it for configuration.
func (l *Ledger) AddAMM(addr common.Address, outcomes int) *AMM {
	a := &AMM{
		Addr:        addr,
		Stage:       domain.StageRunning,
		Fee:         new(big.Int),
		Funding:     new(big.Int),
		Prices:      make([]*big.Int, outcomes),
		NetCost:     new(big.Int),
		Shares:      new(big.Int),
		TotalShares: new(big.Int),
		PendingFees: new(big.Int),
		SharePct:    new(big.Int),
	}
	for i := range a.Prices {
		a.Prices[i] = new(big.Int)
	}
	l.mu.Lock()
	l.AMMs[addr] = a
	l.mu.Unlock()
	return a
}

// Methods returns the names of the submitted writes, in order.
func (l *Ledger) Methods() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.Calls))
	for i, c := range l.Calls {
		out[i] = c.Method
	}
	return out
}

// CallsTo returns the writes with the given method name.
func (l *Ledger) CallsTo(method string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Call
	for _, c := range l.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reads returns how many view calls were served.
func (l *Ledger) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

// read must be called with l.mu held.
func (l *Ledger) read(method string) error {
	l.reads++
	if err, ok := l.FailReads[method]; ok {
		return &domain.ReadError{Op: method, Err: err}
	}
	return nil
}

// write records a call and decides its outcome. Must be called with l.mu held.
func (l *Ledger) write(contract common.Address, method string, value *big.Int, args ...any) (domain.Receipt, error) {
	if !l.Signer {
		return domain.Receipt{}, domain.ErrNoSigner
	}
	l.Head++
	hash := common.BigToHash(new(big.Int).SetUint64(l.Head))
	l.Calls = append(l.Calls, Call{Contract: contract, Method: method, Args: args, Value: value, TxHash: hash})
	receipt := domain.Receipt{TxHash: hash, BlockNumber: l.Head, GasUsed: 21_000}
	if reason, ok := l.Reverts[method]; ok {
		return receipt, &domain.RevertError{Method: method, TxHash: hash, Reason: reason}
	}
	return receipt, nil
}

// ─── ports.Ledger ────────────────────────────────────────────────────────

func (l *Ledger) Account() common.Address { return l.Acct }
func (l *Ledger) CanSign() bool           { return l.Signer }

func (l *Ledger) MarketMaker(addr common.Address) ports.MarketMaker {
	return &ammHandle{l: l, addr: addr}
}

func (l *Ledger) ConditionalTokens() ports.ConditionalTokens { return &ctfHandle{l: l} }
func (l *Ledger) Collateral() ports.Collateral               { return &tokenHandle{l: l, t: l.WETH} }
func (l *Ledger) RewardToken() ports.Token                   { return &tokenHandle{l: l, t: l.Reward} }
func (l *Ledger) Adapter() ports.OracleAdapter               { return &adapterHandle{l: l} }
func (l *Ledger) OptimisticOracle() ports.OptimisticOracle   { return &ooHandle{l: l} }
func (l *Ledger) Wallet() ports.Wallet                       { return &walletHandle{l: l} }
func (l *Ledger) Chain() ports.Chain                         { return &chainHandle{l: l} }

type walletHandle struct{ l *Ledger }

func (w *walletHandle) Account() common.Address { return w.l.Acct }

func (w *walletHandle) NativeBalance(context.Context) (*big.Int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	if err := w.l.read("nativeBalance"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(w.l.Native), nil
}

type chainHandle struct{ l *Ledger }

func (c *chainHandle) BlockNumber(context.Context) (uint64, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.read("blockNumber"); err != nil {
		return 0, err
	}
	return c.l.Head, nil
}

// ─── Tokens ──────────────────────────────────────────────────────────────

// Token is an ERC-20 that also wraps the native currency.
type Token struct {
	Addr       common.Address
	Decimals   uint8
	Balances   map[common.Address]*big.Int
	Allowances map[[2]common.Address]*big.Int
}

func NewToken(addr common.Address, decimals uint8) *Token {
	return &Token{
		Addr:       addr,
		Decimals:   decimals,
		Balances:   make(map[common.Address]*big.Int),
		Allowances: make(map[[2]common.Address]*big.Int),
	}
}

func (t *Token) balance(a common.Address) *big.Int {
	if b, ok := t.Balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.Allowances[[2]common.Address{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}

type tokenHandle struct {
	l *Ledger
	t *Token
}

func (h *tokenHandle) Address() common.Address { return h.t.Addr }

func (h *tokenHandle) Decimals(context.Context) (uint8, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("decimals"); err != nil {
		return 0, err
	}
	return h.t.Decimals, nil
}

func (h *tokenHandle) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("token.balanceOf"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(h.t.balance(account)), nil
}

func (h *tokenHandle) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("allowance"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(h.t.allowance(owner, spender)), nil
}

func (h *tokenHandle) Approve(_ context.Context, spender common.Address, amount *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.t.Addr, "approve", nil, spender, amount)
	if err == nil {
		h.t.Allowances[[2]common.Address{h.l.Acct, spender}] = new(big.Int).Set(amount)
	}
	return r, err
}

func (h *tokenHandle) Deposit(_ context.Context, value *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.t.Addr, "deposit", value)
	if err == nil {
		h.l.Native = new(big.Int).Sub(h.l.Native, value)
		h.t.Balances[h.l.Acct] = new(big.Int).Add(h.t.balance(h.l.Acct), value)
	}
	return r, err
}

func (h *tokenHandle) Withdraw(_ context.Context, amount *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.t.Addr, "withdraw", nil, amount)
	if err == nil {
		h.t.Balances[h.l.Acct] = new(big.Int).Sub(h.t.balance(h.l.Acct), amount)
		h.l.Native = new(big.Int).Add(h.l.Native, amount)
	}
	return r, err
}

// ─── AMM ─────────────────────────────────────────────────────────────────

// AMM is the state of one fake market maker.
type AMM struct {
	Addr        common.Address
	Stage       domain.Stage
	Fee         *big.Int
	Owner       common.Address
	Funding     *big.Int
	Prices      []*big.Int
	NetCost     *big.Int
	Shares      *big.Int
	TotalShares *big.Int
	PendingFees *big.Int
	SharePct    *big.Int
	// WithdrawnFees is what withdrawFees reports in its log; nil for no log.
	WithdrawnFees *big.Int
}

type ammHandle struct {
	l    *Ledger
	addr common.Address
}

func (h *ammHandle) amm() (*AMM, error) {
	a, ok := h.l.AMMs[h.addr]
	if !ok {
		return nil, &domain.ReadError{Op: "amm", Err: fmt.Errorf("no AMM at %s", h.addr.Hex())}
	}
	return a, nil
}

func (h *ammHandle) view(method string) (*AMM, error) {
	if err := h.l.read(method); err != nil {
		return nil, err
	}
	return h.amm()
}

func (h *ammHandle) Address() common.Address { return h.addr }

func (h *ammHandle) Stage(context.Context) (domain.Stage, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("stage")
	if err != nil {
		return 0, err
	}
	return a.Stage, nil
}

func (h *ammHandle) Fee(context.Context) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("fee")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.Fee), nil
}

func (h *ammHandle) Owner(context.Context) (common.Address, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("owner")
	if err != nil {
		return common.Address{}, err
	}
	return a.Owner, nil
}

func (h *ammHandle) Funding(context.Context) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("funding")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.Funding), nil
}

func (h *ammHandle) CalcMarginalPrice(_ context.Context, i int) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("calcMarginalPrice")
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(a.Prices) {
		return nil, &domain.ReadError{Op: "calcMarginalPrice", Err: fmt.Errorf("index %d", i)}
	}
	return new(big.Int).Set(a.Prices[i]), nil
}

func (h *ammHandle) CalcNetCost(_ context.Context, _ []*big.Int) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("calcNetCost")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.NetCost), nil
}

func (h *ammHandle) LiquidityShares(context.Context, common.Address) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("liquidityShares")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.Shares), nil
}

func (h *ammHandle) TotalShares(context.Context) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("totalShares")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.TotalShares), nil
}

func (h *ammHandle) PendingFees(context.Context, common.Address) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("getPendingFees")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.PendingFees), nil
}

func (h *ammHandle) SharePercentage(context.Context, common.Address) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	a, err := h.view("getSharePercentage")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.SharePct), nil
}

func (h *ammHandle) Trade(_ context.Context, amounts []*big.Int, limit *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	return h.l.write(h.addr, "trade", nil, amounts, limit)
}

func (h *ammHandle) AddLiquidity(_ context.Context, amount *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.addr, "addLiquidity", nil, amount)
	if err == nil {
		coll := h.l.WETH
		coll.Balances[h.l.Acct] = new(big.Int).Sub(coll.balance(h.l.Acct), amount)
		if a, aerr := h.amm(); aerr == nil {
			a.Shares = new(big.Int).Add(a.Shares, amount)
			a.TotalShares = new(big.Int).Add(a.TotalShares, amount)
		}
	}
	return r, err
}

func (h *ammHandle) WithdrawLiquidity(context.Context) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.addr, "withdrawLiquidity", nil)
	if err == nil {
		if a, aerr := h.amm(); aerr == nil {
			a.TotalShares = new(big.Int).Sub(a.TotalShares, a.Shares)
			a.Shares = new(big.Int)
		}
	}
	return r, err
}

func (h *ammHandle) RedeemPositions(context.Context) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	return h.l.write(h.addr, "amm.redeemPositions", nil)
}

func (h *ammHandle) WithdrawFees(context.Context) (domain.Receipt, *big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.addr, "withdrawFees", nil)
	if err != nil {
		return r, nil, err
	}
	a, aerr := h.amm()
	if aerr != nil || a.WithdrawnFees == nil {
		return r, nil, nil
	}
	return r, new(big.Int).Set(a.WithdrawnFees), nil
}

func (h *ammHandle) setStage(method string, s domain.Stage) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.addr, method, nil)
	if err == nil {
		if a, aerr := h.amm(); aerr == nil {
			a.Stage = s
		}
	}
	return r, err
}

func (h *ammHandle) Pause(context.Context) (domain.Receipt, error) {
	return h.setStage("pause", domain.StagePaused)
}

func (h *ammHandle) Resume(context.Context) (domain.Receipt, error) {
	return h.setStage("resume", domain.StageRunning)
}

func (h *ammHandle) Close(context.Context) (domain.Receipt, error) {
	return h.setStage("close", domain.StageClosed)
}

func (h *ammHandle) ChangeFee(_ context.Context, fee *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.addr, "changeFee", nil, fee)
	if err == nil {
		if a, aerr := h.amm(); aerr == nil {
			a.Fee = new(big.Int).Set(fee)
		}
	}
	return r, err
}

var _ ports.Ledger = (*Ledger)(nil)
