package onchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// Token is a typed handle on an ERC-20. The wrapped-native collateral also
// exposes Deposit and Withdraw; on a plain ERC-20 those revert.
type Token struct {
	gw      *Gateway
	address common.Address
}

func NewToken(gw *Gateway, address common.Address) *Token {
	return &Token{gw: gw, address: address}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	return callOne[uint8](ctx, t.gw, t.address, &wethABI, "decimals")
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, t.gw, t.address, &wethABI, "balanceOf", account)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, t.gw, t.address, &wethABI, "allowance", owner, spender)
}

func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (domain.Receipt, error) {
	return t.gw.Send(ctx, t.address, &wethABI, "approve", nil, spender, amount)
}

// Deposit wraps value units of the native currency.
func (t *Token) Deposit(ctx context.Context, value *big.Int) (domain.Receipt, error) {
	return t.gw.Send(ctx, t.address, &wethABI, "deposit", value)
}

// Withdraw unwraps amount back to the native currency.
func (t *Token) Withdraw(ctx context.Context, amount *big.Int) (domain.Receipt, error) {
	return t.gw.Send(ctx, t.address, &wethABI, "withdraw", nil, amount)
}

// Wallet exposes the session account and its native balance.
type Wallet struct {
	gw      *Gateway
	account common.Address
}

func NewWallet(gw *Gateway, account common.Address) *Wallet {
	return &Wallet{gw: gw, account: account}
}

func (w *Wallet) Account() common.Address { return w.account }

func (w *Wallet) NativeBalance(ctx context.Context) (*big.Int, error) {
	return w.gw.BalanceAt(ctx, w.account)
}
