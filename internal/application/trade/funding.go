package trade

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// fund makes sure the account holds amount of wrapped collateral and that
// spender may pull it. A short wrapped balance wraps the whole amount; a short
// allowance approves the maximum once so later actions skip the step.
func (r *run) fund(ctx context.Context, spender common.Address, amount *big.Int) error {
	ledger := r.o.ledger
	account := ledger.Account()
	collateral := ledger.Collateral()
	action := r.result.Action

	wrapped, err := collateral.BalanceOf(ctx, account)
	if err != nil {
		return err
	}
	if wrapped.Cmp(amount) < 0 {
		native, err := ledger.Wallet().NativeBalance(ctx)
		if err != nil {
			return err
		}
		if native.Cmp(amount) < 0 {
			return domain.Invalid(action, "insufficient native balance to wrap %s (have %s)", amount, native)
		}
		if err := r.step(ctx, "wrap", collateral.Address(), func(ctx context.Context) (domain.Receipt, error) {
			return collateral.Deposit(ctx, amount)
		}); err != nil {
			return err
		}
	}

	allowance, err := collateral.Allowance(ctx, account, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return r.step(ctx, "approve", collateral.Address(), func(ctx context.Context) (domain.Receipt, error) {
			return collateral.Approve(ctx, spender, domain.MaxUint256)
		})
	}
	return nil
}

// Wrap converts native currency into wrapped collateral.
func (o *Orchestrator) Wrap(ctx context.Context, amount *big.Int) (domain.ActionResult, error) {
	const action = "wrap"
	if amount == nil || amount.Sign() <= 0 {
		return domain.ActionResult{}, domain.Invalid(action, "amount must be positive")
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	native, err := o.ledger.Wallet().NativeBalance(ctx)
	if err != nil {
		return r.result, err
	}
	if native.Cmp(amount) < 0 {
		return r.result, domain.Invalid(action, "insufficient native balance: need %s, have %s", amount, native)
	}
	collateral := o.ledger.Collateral()
	err = r.step(ctx, "deposit", collateral.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return collateral.Deposit(ctx, amount)
	})
	if err == nil {
		r.result.Amount = o.wrappedBalance(ctx)
	}
	return r.result, err
}

// Unwrap converts wrapped collateral back into native currency.
func (o *Orchestrator) Unwrap(ctx context.Context, amount *big.Int) (domain.ActionResult, error) {
	const action = "unwrap"
	if amount == nil || amount.Sign() <= 0 {
		return domain.ActionResult{}, domain.Invalid(action, "amount must be positive")
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	collateral := o.ledger.Collateral()
	wrapped, err := collateral.BalanceOf(ctx, o.ledger.Account())
	if err != nil {
		return r.result, err
	}
	if wrapped.Cmp(amount) < 0 {
		return r.result, domain.Invalid(action, "insufficient wrapped balance: need %s, have %s", amount, wrapped)
	}
	err = r.step(ctx, "withdraw", collateral.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return collateral.Withdraw(ctx, amount)
	})
	if err == nil {
		r.result.Amount = o.wrappedBalance(ctx)
	}
	return r.result, err
}

// wrappedBalance re-reads the account's wrapped collateral after a wrap or
// unwrap. No market snapshot holds it, so there is no view to refresh. A
// failed read returns nil.
func (o *Orchestrator) wrappedBalance(ctx context.Context) *big.Int {
	bal, err := o.ledger.Collateral().BalanceOf(ctx, o.ledger.Account())
	if err != nil {
		slog.Warn("trade: post-write balance read failed", "err", err)
		return nil
	}
	return bal
}

// ApproveCollateral grants the market's AMM the maximum allowance.
func (o *Orchestrator) ApproveCollateral(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	r, release, err := o.begin("approve")
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()
	defer refreshMarket(ctx, m)

	collateral := o.ledger.Collateral()
	amm := m.Descriptor().AMM
	err = r.step(ctx, "approve", collateral.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return collateral.Approve(ctx, amm, domain.MaxUint256)
	})
	return r.result, err
}
