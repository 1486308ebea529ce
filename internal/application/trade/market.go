package trade

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// Every trade is submitted with a zero collateral limit, which disables the
// AMM's slippage check: the contract charges its own exact cost. The 1% buffer
// only sizes the wrap and approval that fund the trade.
var zeroLimit = new(big.Int)

// Buy buys amount outcome tokens of outcome.
func (o *Orchestrator) Buy(ctx context.Context, m MarketSource, outcome int, amount *big.Int) (domain.ActionResult, error) {
	const action = "buy"
	if amount == nil || amount.Sign() <= 0 {
		return domain.ActionResult{}, domain.Invalid(action, "amount must be positive")
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if err := domain.CheckOutcomeIndex(outcome, len(snap.Outcomes)); err != nil {
		return r.result, domain.Invalid(action, "%v", err)
	}
	if snap.Stage != domain.StageRunning {
		return r.result, domain.Invalid(action, "market is %s, trading requires Running", snap.Stage)
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	vector := domain.TradeVector(len(snap.Outcomes), outcome, amount)
	cost, err := amm.CalcNetCost(ctx, vector)
	if err != nil {
		return r.result, fmt.Errorf("trade.%s: net cost: %w", action, err)
	}

	if err := r.fund(ctx, snap.AMM, domain.BufferedCost(cost)); err != nil {
		return r.result, err
	}
	err = r.step(ctx, "trade", snap.AMM, func(ctx context.Context) (domain.Receipt, error) {
		return amm.Trade(ctx, vector, zeroLimit)
	})
	return r.result, err
}

// Sell sells amount outcome tokens of outcome back to the AMM.
func (o *Orchestrator) Sell(ctx context.Context, m MarketSource, outcome int, amount *big.Int) (domain.ActionResult, error) {
	const action = "sell"
	if amount == nil || amount.Sign() <= 0 {
		return domain.ActionResult{}, domain.Invalid(action, "amount must be positive")
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if err := domain.CheckOutcomeIndex(outcome, len(snap.Outcomes)); err != nil {
		return r.result, domain.Invalid(action, "%v", err)
	}
	if snap.Stage != domain.StageRunning {
		return r.result, domain.Invalid(action, "market is %s, trading requires Running", snap.Stage)
	}
	if held := snap.Outcomes[outcome].Balance; held == nil || held.Cmp(amount) < 0 {
		return r.result, domain.Invalid(action, "insufficient %s balance: have %s, selling %s",
			snap.Outcomes[outcome].Title, held, amount)
	}

	ctf := o.ledger.ConditionalTokens()
	approved, err := ctf.IsApprovedForAll(ctx, o.ledger.Account(), snap.AMM)
	if err != nil {
		return r.result, fmt.Errorf("trade.%s: approval: %w", action, err)
	}
	if !approved {
		if err := r.step(ctx, "approve", ctf.Address(), func(ctx context.Context) (domain.Receipt, error) {
			return ctf.SetApprovalForAll(ctx, snap.AMM, true)
		}); err != nil {
			return r.result, err
		}
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	vector := domain.TradeVector(len(snap.Outcomes), outcome, new(big.Int).Neg(amount))
	err = r.step(ctx, "trade", snap.AMM, func(ctx context.Context) (domain.Receipt, error) {
		return amm.Trade(ctx, vector, zeroLimit)
	})
	return r.result, err
}

// Redeem redeems every position of the caller in a resolved condition.
func (o *Orchestrator) Redeem(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	const action = "redeem"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if !snap.Resolved() {
		return r.result, domain.Invalid(action, "condition is not resolved yet (payout denominator is 0)")
	}

	ctf := o.ledger.ConditionalTokens()
	err = r.step(ctx, "redeem", ctf.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return ctf.RedeemPositions(ctx, snap.Collateral, domain.NullCollection, snap.ConditionID,
			domain.IndexSets(len(snap.Outcomes)))
	})
	return r.result, err
}

// AddLiquidity funds the AMM with amount of collateral.
func (o *Orchestrator) AddLiquidity(ctx context.Context, m MarketSource, amount *big.Int) (domain.ActionResult, error) {
	const action = "add-liquidity"
	if amount == nil || amount.Sign() <= 0 {
		return domain.ActionResult{}, domain.Invalid(action, "amount must be positive")
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if snap.Stage != domain.StageRunning {
		return r.result, domain.Invalid(action, "market is %s, adding liquidity requires Running", snap.Stage)
	}

	if err := r.fund(ctx, snap.AMM, amount); err != nil {
		return r.result, err
	}
	amm := o.ledger.MarketMaker(snap.AMM)
	err = r.step(ctx, "add-liquidity", snap.AMM, func(ctx context.Context) (domain.Receipt, error) {
		return amm.AddLiquidity(ctx, amount)
	})
	return r.result, err
}

// WithdrawLiquidity withdraws all of the caller's liquidity shares.
func (o *Orchestrator) WithdrawLiquidity(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	const action = "withdraw-liquidity"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if snap.Stage == domain.StageRunning {
		return r.result, domain.Invalid(action, "market is Running, withdrawing liquidity requires Paused or Closed")
	}
	if shares := snap.Liquidity.Shares; shares == nil || shares.Sign() <= 0 {
		return r.result, domain.Invalid(action, "no liquidity shares to withdraw")
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	err = r.step(ctx, "withdraw-liquidity", snap.AMM, amm.WithdrawLiquidity)
	return r.result, err
}

// RedeemMarketPositions makes the AMM redeem its own outcome tokens once the
// market is closed and resolved, so liquidity providers can withdraw
// collateral.
func (o *Orchestrator) RedeemMarketPositions(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	const action = "redeem-market"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if snap.Stage != domain.StageClosed {
		return r.result, domain.Invalid(action, "market is %s, must be Closed", snap.Stage)
	}
	if !snap.Resolved() {
		return r.result, domain.Invalid(action, "condition is not resolved yet")
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	err = r.step(ctx, "redeem-market", snap.AMM, amm.RedeemPositions)
	return r.result, err
}

// ChangeFee sets the AMM fee to pct percent. Owner only, market Paused.
func (o *Orchestrator) ChangeFee(ctx context.Context, m MarketSource, pct decimal.Decimal) (domain.ActionResult, error) {
	const action = "change-fee"
	fee, err := domain.PercentageToFee(pct)
	if err != nil {
		return domain.ActionResult{}, domain.Invalid(action, "%v", err)
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if err := requireOwner(action, snap, o.ledger.Account()); err != nil {
		return r.result, err
	}
	if snap.Stage != domain.StagePaused {
		return r.result, domain.Invalid(action, "market is %s, the fee can only change while Paused", snap.Stage)
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	err = r.step(ctx, "change-fee", snap.AMM, func(ctx context.Context) (domain.Receipt, error) {
		return amm.ChangeFee(ctx, fee)
	})
	return r.result, err
}

// Pause moves a Running market to Paused. Owner only.
func (o *Orchestrator) Pause(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	return o.transition(ctx, m, "pause", domain.StagePaused)
}

// Resume moves a Paused market back to Running. Owner only.
func (o *Orchestrator) Resume(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	return o.transition(ctx, m, "resume", domain.StageRunning)
}

// Close closes the market for good. Owner only.
func (o *Orchestrator) Close(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	return o.transition(ctx, m, "close", domain.StageClosed)
}

func (o *Orchestrator) transition(ctx context.Context, m MarketSource, action string, next domain.Stage) (domain.ActionResult, error) {
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if err := requireOwner(action, snap, o.ledger.Account()); err != nil {
		return r.result, err
	}
	if !snap.Stage.CanTransition(next) {
		return r.result, domain.Invalid(action, "market is %s, cannot move to %s", snap.Stage, next)
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	send := map[domain.Stage]func(context.Context) (domain.Receipt, error){
		domain.StagePaused:  amm.Pause,
		domain.StageRunning: amm.Resume,
		domain.StageClosed:  amm.Close,
	}[next]
	err = r.step(ctx, action, snap.AMM, send)
	return r.result, err
}

// WithdrawFees collects the AMM's accumulated fees. Owner only.
func (o *Orchestrator) WithdrawFees(ctx context.Context, m MarketSource) (domain.ActionResult, error) {
	const action = "withdraw-fees"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if err := requireOwner(action, snap, o.ledger.Account()); err != nil {
		return r.result, err
	}
	held, err := o.ledger.Collateral().BalanceOf(ctx, snap.AMM)
	if err != nil {
		return r.result, fmt.Errorf("trade.%s: amm balance: %w", action, err)
	}
	if held.Sign() == 0 {
		return r.result, domain.Invalid(action, "the AMM holds no collateral")
	}

	amm := o.ledger.MarketMaker(snap.AMM)
	err = r.step(ctx, "withdraw-fees", snap.AMM, func(ctx context.Context) (domain.Receipt, error) {
		receipt, fees, err := amm.WithdrawFees(ctx)
		r.result.Amount = fees
		return receipt, err
	})
	return r.result, err
}

// ReportPayouts reports winner as the outcome of the market's question. Only
// the configured oracle account may report, and only once.
func (o *Orchestrator) ReportPayouts(ctx context.Context, m MarketSource, winner int) (domain.ActionResult, error) {
	const action = "report-payouts"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	if o.ledger.Account() != o.oracle {
		return r.result, domain.Invalid(action, "only the oracle %s can report payouts", o.oracle.Hex())
	}
	desc := m.Descriptor()
	if desc.QuestionID == (common.Hash{}) {
		return r.result, domain.Invalid(action, "market %q has no question id", desc.Title)
	}

	snap, err := fresh(ctx, action, m)
	if err != nil {
		return r.result, err
	}
	defer refreshMarket(ctx, m)
	if snap.Resolved() {
		return r.result, domain.Invalid(action, "condition already resolved")
	}
	if err := domain.CheckOutcomeIndex(winner, len(snap.Outcomes)); err != nil {
		return r.result, domain.Invalid(action, "%v", err)
	}

	ctf := o.ledger.ConditionalTokens()
	payouts := domain.PayoutVector(len(snap.Outcomes), winner)
	err = r.step(ctx, "report-payouts", ctf.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return ctf.ReportPayouts(ctx, desc.QuestionID, payouts)
	})
	return r.result, err
}
