package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ctfdesk/internal/application/market"
	"github.com/alejandrodnm/ctfdesk/internal/application/trade"
	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

type action func(ctx context.Context, args []string) error

type marketAction func(ctx context.Context, m trade.MarketSource) (domain.ActionResult, error)

func (a *app) actions() map[string]action {
	o := a.orch
	return map[string]action{
		"buy":  a.tradeCommand("buy", o.Buy),
		"sell": a.tradeCommand("sell", o.Sell),

		"redeem":             a.marketCommand("redeem", o.Redeem),
		"approve":            a.marketCommand("approve", o.ApproveCollateral),
		"withdraw-liquidity": a.marketCommand("withdraw-liquidity", o.WithdrawLiquidity),
		"redeem-market":      a.marketCommand("redeem-market", o.RedeemMarketPositions),
		"pause":              a.marketCommand("pause", o.Pause),
		"resume":             a.marketCommand("resume", o.Resume),
		"close":              a.marketCommand("close", o.Close),
		"withdraw-fees":      a.marketCommand("withdraw-fees", o.WithdrawFees),

		"add-liquidity":  a.addLiquidity,
		"change-fee":     a.changeFee,
		"report-payouts": a.reportPayouts,
		"wrap":           a.wrapCommand("wrap", o.Wrap),
		"unwrap":         a.wrapCommand("unwrap", o.Unwrap),

		"propose": a.propose,
		"dispute": a.questionCommand("dispute", o.Dispute),
		"settle":  a.questionCommand("settle", o.Settle),
		"resolve": a.questionCommand("resolve", o.Resolve),
	}
}

// report prints whatever steps ran, even when the action failed halfway.
func (a *app) report(res domain.ActionResult, err error) error {
	if len(res.Steps) > 0 {
		a.notifier.PrintAction(res)
	}
	return err
}

func (a *app) marketCommand(name string, fn marketAction) action {
	return func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s: want <market>", name)
		}
		v, err := a.board.Lookup(args[0])
		if err != nil {
			return err
		}
		return a.report(fn(ctx, v))
	}
}

func (a *app) tradeCommand(name string, fn func(context.Context, trade.MarketSource, int, *big.Int) (domain.ActionResult, error)) action {
	return func(ctx context.Context, args []string) error {
		if len(args) != 3 {
			return fmt.Errorf("%s: want <market> <outcome> <amount>", name)
		}
		v, err := a.board.Lookup(args[0])
		if err != nil {
			return err
		}
		outcome, err := parseOutcome(v, args[1])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		amount, err := a.parseCollateral(ctx, args[2])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return a.report(fn(ctx, v, outcome, amount))
	}
}

func (a *app) wrapCommand(name string, fn func(context.Context, *big.Int) (domain.ActionResult, error)) action {
	return func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s: want <amount>", name)
		}
		amount, err := a.parseCollateral(ctx, args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return a.report(fn(ctx, amount))
	}
}

func (a *app) questionCommand(name string, fn func(context.Context, common.Hash) (domain.ActionResult, error)) action {
	return func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s: want <question-id>", name)
		}
		id, err := parseQuestionID(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return a.report(fn(ctx, id))
	}
}

func (a *app) addLiquidity(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("add-liquidity: want <market> <amount>")
	}
	v, err := a.board.Lookup(args[0])
	if err != nil {
		return err
	}
	amount, err := a.parseCollateral(ctx, args[1])
	if err != nil {
		return fmt.Errorf("add-liquidity: %w", err)
	}
	return a.report(a.orch.AddLiquidity(ctx, v, amount))
}

func (a *app) changeFee(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("change-fee: want <market> <percent>")
	}
	v, err := a.board.Lookup(args[0])
	if err != nil {
		return err
	}
	pct, err := decimal.NewFromString(strings.TrimSuffix(args[1], "%"))
	if err != nil {
		return fmt.Errorf("change-fee: invalid percentage %q: %w", args[1], err)
	}
	return a.report(a.orch.ChangeFee(ctx, v, pct))
}

func (a *app) reportPayouts(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("report-payouts: want <market> <winning-outcome>")
	}
	v, err := a.board.Lookup(args[0])
	if err != nil {
		return err
	}
	winner, err := parseOutcome(v, args[1])
	if err != nil {
		return fmt.Errorf("report-payouts: %w", err)
	}
	return a.report(a.orch.ReportPayouts(ctx, v, winner))
}

func (a *app) propose(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("propose: want <question-id> <yes|no|undecided>")
	}
	id, err := parseQuestionID(args[0])
	if err != nil {
		return fmt.Errorf("propose: %w", err)
	}
	return a.report(a.orch.Propose(ctx, id, domain.Answer(strings.ToLower(args[1]))))
}

// parseCollateral scales a human amount by the collateral token's decimals.
func (a *app) parseCollateral(ctx context.Context, s string) (*big.Int, error) {
	decimals, err := a.session.Collateral().Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("collateral decimals: %w", err)
	}
	return domain.ParseAmount(s, decimals)
}

// parseOutcome accepts a zero-based index or an outcome title.
func parseOutcome(v *market.View, s string) (int, error) {
	desc := v.Descriptor()
	if i, err := strconv.Atoi(s); err == nil {
		if err := domain.CheckOutcomeIndex(i, desc.OutcomeCount); err != nil {
			return 0, err
		}
		return i, nil
	}
	for i := range desc.OutcomeCount {
		if strings.EqualFold(desc.OutcomeTitle(i), s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q for %q", s, desc.Title)
}

func parseQuestionID(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid question id %q (want 0x-prefixed 32-byte hex)", s)
	}
	return common.BytesToHash(b), nil
}
