package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// View derives Market snapshots for one AMM. Snapshots are built from
// scratch on every Refresh and published whole; a failed refresh keeps the
// previous snapshot and flags it stale.
type View struct {
	ledger ports.Ledger
	desc   domain.MarketDescriptor
	oracle common.Address
	now    func() time.Time

	mu       sync.RWMutex
	snapshot *domain.Market
	stale    bool
	lastErr  error
	decimals *uint8
	slotsOK  bool
}

// NewView builds a view. oracle is the account that reports payouts; it is
// only used when the descriptor carries no condition id.
func NewView(ledger ports.Ledger, desc domain.MarketDescriptor, oracle common.Address) *View {
	return &View{ledger: ledger, desc: desc, oracle: oracle, now: time.Now}
}

func (v *View) Descriptor() domain.MarketDescriptor { return v.desc }

// ConditionID returns the configured condition id verbatim, or derives it
// from (oracle, questionID, outcomeCount) when none was configured.
func (v *View) ConditionID() common.Hash {
	if v.desc.ConditionID != (common.Hash{}) {
		return v.desc.ConditionID
	}
	return domain.ConditionID(v.oracle, v.desc.QuestionID, v.desc.OutcomeCount)
}

// Snapshot returns the last published market. ok is false before the first
// successful refresh.
func (v *View) Snapshot() (m domain.Market, stale bool, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.snapshot == nil {
		return domain.Market{}, v.stale, false
	}
	return *v.snapshot, v.stale, true
}

// LastError returns the error of the last failed refresh, nil after a
// successful one.
func (v *View) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

// Refresh re-derives the market from live reads. On failure nothing is
// published and the previous snapshot is marked stale.
func (v *View) Refresh(ctx context.Context) (domain.Market, error) {
	m, err := v.derive(ctx)
	if err != nil {
		v.mu.Lock()
		v.stale = true
		v.lastErr = err
		v.mu.Unlock()
		slog.Warn("market: refresh failed, keeping previous snapshot",
			"market", v.desc.Title, "amm", v.desc.AMM.Hex(), "err", err)
		return domain.Market{}, fmt.Errorf("market.Refresh %s: %w", v.desc.Title, err)
	}

	v.mu.Lock()
	v.snapshot = &m
	v.stale = false
	v.lastErr = nil
	v.mu.Unlock()
	return m, nil
}

func (v *View) derive(ctx context.Context) (domain.Market, error) {
	account := v.ledger.Account()
	amm := v.ledger.MarketMaker(v.desc.AMM)
	ctf := v.ledger.ConditionalTokens()
	collateral := v.ledger.Collateral()
	conditionID := v.ConditionID()

	decimals, err := v.collateralDecimals(ctx, collateral)
	if err != nil {
		return domain.Market{}, err
	}
	if err := v.checkOutcomeSlots(ctx, ctf, conditionID); err != nil {
		return domain.Market{}, err
	}

	m := domain.Market{
		Descriptor:         v.desc,
		AMM:                v.desc.AMM,
		ConditionID:        conditionID,
		Collateral:         collateral.Address(),
		CollateralDecimals: decimals,
	}

	if m.Stage, err = amm.Stage(ctx); err != nil {
		return domain.Market{}, err
	}
	if m.Fee, err = amm.Fee(ctx); err != nil {
		return domain.Market{}, err
	}
	if m.Owner, err = amm.Owner(ctx); err != nil {
		return domain.Market{}, err
	}
	if m.Funding, err = amm.Funding(ctx); err != nil {
		return domain.Market{}, err
	}
	if m.PayoutDenominator, err = ctf.PayoutDenominator(ctx, conditionID); err != nil {
		return domain.Market{}, err
	}
	resolved := m.PayoutDenominator.Sign() > 0

	m.Outcomes = make([]domain.Outcome, v.desc.OutcomeCount)
	for i := range m.Outcomes {
		o, err := v.deriveOutcome(ctx, amm, ctf, collateral.Address(), conditionID, account, i, resolved)
		if err != nil {
			return domain.Market{}, err
		}
		o.BalanceUnits = domain.FromBaseUnits(o.Balance, decimals)
		m.Outcomes[i] = o
	}

	lp := domain.LiquidityPosition{Account: account}
	if lp.Shares, err = amm.LiquidityShares(ctx, account); err != nil {
		return domain.Market{}, err
	}
	if lp.TotalShares, err = amm.TotalShares(ctx); err != nil {
		return domain.Market{}, err
	}
	if lp.PendingFees, err = amm.PendingFees(ctx, account); err != nil {
		return domain.Market{}, err
	}
	if lp.SharePercentage, err = amm.SharePercentage(ctx, account); err != nil {
		return domain.Market{}, err
	}
	m.Liquidity = lp

	m.DerivedAt = v.now()
	return m, nil
}

func (v *View) deriveOutcome(
	ctx context.Context,
	amm ports.MarketMaker,
	ctf ports.ConditionalTokens,
	collateral common.Address,
	conditionID common.Hash,
	account common.Address,
	i int,
	resolved bool,
) (domain.Outcome, error) {
	o := domain.Outcome{Index: i, Title: v.desc.OutcomeTitle(i)}

	collectionID, err := ctf.CollectionID(ctx, domain.NullCollection, conditionID, domain.IndexSet(i))
	if err != nil {
		return o, err
	}
	o.PositionID = domain.PositionID(collateral, collectionID)

	if o.Price, err = amm.CalcMarginalPrice(ctx, i); err != nil {
		return o, err
	}
	o.Probability = domain.PriceToProbability(o.Price)

	if o.Balance, err = ctf.BalanceOf(ctx, account, o.PositionID); err != nil {
		return o, err
	}

	// Numerators are indeterminate until payouts are reported.
	if resolved {
		num, err := ctf.PayoutNumerator(ctx, conditionID, i)
		if err != nil {
			return o, err
		}
		o.PayoutNumerator = new(big.Int).Set(num)
	}
	return o, nil
}

// checkOutcomeSlots compares the condition's slot count on the ledger with
// the configured outcome count. Zero slots means the condition was never
// prepared, which also points at a wrong condition id or oracle. A match is
// remembered since slot counts are immutable once prepared.
func (v *View) checkOutcomeSlots(ctx context.Context, ctf ports.ConditionalTokens, conditionID common.Hash) error {
	v.mu.RLock()
	ok := v.slotsOK
	v.mu.RUnlock()
	if ok {
		return nil
	}

	slots, err := ctf.OutcomeSlotCount(ctx, conditionID)
	if err != nil {
		return err
	}
	if slots != v.desc.OutcomeCount {
		return domain.Invalid("market", "condition %s has %d outcome slots, configured %d",
			conditionID.Hex(), slots, v.desc.OutcomeCount)
	}
	v.mu.Lock()
	v.slotsOK = true
	v.mu.Unlock()
	return nil
}

// collateralDecimals reads the token's decimals once; they never change.
func (v *View) collateralDecimals(ctx context.Context, token ports.Token) (uint8, error) {
	v.mu.RLock()
	cached := v.decimals
	v.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	d, err := token.Decimals(ctx)
	if err != nil {
		return 0, err
	}
	v.mu.Lock()
	v.decimals = &d
	v.mu.Unlock()
	return d, nil
}
