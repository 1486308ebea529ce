package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Stage is the AMM lifecycle. Running <-> Paused may cycle; Closed is absorbing.
type Stage uint8

const (
	StageRunning Stage = 0
	StagePaused  Stage = 1
	StageClosed  Stage = 2
)

func (s Stage) String() string {
	switch s {
	case StageRunning:
		return "Running"
	case StagePaused:
		return "Paused"
	case StageClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the three known stages.
func (s Stage) Valid() bool { return s <= StageClosed }

// CanTransition reports whether the AMM may move from s to next.
func (s Stage) CanTransition(next Stage) bool {
	switch s {
	case StageRunning:
		return next == StagePaused || next == StageClosed
	case StagePaused:
		return next == StageRunning || next == StageClosed
	default:
		return false
	}
}

// MarketDescriptor is the static, validated-at-load description of a market.
type MarketDescriptor struct {
	Title        string
	Category     string
	Description  string
	OutcomeCount int
	Outcomes     []string
	ConditionID  common.Hash // zero when it must be derived
	QuestionID   common.Hash
	AMM          common.Address
}

// OutcomeTitle returns the configured title for outcome i, Yes/No for binary
// markets without titles, or "Outcome N".
func (d MarketDescriptor) OutcomeTitle(i int) string {
	if i < len(d.Outcomes) && d.Outcomes[i] != "" {
		return d.Outcomes[i]
	}
	if d.OutcomeCount == 2 {
		return [2]string{"Yes", "No"}[i]
	}
	return fmt.Sprintf("Outcome %d", i+1)
}

// Outcome is one slot of a market's outcome vector.
type Outcome struct {
	Index        int
	Title        string
	Price        *big.Int        // raw marginal price, 2^64 scale
	Probability  decimal.Decimal // percentage
	Balance      *big.Int        // caller's raw position balance
	BalanceUnits decimal.Decimal
	PositionID   *big.Int
	// PayoutNumerator is nil while the condition is unresolved.
	PayoutNumerator *big.Int
}

// Determined reports whether the outcome's payout is known.
func (o Outcome) Determined() bool { return o.PayoutNumerator != nil }

// LiquidityPosition is the caller's LP standing as reported by the AMM.
type LiquidityPosition struct {
	Account         common.Address
	Shares          *big.Int
	TotalShares     *big.Int
	PendingFees     *big.Int
	SharePercentage *big.Int
}

// Market is a read-only projection of ledger state. A new value is derived on
// every poll; published values are never mutated.
type Market struct {
	Descriptor         MarketDescriptor
	AMM                common.Address
	ConditionID        common.Hash
	Collateral         common.Address
	CollateralDecimals uint8
	Stage              Stage
	Fee                *big.Int
	Owner              common.Address
	Funding            *big.Int
	Outcomes           []Outcome
	Liquidity          LiquidityPosition
	PayoutDenominator  *big.Int
	DerivedAt          time.Time
}

// Resolved reports whether payouts have been reported for the condition.
func (m Market) Resolved() bool {
	return m.PayoutDenominator != nil && m.PayoutDenominator.Sign() > 0
}

// FeePercentage returns the fee as a percentage.
func (m Market) FeePercentage() decimal.Decimal { return FeeToPercentage(m.Fee) }

// IsOwner reports whether account owns the AMM.
func (m Market) IsOwner(account common.Address) bool {
	return m.Owner != (common.Address{}) && m.Owner == account
}

// Outcome returns outcome i, or false when out of range.
func (m Market) Outcome(i int) (Outcome, bool) {
	if i < 0 || i >= len(m.Outcomes) {
		return Outcome{}, false
	}
	return m.Outcomes[i], true
}

// Winners returns the indices with a non-zero payout. Empty while unresolved.
func (m Market) Winners() []int {
	if !m.Resolved() {
		return nil
	}
	var out []int
	for _, o := range m.Outcomes {
		if o.PayoutNumerator != nil && o.PayoutNumerator.Sign() > 0 {
			out = append(out, o.Index)
		}
	}
	return out
}
