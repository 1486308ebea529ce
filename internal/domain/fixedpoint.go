package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FeeRange is the fixed-point scale of the AMM fee: 10^16 == 1%.
var FeeRange = decimal.New(1, 16)

// priceScale is 2^64, the scale of calcMarginalPrice.
var priceScale = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64), 0)

var hundred = decimal.NewFromInt(100)

// PercentageToFee converts a fee percentage in [0, 100] into the contract's
// fixed-point integer, round(pct * 10^16). The result is exact; callers pass
// it on as an integer, never through a float.
func PercentageToFee(pct decimal.Decimal) (*big.Int, error) {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return nil, fmt.Errorf("fee percentage %s out of range [0, 100]", pct.String())
	}
	return pct.Mul(FeeRange).Round(0).BigInt(), nil
}

// FeeToPercentage is the inverse of PercentageToFee.
func FeeToPercentage(fee *big.Int) decimal.Decimal {
	if fee == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(fee, 0).Div(FeeRange)
}

// PriceToProbability turns a 2^64-scaled marginal price into a percentage.
func PriceToProbability(price *big.Int) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(price, 0).Mul(hundred).DivRound(priceScale, 8)
}

// FromBaseUnits scales a raw token amount by the token's decimals.
func FromBaseUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ToBaseUnits converts a human amount ("0.25") into raw token units,
// truncating anything finer than the token's precision.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// ParseAmount parses a user supplied amount into raw units. The amount must
// be strictly positive.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	raw := ToBaseUnits(d, decimals)
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", s)
	}
	return raw, nil
}

// FundingBufferPct is the safety margin applied to the funding steps of a buy
// (wrap and approve), never to the trade itself.
const FundingBufferPct = 1

// BufferedCost returns ceil(cost * (100 + FundingBufferPct) / 100).
func BufferedCost(cost *big.Int) *big.Int {
	if cost == nil || cost.Sign() <= 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(cost, big.NewInt(100+FundingBufferPct))
	num.Add(num, big.NewInt(99))
	return num.Div(num, big.NewInt(100))
}

// BasisPointsToPercentage converts the AMM's share percentage, reported in
// basis points, into a percentage.
func BasisPointsToPercentage(bp *big.Int) decimal.Decimal {
	if bp == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(bp, -2)
}
