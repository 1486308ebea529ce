package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxOutcomes is the largest outcome vector the position-token ledger accepts.
const MaxOutcomes = 256

// NullCollection is the parent collection of every top-level position.
var NullCollection = common.Hash{}

// MaxUint256 is the allowance granted by one-time approvals.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// IndexSet returns the bitmask of the collection that backs outcome i.
// Fixed by the position-token protocol as 1 << i.
func IndexSet(i int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(i))
}

// IndexSets returns {1 << i | i in [0, n)}, the full partition redeemed in a
// single redeemPositions call.
func IndexSets(n int) []*big.Int {
	sets := make([]*big.Int, n)
	for i := range sets {
		sets[i] = IndexSet(i)
	}
	return sets
}

// ConditionID derives the condition identity from its preparation inputs:
// keccak256(oracle ++ questionID ++ uint256(outcomeCount)).
func ConditionID(oracle common.Address, questionID common.Hash, outcomeCount int) common.Hash {
	return crypto.Keccak256Hash(
		oracle.Bytes(),
		questionID.Bytes(),
		math.U256Bytes(big.NewInt(int64(outcomeCount))),
	)
}

// PositionID returns the ERC-1155 token id of (collateral, collection):
// uint256(keccak256(collateral ++ collectionID)).
func PositionID(collateral common.Address, collectionID common.Hash) *big.Int {
	h := crypto.Keccak256(collateral.Bytes(), collectionID.Bytes())
	return new(big.Int).SetBytes(h)
}

// CheckOutcomeIndex validates i against an outcome vector of length n.
func CheckOutcomeIndex(i, n int) error {
	if n < 2 || n > MaxOutcomes {
		return fmt.Errorf("outcome count %d out of range [2, %d]", n, MaxOutcomes)
	}
	if i < 0 || i >= n {
		return fmt.Errorf("outcome index %d out of range [0, %d)", i, n)
	}
	return nil
}

// TradeVector builds the per-outcome amounts of a trade: amount at index,
// zero elsewhere. A negative amount sells.
func TradeVector(n, index int, amount *big.Int) []*big.Int {
	v := make([]*big.Int, n)
	for i := range v {
		if i == index {
			v[i] = new(big.Int).Set(amount)
		} else {
			v[i] = new(big.Int)
		}
	}
	return v
}

// PayoutVector is the reportPayouts argument that awards the whole payout
// to winner.
func PayoutVector(n, winner int) []*big.Int {
	v := make([]*big.Int, n)
	for i := range v {
		if i == winner {
			v[i] = big.NewInt(1)
		} else {
			v[i] = new(big.Int)
		}
	}
	return v
}
