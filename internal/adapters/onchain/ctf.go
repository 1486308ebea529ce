package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// ConditionalTokens is a typed handle on the position-token ledger.
type ConditionalTokens struct {
	gw      *Gateway
	address common.Address
}

func NewConditionalTokens(gw *Gateway, address common.Address) *ConditionalTokens {
	return &ConditionalTokens{gw: gw, address: address}
}

func (c *ConditionalTokens) Address() common.Address { return c.address }

func (c *ConditionalTokens) PayoutDenominator(ctx context.Context, conditionID common.Hash) (*big.Int, error) {
	return callOne[*big.Int](ctx, c.gw, c.address, &ctfABI, "payoutDenominator", [32]byte(conditionID))
}

func (c *ConditionalTokens) PayoutNumerator(ctx context.Context, conditionID common.Hash, index int) (*big.Int, error) {
	return callOne[*big.Int](ctx, c.gw, c.address, &ctfABI, "payoutNumerators",
		[32]byte(conditionID), big.NewInt(int64(index)))
}

func (c *ConditionalTokens) OutcomeSlotCount(ctx context.Context, conditionID common.Hash) (int, error) {
	n, err := callOne[*big.Int](ctx, c.gw, c.address, &ctfABI, "getOutcomeSlotCount", [32]byte(conditionID))
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > domain.MaxOutcomes {
		return 0, &domain.ReadError{Op: "getOutcomeSlotCount", Err: fmt.Errorf("slot count %s out of range", n)}
	}
	return int(n.Int64()), nil
}

func (c *ConditionalTokens) CollectionID(ctx context.Context, parent, conditionID common.Hash, indexSet *big.Int) (common.Hash, error) {
	v, err := callOne[[32]byte](ctx, c.gw, c.address, &ctfABI, "getCollectionId",
		[32]byte(parent), [32]byte(conditionID), indexSet)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(v), nil
}

func (c *ConditionalTokens) BalanceOf(ctx context.Context, account common.Address, positionID *big.Int) (*big.Int, error) {
	return callOne[*big.Int](ctx, c.gw, c.address, &ctfABI, "balanceOf", account, positionID)
}

func (c *ConditionalTokens) IsApprovedForAll(ctx context.Context, account, operator common.Address) (bool, error) {
	return callOne[bool](ctx, c.gw, c.address, &ctfABI, "isApprovedForAll", account, operator)
}

func (c *ConditionalTokens) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (domain.Receipt, error) {
	return c.gw.Send(ctx, c.address, &ctfABI, "setApprovalForAll", nil, operator, approved)
}

func (c *ConditionalTokens) RedeemPositions(ctx context.Context, collateral common.Address, parent, conditionID common.Hash, indexSets []*big.Int) (domain.Receipt, error) {
	return c.gw.Send(ctx, c.address, &ctfABI, "redeemPositions", nil,
		collateral, [32]byte(parent), [32]byte(conditionID), indexSets)
}

func (c *ConditionalTokens) ReportPayouts(ctx context.Context, questionID common.Hash, payouts []*big.Int) (domain.Receipt, error) {
	return c.gw.Send(ctx, c.address, &ctfABI, "reportPayouts", nil, [32]byte(questionID), payouts)
}
