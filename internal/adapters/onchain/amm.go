package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// callOne runs a single-output view and asserts the output type.
func callOne[T any](ctx context.Context, g *Gateway, to common.Address, contract *abi.ABI, method string, args ...any) (T, error) {
	var zero T
	vals, err := g.Call(ctx, to, contract, method, args...)
	if err != nil {
		return zero, err
	}
	v, ok := vals[0].(T)
	if !ok {
		return zero, &domain.ReadError{
			Op:  method + "@" + to.Hex(),
			Err: fmt.Errorf("unexpected output type %T", vals[0]),
		}
	}
	return v, nil
}

// MarketMaker is a typed handle on one LMSR AMM. It implements
// ports.MarketMaker.
type MarketMaker struct {
	gw      *Gateway
	address common.Address
}

func NewMarketMaker(gw *Gateway, address common.Address) *MarketMaker {
	return &MarketMaker{gw: gw, address: address}
}

func (m *MarketMaker) Address() common.Address { return m.address }

func (m *MarketMaker) Stage(ctx context.Context) (domain.Stage, error) {
	v, err := callOne[uint8](ctx, m.gw, m.address, &lmsrABI, "stage")
	if err != nil {
		return 0, err
	}
	s := domain.Stage(v)
	if !s.Valid() {
		return 0, &domain.ReadError{Op: "stage@" + m.address.Hex(), Err: fmt.Errorf("unknown stage %d", v)}
	}
	return s, nil
}

func (m *MarketMaker) Fee(ctx context.Context) (*big.Int, error) {
	v, err := callOne[uint64](ctx, m.gw, m.address, &lmsrABI, "fee")
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(v), nil
}

func (m *MarketMaker) Owner(ctx context.Context) (common.Address, error) {
	return callOne[common.Address](ctx, m.gw, m.address, &lmsrABI, "owner")
}

func (m *MarketMaker) Funding(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "funding")
}

func (m *MarketMaker) CalcMarginalPrice(ctx context.Context, outcomeIndex int) (*big.Int, error) {
	if err := domain.CheckOutcomeIndex(outcomeIndex, domain.MaxOutcomes); err != nil {
		return nil, err
	}
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "calcMarginalPrice", uint8(outcomeIndex))
}

func (m *MarketMaker) CalcNetCost(ctx context.Context, amounts []*big.Int) (*big.Int, error) {
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "calcNetCost", amounts)
}

func (m *MarketMaker) LiquidityShares(ctx context.Context, account common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "liquidityShares", account)
}

func (m *MarketMaker) TotalShares(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "totalShares")
}

func (m *MarketMaker) PendingFees(ctx context.Context, account common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "getPendingFees", account)
}

func (m *MarketMaker) SharePercentage(ctx context.Context, account common.Address) (*big.Int, error) {
	return callOne[*big.Int](ctx, m.gw, m.address, &lmsrABI, "getSharePercentage", account)
}

func (m *MarketMaker) Trade(ctx context.Context, amounts []*big.Int, collateralLimit *big.Int) (domain.Receipt, error) {
	if collateralLimit == nil {
		collateralLimit = new(big.Int)
	}
	return m.gw.Send(ctx, m.address, &lmsrABI, "trade", nil, amounts, collateralLimit)
}

func (m *MarketMaker) AddLiquidity(ctx context.Context, amount *big.Int) (domain.Receipt, error) {
	return m.gw.Send(ctx, m.address, &lmsrABI, "addLiquidity", nil, amount)
}

func (m *MarketMaker) WithdrawLiquidity(ctx context.Context) (domain.Receipt, error) {
	return m.gw.Send(ctx, m.address, &lmsrABI, "withdrawLiquidity", nil)
}

func (m *MarketMaker) RedeemPositions(ctx context.Context) (domain.Receipt, error) {
	return m.gw.Send(ctx, m.address, &lmsrABI, "redeemPositions", nil)
}

// WithdrawFees sends withdrawFees and decodes the AMMFeeWithdrawal log.
func (m *MarketMaker) WithdrawFees(ctx context.Context) (domain.Receipt, *big.Int, error) {
	receipt, err := m.gw.Send(ctx, m.address, &lmsrABI, "withdrawFees", nil)
	if err != nil {
		return receipt, nil, err
	}
	return receipt, feesFromLogs(m.address, receipt.Logs), nil
}

func feesFromLogs(amm common.Address, logs []domain.LogRecord) *big.Int {
	event := lmsrABI.Events["AMMFeeWithdrawal"]
	for _, l := range logs {
		if l.Address != amm || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		vals, err := lmsrABI.Unpack("AMMFeeWithdrawal", l.Data)
		if err != nil || len(vals) == 0 {
			continue
		}
		if fees, ok := vals[0].(*big.Int); ok {
			return fees
		}
	}
	return nil
}

func (m *MarketMaker) Pause(ctx context.Context) (domain.Receipt, error) {
	return m.gw.Send(ctx, m.address, &lmsrABI, "pause", nil)
}

func (m *MarketMaker) Resume(ctx context.Context) (domain.Receipt, error) {
	return m.gw.Send(ctx, m.address, &lmsrABI, "resume", nil)
}

func (m *MarketMaker) Close(ctx context.Context) (domain.Receipt, error) {
	return m.gw.Send(ctx, m.address, &lmsrABI, "close", nil)
}

// ChangeFee sends the fixed-point fee as an exact uint64.
func (m *MarketMaker) ChangeFee(ctx context.Context, fee *big.Int) (domain.Receipt, error) {
	if fee == nil || fee.Sign() < 0 || !fee.IsUint64() {
		return domain.Receipt{}, domain.Invalid("changeFee", "fee %v does not fit uint64", fee)
	}
	return m.gw.Send(ctx, m.address, &lmsrABI, "changeFee", nil, fee.Uint64())
}
