package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// OracleAdapter is a typed handle on the optimistic-oracle adapter.
type OracleAdapter struct {
	gw      *Gateway
	address common.Address
}

func NewOracleAdapter(gw *Gateway, address common.Address) *OracleAdapter {
	return &OracleAdapter{gw: gw, address: address}
}

func (a *OracleAdapter) Address() common.Address { return a.address }

func (a *OracleAdapter) GetQuestion(ctx context.Context, questionID common.Hash) (domain.QuestionData, error) {
	vals, err := a.gw.Call(ctx, a.address, &adapterABI, "getQuestion", [32]byte(questionID))
	if err != nil {
		return domain.QuestionData{}, err
	}
	q := *abi.ConvertType(vals[0], new(domain.QuestionData)).(*domain.QuestionData)
	return q, nil
}

func (a *OracleAdapter) Ready(ctx context.Context, questionID common.Hash) (bool, error) {
	return callOne[bool](ctx, a.gw, a.address, &adapterABI, "ready", [32]byte(questionID))
}

func (a *OracleAdapter) Resolve(ctx context.Context, questionID common.Hash) (domain.Receipt, error) {
	return a.gw.Send(ctx, a.address, &adapterABI, "resolve", nil, [32]byte(questionID))
}

func (a *OracleAdapter) QuestionInitializedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.QuestionInitialized, []*domain.ChunkFetchError, error) {
	logs, failed, err := a.gw.FetchLogs(ctx, a.address, adapterABI.Events["QuestionInitialized"], fromBlock, toBlock)
	out := make([]domain.QuestionInitialized, 0, len(logs))
	for _, l := range logs {
		ev, derr := decodeQuestionInitialized(l)
		if derr != nil {
			slog.Warn("oracle: skipping undecodable QuestionInitialized", "tx", l.TxHash.Hex(), "err", derr)
			continue
		}
		out = append(out, ev)
	}
	return out, failed, err
}

func (a *OracleAdapter) QuestionResolvedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.QuestionResolved, []*domain.ChunkFetchError, error) {
	logs, failed, err := a.gw.FetchLogs(ctx, a.address, adapterABI.Events["QuestionResolved"], fromBlock, toBlock)
	out := make([]domain.QuestionResolved, 0, len(logs))
	for _, l := range logs {
		ev, derr := decodeQuestionResolved(l)
		if derr != nil {
			slog.Warn("oracle: skipping undecodable QuestionResolved", "tx", l.TxHash.Hex(), "err", derr)
			continue
		}
		out = append(out, ev)
	}
	return out, failed, err
}

func decodeQuestionInitialized(l types.Log) (domain.QuestionInitialized, error) {
	if len(l.Topics) < 4 {
		return domain.QuestionInitialized{}, fmt.Errorf("expected 4 topics, got %d", len(l.Topics))
	}
	var data struct {
		AncillaryData []byte
		RewardToken   common.Address
		Reward        *big.Int
		ProposalBond  *big.Int
	}
	if err := adapterABI.UnpackIntoInterface(&data, "QuestionInitialized", l.Data); err != nil {
		return domain.QuestionInitialized{}, err
	}
	return domain.QuestionInitialized{
		QuestionID:       l.Topics[1],
		RequestTimestamp: new(big.Int).SetBytes(l.Topics[2].Bytes()),
		Creator:          common.BytesToAddress(l.Topics[3].Bytes()),
		AncillaryData:    data.AncillaryData,
		RewardToken:      data.RewardToken,
		Reward:           data.Reward,
		ProposalBond:     data.ProposalBond,
		BlockNumber:      l.BlockNumber,
		TxHash:           l.TxHash,
	}, nil
}

func decodeQuestionResolved(l types.Log) (domain.QuestionResolved, error) {
	if len(l.Topics) < 3 {
		return domain.QuestionResolved{}, fmt.Errorf("expected 3 topics, got %d", len(l.Topics))
	}
	vals, err := adapterABI.Unpack("QuestionResolved", l.Data)
	if err != nil {
		return domain.QuestionResolved{}, err
	}
	payouts, ok := vals[0].([]*big.Int)
	if !ok {
		return domain.QuestionResolved{}, fmt.Errorf("unexpected payouts type %T", vals[0])
	}
	return domain.QuestionResolved{
		QuestionID:   l.Topics[1],
		SettledPrice: int256Topic(l.Topics[2]),
		Payouts:      payouts,
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
	}, nil
}

// int256Topic reads an indexed int256 as two's complement.
func int256Topic(topic common.Hash) *big.Int {
	v := new(big.Int).SetBytes(topic.Bytes())
	if v.Bit(255) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return v
}

// OptimisticOracle is a typed handle on the propose/dispute/settle oracle.
type OptimisticOracle struct {
	gw      *Gateway
	address common.Address
}

func NewOptimisticOracle(gw *Gateway, address common.Address) *OptimisticOracle {
	return &OptimisticOracle{gw: gw, address: address}
}

func (o *OptimisticOracle) Address() common.Address { return o.address }

// requestTuple mirrors the getRequest output, field for field.
type requestTuple struct {
	Proposer        common.Address
	Disputer        common.Address
	Currency        common.Address
	Settled         bool
	RequestSettings struct {
		EventBased              bool
		RefundOnDispute         bool
		CallbackOnPriceProposed bool
		CallbackOnPriceDisputed bool
		CallbackOnPriceSettled  bool
		Bond                    *big.Int
		CustomLiveness          *big.Int
	}
	ProposedPrice  *big.Int
	ResolvedPrice  *big.Int
	ExpirationTime *big.Int
	Reward         *big.Int
	FinalFee       *big.Int
}

func (o *OptimisticOracle) GetRequest(ctx context.Context, key ports.RequestKey) (*domain.OracleRequest, error) {
	vals, err := o.gw.Call(ctx, o.address, &ooABI, "getRequest",
		key.Requester, key.Identifier, timestampOf(key), key.AncillaryData)
	if err != nil {
		return nil, err
	}
	t := abi.ConvertType(vals[0], new(requestTuple)).(*requestTuple)
	return &domain.OracleRequest{
		Proposer:       t.Proposer,
		Disputer:       t.Disputer,
		Currency:       t.Currency,
		Settled:        t.Settled,
		ProposedPrice:  t.ProposedPrice,
		ResolvedPrice:  t.ResolvedPrice,
		ExpirationTime: t.ExpirationTime,
		Reward:         t.Reward,
		Bond:           t.RequestSettings.Bond,
		FinalFee:       t.FinalFee,
	}, nil
}

func (o *OptimisticOracle) ProposePrice(ctx context.Context, key ports.RequestKey, price *big.Int) (domain.Receipt, error) {
	return o.gw.Send(ctx, o.address, &ooABI, "proposePrice", nil,
		key.Requester, key.Identifier, timestampOf(key), key.AncillaryData, price)
}

func (o *OptimisticOracle) DisputePrice(ctx context.Context, key ports.RequestKey) (domain.Receipt, error) {
	return o.gw.Send(ctx, o.address, &ooABI, "disputePrice", nil,
		key.Requester, key.Identifier, timestampOf(key), key.AncillaryData)
}

func (o *OptimisticOracle) Settle(ctx context.Context, key ports.RequestKey) (domain.Receipt, error) {
	return o.gw.Send(ctx, o.address, &ooABI, "settle", nil,
		key.Requester, key.Identifier, timestampOf(key), key.AncillaryData)
}

func timestampOf(key ports.RequestKey) *big.Int {
	if key.Timestamp == nil {
		return new(big.Int)
	}
	return key.Timestamp
}
