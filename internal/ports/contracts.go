package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// MarketMaker is the LMSR AMM. Writes are signed by the session account.
type MarketMaker interface {
	Address() common.Address

	Stage(ctx context.Context) (domain.Stage, error)
	Fee(ctx context.Context) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
	Funding(ctx context.Context) (*big.Int, error)
	CalcMarginalPrice(ctx context.Context, outcomeIndex int) (*big.Int, error)
	CalcNetCost(ctx context.Context, amounts []*big.Int) (*big.Int, error)

	LiquidityShares(ctx context.Context, account common.Address) (*big.Int, error)
	TotalShares(ctx context.Context) (*big.Int, error)
	PendingFees(ctx context.Context, account common.Address) (*big.Int, error)
	SharePercentage(ctx context.Context, account common.Address) (*big.Int, error)

	// Trade submits outcomeTokenAmounts with the given collateral limit.
	// A zero limit disables the contract's slippage check.
	Trade(ctx context.Context, amounts []*big.Int, collateralLimit *big.Int) (domain.Receipt, error)
	AddLiquidity(ctx context.Context, amount *big.Int) (domain.Receipt, error)
	WithdrawLiquidity(ctx context.Context) (domain.Receipt, error)
	RedeemPositions(ctx context.Context) (domain.Receipt, error)
	// WithdrawFees returns the amount decoded from the AMMFeeWithdrawal log,
	// nil when the receipt carries none.
	WithdrawFees(ctx context.Context) (domain.Receipt, *big.Int, error)
	Pause(ctx context.Context) (domain.Receipt, error)
	Resume(ctx context.Context) (domain.Receipt, error)
	Close(ctx context.Context) (domain.Receipt, error)
	ChangeFee(ctx context.Context, fee *big.Int) (domain.Receipt, error)
}

// ConditionalTokens is the ERC-1155 position-token ledger.
type ConditionalTokens interface {
	Address() common.Address

	PayoutDenominator(ctx context.Context, conditionID common.Hash) (*big.Int, error)
	PayoutNumerator(ctx context.Context, conditionID common.Hash, index int) (*big.Int, error)
	OutcomeSlotCount(ctx context.Context, conditionID common.Hash) (int, error)
	CollectionID(ctx context.Context, parent, conditionID common.Hash, indexSet *big.Int) (common.Hash, error)
	BalanceOf(ctx context.Context, account common.Address, positionID *big.Int) (*big.Int, error)
	IsApprovedForAll(ctx context.Context, account, operator common.Address) (bool, error)

	SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (domain.Receipt, error)
	RedeemPositions(ctx context.Context, collateral common.Address, parent, conditionID common.Hash, indexSets []*big.Int) (domain.Receipt, error)
	ReportPayouts(ctx context.Context, questionID common.Hash, payouts []*big.Int) (domain.Receipt, error)
}

// Token is an ERC-20.
type Token interface {
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (domain.Receipt, error)
}

// Collateral is the wrapped native currency used by the AMM.
type Collateral interface {
	Token
	Deposit(ctx context.Context, value *big.Int) (domain.Receipt, error)
	Withdraw(ctx context.Context, amount *big.Int) (domain.Receipt, error)
}

// Wallet is the signing account.
type Wallet interface {
	Account() common.Address
	NativeBalance(ctx context.Context) (*big.Int, error)
}

// OracleAdapter is the optimistic-oracle adapter that owns the questions.
type OracleAdapter interface {
	Address() common.Address

	GetQuestion(ctx context.Context, questionID common.Hash) (domain.QuestionData, error)
	Ready(ctx context.Context, questionID common.Hash) (bool, error)
	Resolve(ctx context.Context, questionID common.Hash) (domain.Receipt, error)

	// The event queries tolerate failed chunks: their events are missing from
	// the result and each failure is returned alongside it.
	QuestionInitializedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.QuestionInitialized, []*domain.ChunkFetchError, error)
	QuestionResolvedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.QuestionResolved, []*domain.ChunkFetchError, error)
}

// RequestKey identifies a price request on the optimistic oracle.
type RequestKey struct {
	Requester     common.Address
	Identifier    [32]byte
	Timestamp     *big.Int
	AncillaryData []byte
}

// OptimisticOracle is the propose/dispute/settle oracle.
type OptimisticOracle interface {
	Address() common.Address

	GetRequest(ctx context.Context, key RequestKey) (*domain.OracleRequest, error)
	ProposePrice(ctx context.Context, key RequestKey, price *big.Int) (domain.Receipt, error)
	DisputePrice(ctx context.Context, key RequestKey) (domain.Receipt, error)
	Settle(ctx context.Context, key RequestKey) (domain.Receipt, error)
}

// Chain exposes head information.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Ledger hands out contract handles bound to one account. The onchain
// Session implements it.
type Ledger interface {
	Account() common.Address
	CanSign() bool

	MarketMaker(address common.Address) MarketMaker
	ConditionalTokens() ConditionalTokens
	Collateral() Collateral
	RewardToken() Token
	Adapter() OracleAdapter
	OptimisticOracle() OptimisticOracle
	Wallet() Wallet
	Chain() Chain
}
