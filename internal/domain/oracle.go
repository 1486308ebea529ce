package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// QuestionStatus is derived from live reads on every poll and never stored.
type QuestionStatus string

const (
	StatusWaitingForProposal      QuestionStatus = "Waiting for Proposal"
	StatusProposedPendingLiveness QuestionStatus = "Proposed - Pending Liveness"
	StatusDisputed                QuestionStatus = "Disputed"
	StatusReadyToResolve          QuestionStatus = "Ready to Resolve"
	StatusResolved                QuestionStatus = "Resolved"
)

// Answer is one of the three prices a proposer may submit.
type Answer string

const (
	AnswerYes       Answer = "yes"
	AnswerNo        Answer = "no"
	AnswerUndecided Answer = "undecided"
)

var (
	priceYes       = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	priceNo        = new(big.Int)
	priceUndecided = new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
)

// Price returns the sentinel price of a, and false for unknown answers.
func (a Answer) Price() (*big.Int, bool) {
	switch a {
	case AnswerYes:
		return new(big.Int).Set(priceYes), true
	case AnswerNo:
		return new(big.Int).Set(priceNo), true
	case AnswerUndecided:
		return new(big.Int).Set(priceUndecided), true
	default:
		return nil, false
	}
}

// AnswerForPrice maps a proposed or settled price back to its answer.
func AnswerForPrice(p *big.Int) (Answer, bool) {
	if p == nil {
		return "", false
	}
	switch {
	case p.Cmp(priceYes) == 0:
		return AnswerYes, true
	case p.Cmp(priceNo) == 0:
		return AnswerNo, true
	case p.Cmp(priceUndecided) == 0:
		return AnswerUndecided, true
	}
	return "", false
}

// QuestionData mirrors the adapter's getQuestion tuple.
type QuestionData struct {
	RequestTimestamp          *big.Int
	Reward                    *big.Int
	ProposalBond              *big.Int
	Liveness                  *big.Int
	ManualResolutionTimestamp *big.Int
	Resolved                  bool
	Paused                    bool
	Reset                     bool
	Refund                    bool
	RewardToken               common.Address
	Creator                   common.Address
	AncillaryData             []byte
}

// HasRequest reports whether a price request exists on the oracle.
func (q QuestionData) HasRequest() bool {
	return q.RequestTimestamp != nil && q.RequestTimestamp.Sign() != 0
}

// OracleRequest is the optimistic oracle's view of a price request.
type OracleRequest struct {
	Proposer       common.Address
	Disputer       common.Address
	Currency       common.Address
	Settled        bool
	ProposedPrice  *big.Int
	ResolvedPrice  *big.Int
	ExpirationTime *big.Int
	Reward         *big.Int
	Bond           *big.Int
	FinalFee       *big.Int
}

// HasProposal reports whether someone proposed (zero address means nobody).
func (r *OracleRequest) HasProposal() bool {
	return r != nil && r.Proposer != (common.Address{})
}

// HasDispute reports whether the proposal was disputed.
func (r *OracleRequest) HasDispute() bool {
	return r != nil && r.Disputer != (common.Address{})
}

// Expired reports whether the liveness window has elapsed at now.
func (r *OracleRequest) Expired(now time.Time) bool {
	if r == nil || r.ExpirationTime == nil || r.ExpirationTime.Sign() == 0 {
		return false
	}
	return big.NewInt(now.Unix()).Cmp(r.ExpirationTime) >= 0
}

// Expiration returns the expiration time as a time.Time.
func (r *OracleRequest) Expiration() time.Time {
	if r == nil || r.ExpirationTime == nil {
		return time.Time{}
	}
	return time.Unix(r.ExpirationTime.Int64(), 0)
}

// TotalBond is what a proposer or disputer must post: bond plus final fee.
func (r *OracleRequest) TotalBond() *big.Int {
	total := new(big.Int)
	if r == nil {
		return total
	}
	if r.Bond != nil {
		total.Add(total, r.Bond)
	}
	if r.FinalFee != nil {
		total.Add(total, r.FinalFee)
	}
	return total
}

// StatusInputs are the only reads a status depends on. The clock is not one
// of them: liveness expiry only affects CanSettle and CanDispute.
type StatusInputs struct {
	Resolved         bool
	Ready            bool
	RequestTimestamp *big.Int
	Request          *OracleRequest
}

// DeriveStatus maps live reads to a QuestionStatus. It is a pure function of
// its inputs; no client-held state is consulted, so a stale status corrects
// itself on the next derivation.
func DeriveStatus(in StatusInputs) QuestionStatus {
	switch {
	case in.Resolved:
		return StatusResolved
	case in.Ready:
		return StatusReadyToResolve
	case in.RequestTimestamp == nil || in.RequestTimestamp.Sign() == 0:
		return StatusWaitingForProposal
	case !in.Request.HasProposal():
		return StatusWaitingForProposal
	case in.Request.HasDispute():
		return StatusDisputed
	default:
		// Covers both the open liveness window and an expired but unsettled
		// proposal; CanSettle distinguishes them.
		return StatusProposedPendingLiveness
	}
}

// Resolution is what the adapter reported when the question resolved.
type Resolution struct {
	SettledPrice *big.Int
	Payouts      []*big.Int
	BlockNumber  uint64
	TxHash       common.Hash
}

// OracleQuestion is one question tracked by the adapter, enriched with its
// oracle request and derived status.
type OracleQuestion struct {
	QuestionID  common.Hash
	Ancillary   Ancillary
	Data        QuestionData
	Request     *OracleRequest
	Ready       bool
	Status      QuestionStatus
	Resolution  *Resolution
	BlockNumber uint64
	TxHash      common.Hash
	DerivedAt   time.Time
	Stale       bool
}

// Creator returns the account that initialized the question.
func (q OracleQuestion) Creator() common.Address { return q.Data.Creator }

// CanPropose reports whether a proposal is currently accepted.
func (q OracleQuestion) CanPropose() bool {
	return q.Status == StatusWaitingForProposal && q.Data.HasRequest() &&
		!q.Data.Resolved && !q.Data.Paused
}

// CanDispute reports whether the proposal is still inside its liveness window.
func (q OracleQuestion) CanDispute(now time.Time) bool {
	return q.Status == StatusProposedPendingLiveness && !q.Request.Expired(now) && !q.Request.Settled
}

// CanSettle reports whether the proposal's liveness expired without dispute
// and the adapter is not yet ready: settle() is the step that finalizes it.
func (q OracleQuestion) CanSettle(now time.Time) bool {
	return q.Status == StatusProposedPendingLiveness && q.Request.Expired(now) &&
		!q.Request.Settled && !q.Ready
}

// CanResolve reports whether resolve() can be called on the adapter.
func (q OracleQuestion) CanResolve() bool { return q.Status == StatusReadyToResolve }

// Remaining returns the time left in the liveness window, zero when none.
func (q OracleQuestion) Remaining(now time.Time) time.Duration {
	if !q.Request.HasProposal() || q.Request.Expired(now) {
		return 0
	}
	return q.Request.Expiration().Sub(now)
}

// StatusFilter selects questions for listing.
type StatusFilter string

const (
	FilterAll      StatusFilter = "all"
	FilterPending  StatusFilter = "pending"
	FilterReady    StatusFilter = "ready"
	FilterResolved StatusFilter = "resolved"
)

// Match reports whether status passes the filter.
func (f StatusFilter) Match(status QuestionStatus) bool {
	switch f {
	case FilterPending:
		return status == StatusWaitingForProposal || status == StatusProposedPendingLiveness
	case FilterReady:
		return status == StatusReadyToResolve
	case FilterResolved:
		return status == StatusResolved
	default:
		return true
	}
}

// QuestionInitialized is a decoded QuestionInitialized event.
type QuestionInitialized struct {
	QuestionID       common.Hash
	RequestTimestamp *big.Int
	Creator          common.Address
	AncillaryData    []byte
	RewardToken      common.Address
	Reward           *big.Int
	ProposalBond     *big.Int
	BlockNumber      uint64
	TxHash           common.Hash
}

// QuestionResolved is a decoded QuestionResolved event.
type QuestionResolved struct {
	QuestionID   common.Hash
	SettledPrice *big.Int
	Payouts      []*big.Int
	BlockNumber  uint64
	TxHash       common.Hash
}
