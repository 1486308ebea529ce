package domain

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	testNow   = time.Unix(1_700_000_000, 0)
	proposer  = common.HexToAddress("0xbeef")
	disputer  = common.HexToAddress("0xd15")
	requested = big.NewInt(1_699_999_000)
)

func proposal(expiresIn time.Duration) *OracleRequest {
	return &OracleRequest{
		Proposer:       proposer,
		ProposedPrice:  big.NewInt(1e18),
		ExpirationTime: big.NewInt(testNow.Add(expiresIn).Unix()),
		Bond:           big.NewInt(500),
		FinalFee:       big.NewInt(5),
	}
}

func TestDeriveStatus(t *testing.T) {
	disputed := proposal(time.Hour)
	disputed.Disputer = disputer

	cases := []struct {
		name string
		in   StatusInputs
		want QuestionStatus
	}{
		{"resolved wins over everything", StatusInputs{Resolved: true, Ready: true, RequestTimestamp: requested, Request: disputed}, StatusResolved},
		{"ready", StatusInputs{Ready: true, RequestTimestamp: requested, Request: proposal(-time.Hour)}, StatusReadyToResolve},
		{"no request", StatusInputs{}, StatusWaitingForProposal},
		{"zero request timestamp", StatusInputs{RequestTimestamp: new(big.Int)}, StatusWaitingForProposal},
		{"request without proposal", StatusInputs{RequestTimestamp: requested, Request: &OracleRequest{}}, StatusWaitingForProposal},
		{"nil request", StatusInputs{RequestTimestamp: requested}, StatusWaitingForProposal},
		{"disputed", StatusInputs{RequestTimestamp: requested, Request: disputed}, StatusDisputed},
		{"inside liveness", StatusInputs{RequestTimestamp: requested, Request: proposal(time.Hour)}, StatusProposedPendingLiveness},
		{"expired, not settled", StatusInputs{RequestTimestamp: requested, Request: proposal(-time.Hour)}, StatusProposedPendingLiveness},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.in))
		})
	}
}

func TestDeriveStatus_ExpiryLeftToGuards(t *testing.T) {
	live := StatusInputs{RequestTimestamp: requested, Request: proposal(time.Hour)}
	expired := StatusInputs{RequestTimestamp: requested, Request: proposal(-time.Hour)}
	assert.Equal(t, DeriveStatus(live), DeriveStatus(expired))

	q := pendingQuestion(-time.Hour)
	q.Status = DeriveStatus(expired)
	assert.True(t, q.CanSettle(testNow))
	assert.False(t, q.CanDispute(testNow))
}

// --- action guards ---

func pendingQuestion(expiresIn time.Duration) OracleQuestion {
	return OracleQuestion{
		Data:    QuestionData{RequestTimestamp: requested},
		Request: proposal(expiresIn),
		Status:  StatusProposedPendingLiveness,
	}
}

func TestCanDisputeAndSettle(t *testing.T) {
	live := pendingQuestion(time.Hour)
	assert.True(t, live.CanDispute(testNow))
	assert.False(t, live.CanSettle(testNow))
	assert.Equal(t, time.Hour, live.Remaining(testNow))

	expired := pendingQuestion(-time.Minute)
	assert.False(t, expired.CanDispute(testNow))
	assert.True(t, expired.CanSettle(testNow))
	assert.Zero(t, expired.Remaining(testNow))

	expired.Ready = true
	assert.False(t, expired.CanSettle(testNow), "adapter already ready")
}

func TestExpired_AtBoundary(t *testing.T) {
	r := proposal(0)
	assert.True(t, r.Expired(testNow))
	assert.False(t, r.Expired(testNow.Add(-time.Second)))
	assert.False(t, (&OracleRequest{}).Expired(testNow), "no expiration set")
}

func TestCanPropose(t *testing.T) {
	q := OracleQuestion{Data: QuestionData{RequestTimestamp: requested}, Status: StatusWaitingForProposal}
	assert.True(t, q.CanPropose())

	q.Data.Paused = true
	assert.False(t, q.CanPropose())

	assert.False(t, OracleQuestion{Status: StatusWaitingForProposal}.CanPropose(), "no request yet")
}

func TestCanResolve(t *testing.T) {
	assert.True(t, OracleQuestion{Status: StatusReadyToResolve}.CanResolve())
	assert.False(t, OracleQuestion{Status: StatusDisputed}.CanResolve())
}

func TestTotalBond(t *testing.T) {
	assert.Equal(t, "505", proposal(time.Hour).TotalBond().String())
	assert.Equal(t, 0, (*OracleRequest)(nil).TotalBond().Sign())
	assert.Equal(t, "7", (&OracleRequest{FinalFee: big.NewInt(7)}).TotalBond().String())
}

// --- answers ---

func TestAnswerPrices(t *testing.T) {
	for _, tc := range []struct {
		answer Answer
		price  string
	}{
		{AnswerYes, "1000000000000000000"},
		{AnswerNo, "0"},
		{AnswerUndecided, "500000000000000000"},
	} {
		p, ok := tc.answer.Price()
		assert.True(t, ok)
		assert.Equal(t, tc.price, p.String())

		back, ok := AnswerForPrice(p)
		assert.True(t, ok)
		assert.Equal(t, tc.answer, back)
	}

	_, ok := Answer("maybe").Price()
	assert.False(t, ok)
	_, ok = AnswerForPrice(big.NewInt(42))
	assert.False(t, ok)
}

func TestAnswerPrice_ReturnsCopy(t *testing.T) {
	p, _ := AnswerYes.Price()
	p.SetInt64(0)
	again, _ := AnswerYes.Price()
	assert.Equal(t, "1000000000000000000", again.String())
}

func TestStatusFilter(t *testing.T) {
	statuses := []QuestionStatus{
		StatusWaitingForProposal, StatusProposedPendingLiveness, StatusDisputed,
		StatusReadyToResolve, StatusResolved,
	}
	count := func(f StatusFilter) int {
		n := 0
		for _, s := range statuses {
			if f.Match(s) {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 5, count(FilterAll))
	assert.Equal(t, 2, count(FilterPending))
	assert.Equal(t, 1, count(FilterReady))
	assert.Equal(t, 1, count(FilterResolved))
	assert.False(t, FilterPending.Match(StatusDisputed))
}

// --- errors ---

func TestValidationSentinels(t *testing.T) {
	err := fmt.Errorf("trade.buy: %w", ErrWriteInFlight)
	assert.ErrorIs(t, err, ErrWriteInFlight)
	assert.NotErrorIs(t, err, ErrNoSigner)
	assert.True(t, IsValidation(err))
	assert.False(t, IsRevert(err))

	inv := Invalid("sell", "insufficient balance")
	assert.Equal(t, "sell: insufficient balance", inv.Error())
	assert.NotErrorIs(t, inv, ErrWriteInFlight)
}

func TestRevertError(t *testing.T) {
	err := fmt.Errorf("trade.buy: trade: %w", &RevertError{Method: "trade", Reason: "SafeMath: subtraction overflow"})
	assert.True(t, IsRevert(err))
	assert.Contains(t, err.Error(), "SafeMath: subtraction overflow")
}
