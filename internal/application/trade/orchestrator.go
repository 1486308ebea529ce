// Package trade runs the multi-step write actions against markets and oracle
// questions. Actions are not transactional: when a later step fails the
// earlier writes (an approval, a wrap) stay on the ledger and are reused by a
// retry.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// Guard serializes the writes of one signing account. The ledger orders
// transactions by account nonce, so a second action is refused while one is
// still waiting for its receipt.
type Guard struct {
	mu sync.Mutex
}

// Acquire takes the guard or fails with ErrWriteInFlight.
func (g *Guard) Acquire() (release func(), err error) {
	if !g.mu.TryLock() {
		return nil, domain.ErrWriteInFlight
	}
	return g.mu.Unlock, nil
}

// Busy reports whether a write is in flight.
func (g *Guard) Busy() bool {
	if g.mu.TryLock() {
		g.mu.Unlock()
		return false
	}
	return true
}

// MarketSource is the market an action targets. market.View implements it.
type MarketSource interface {
	Descriptor() domain.MarketDescriptor
	ConditionID() common.Hash
	Refresh(ctx context.Context) (domain.Market, error)
}

// QuestionSource derives oracle questions. oracle.Lifecycle implements it.
type QuestionSource interface {
	Question(ctx context.Context, id common.Hash) (domain.OracleQuestion, error)
	RequestKey(data domain.QuestionData) ports.RequestKey
}

// Orchestrator runs write actions for the ledger's account.
type Orchestrator struct {
	ledger    ports.Ledger
	journal   ports.Journal
	questions QuestionSource
	guard     *Guard
	// oracle is the account allowed to report payouts.
	oracle common.Address
	newID  func() string
	now    func() time.Time
}

// NewOrchestrator builds an orchestrator. journal may be nil.
func NewOrchestrator(ledger ports.Ledger, journal ports.Journal, questions QuestionSource, oracle common.Address) *Orchestrator {
	return &Orchestrator{
		ledger:    ledger,
		journal:   journal,
		questions: questions,
		guard:     &Guard{},
		oracle:    oracle,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Busy reports whether an action is waiting for a receipt.
func (o *Orchestrator) Busy() bool { return o.guard.Busy() }

// run is one action in progress.
type run struct {
	o      *Orchestrator
	result domain.ActionResult
}

// begin checks the signer and takes the write guard. The returned release
// must be called when the action ends.
func (o *Orchestrator) begin(action string) (*run, func(), error) {
	if !o.ledger.CanSign() {
		return nil, nil, domain.ErrNoSigner
	}
	release, err := o.guard.Acquire()
	if err != nil {
		return nil, nil, err
	}
	r := &run{o: o, result: domain.ActionResult{ID: o.newID(), Action: action}}
	return r, release, nil
}

// step submits one write, journals it and appends it to the result on
// success.
func (r *run) step(ctx context.Context, name string, target common.Address, send func(context.Context) (domain.Receipt, error)) error {
	slog.Debug("trade: submitting", "action", r.result.Action, "step", name, "target", target.Hex())
	receipt, err := send(ctx)

	rec := domain.WriteRecord{
		ActionID:  r.result.ID,
		Action:    r.result.Action,
		Step:      name,
		Account:   r.o.ledger.Account(),
		Target:    target,
		TxHash:    receipt.TxHash,
		Status:    domain.WriteConfirmed,
		CreatedAt: r.o.now(),
	}
	var re *domain.RevertError
	switch {
	case err == nil:
	case errors.As(err, &re):
		rec.Status = domain.WriteReverted
		rec.Reason = re.Reason
	default:
		rec.Status = domain.WriteFailed
		rec.Reason = err.Error()
	}
	r.o.record(ctx, rec)

	if err != nil {
		slog.Warn("trade: step failed", "action", r.result.Action, "step", name,
			"tx", receipt.TxHash.Hex(), "err", err)
		return fmt.Errorf("trade.%s: %s: %w", r.result.Action, name, err)
	}
	slog.Info("trade: step confirmed", "action", r.result.Action, "step", name,
		"tx", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
	r.result.Steps = append(r.result.Steps, domain.StepResult{Step: name, Receipt: receipt})
	return nil
}

func (o *Orchestrator) record(ctx context.Context, rec domain.WriteRecord) {
	if o.journal == nil {
		return
	}
	// A write that reached the ledger is journaled even if the caller gave up.
	if err := o.journal.RecordWrite(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("trade: journal write failed", "action", rec.Action, "step", rec.Step, "err", err)
	}
}

// refreshMarket re-derives the market after a write path. Its failure only
// leaves the view stale.
func refreshMarket(ctx context.Context, m MarketSource) {
	if _, err := m.Refresh(ctx); err != nil {
		slog.Warn("trade: post-write refresh failed", "market", m.Descriptor().Title, "err", err)
	}
}

func (o *Orchestrator) refreshQuestion(ctx context.Context, id common.Hash) {
	if _, err := o.questions.Question(ctx, id); err != nil {
		slog.Warn("trade: post-write refresh failed", "question", id.Hex(), "err", err)
	}
}

// fresh re-derives the market before validating an action against it.
func fresh(ctx context.Context, action string, m MarketSource) (domain.Market, error) {
	snap, err := m.Refresh(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("trade.%s: %w", action, err)
	}
	return snap, nil
}

func requireOwner(action string, m domain.Market, account common.Address) error {
	if !m.IsOwner(account) {
		return domain.Invalid(action, "only the market owner %s can do this", m.Owner.Hex())
	}
	return nil
}
