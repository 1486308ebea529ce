package trade

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// question derives id fresh for validation.
func (o *Orchestrator) question(ctx context.Context, action string, id common.Hash) (domain.OracleQuestion, error) {
	q, err := o.questions.Question(ctx, id)
	if err != nil {
		return domain.OracleQuestion{}, fmt.Errorf("trade.%s: %w", action, err)
	}
	return q, nil
}

// Propose proposes answer for the question, posting the request's bond.
func (o *Orchestrator) Propose(ctx context.Context, id common.Hash, answer domain.Answer) (domain.ActionResult, error) {
	const action = "propose"
	price, ok := answer.Price()
	if !ok {
		return domain.ActionResult{}, domain.Invalid(action, "unknown answer %q (want yes, no or undecided)", answer)
	}
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	q, err := o.question(ctx, action, id)
	if err != nil {
		return r.result, err
	}
	defer o.refreshQuestion(ctx, id)
	if !q.CanPropose() {
		return r.result, domain.Invalid(action, "question is %s, not open for proposals", q.Status)
	}

	if err := r.bond(ctx, q); err != nil {
		return r.result, err
	}
	oo := o.ledger.OptimisticOracle()
	key := o.questions.RequestKey(q.Data)
	err = r.step(ctx, "propose", oo.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return oo.ProposePrice(ctx, key, price)
	})
	return r.result, err
}

// Dispute disputes the current proposal, posting the request's bond.
func (o *Orchestrator) Dispute(ctx context.Context, id common.Hash) (domain.ActionResult, error) {
	const action = "dispute"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	q, err := o.question(ctx, action, id)
	if err != nil {
		return r.result, err
	}
	defer o.refreshQuestion(ctx, id)
	if !q.CanDispute(q.DerivedAt) {
		return r.result, domain.Invalid(action, "question is %s, no proposal inside its liveness window", q.Status)
	}

	if err := r.bond(ctx, q); err != nil {
		return r.result, err
	}
	oo := o.ledger.OptimisticOracle()
	key := o.questions.RequestKey(q.Data)
	err = r.step(ctx, "dispute", oo.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return oo.DisputePrice(ctx, key)
	})
	return r.result, err
}

// Settle finalizes an undisputed proposal whose liveness has expired.
func (o *Orchestrator) Settle(ctx context.Context, id common.Hash) (domain.ActionResult, error) {
	const action = "settle"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	q, err := o.question(ctx, action, id)
	if err != nil {
		return r.result, err
	}
	defer o.refreshQuestion(ctx, id)
	if !q.CanSettle(q.DerivedAt) {
		return r.result, domain.Invalid(action, "question is %s, nothing to settle", q.Status)
	}

	oo := o.ledger.OptimisticOracle()
	key := o.questions.RequestKey(q.Data)
	err = r.step(ctx, "settle", oo.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return oo.Settle(ctx, key)
	})
	return r.result, err
}

// Resolve resolves a question the adapter reports ready.
func (o *Orchestrator) Resolve(ctx context.Context, id common.Hash) (domain.ActionResult, error) {
	const action = "resolve"
	r, release, err := o.begin(action)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer release()

	q, err := o.question(ctx, action, id)
	if err != nil {
		return r.result, err
	}
	defer o.refreshQuestion(ctx, id)
	if !q.CanResolve() {
		return r.result, domain.Invalid(action, "question is %s, not ready to resolve", q.Status)
	}

	adapter := o.ledger.Adapter()
	err = r.step(ctx, "resolve", adapter.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return adapter.Resolve(ctx, id)
	})
	return r.result, err
}

// bond checks the reward-token balance covers the request's bond plus final
// fee and approves exactly that to the optimistic oracle when needed.
func (r *run) bond(ctx context.Context, q domain.OracleQuestion) error {
	total := q.Request.TotalBond()
	if total.Sign() == 0 {
		return nil
	}
	ledger := r.o.ledger
	account := ledger.Account()
	token := ledger.RewardToken()
	oo := ledger.OptimisticOracle().Address()

	balance, err := token.BalanceOf(ctx, account)
	if err != nil {
		return fmt.Errorf("trade.%s: bond balance: %w", r.result.Action, err)
	}
	if balance.Cmp(total) < 0 {
		return domain.Invalid(r.result.Action, "insufficient bond token balance: need %s, have %s", total, balance)
	}
	allowance, err := token.Allowance(ctx, account, oo)
	if err != nil {
		return fmt.Errorf("trade.%s: bond allowance: %w", r.result.Action, err)
	}
	if allowance.Cmp(total) >= 0 {
		return nil
	}
	return r.step(ctx, "approve-bond", token.Address(), func(ctx context.Context) (domain.Receipt, error) {
		return token.Approve(ctx, oo, total)
	})
}
