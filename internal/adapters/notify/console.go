package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// NotifyMarkets imprime los mercados en el modo configurado. Los que fallaron
// en el último refresco se marcan como stale.
func (c *Console) NotifyMarkets(_ context.Context, markets []domain.Market, stale map[string]bool) error {
	stamp := c.now().Format("15:04:05")
	if len(markets) == 0 {
		fmt.Fprintf(c.out, "[%s] no markets loaded\n", stamp)
		return nil
	}

	if !c.table {
		c.printMarketsCompact(stamp, markets, stale)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d markets\n", stamp, len(markets))
	for _, m := range markets {
		c.PrintMarket(m, stale[m.AMM.Hex()])
	}
	return nil
}

// printMarketsCompact imprime una línea por mercado.
func (c *Console) printMarketsCompact(stamp string, markets []domain.Market, stale map[string]bool) {
	for _, m := range markets {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s] %s [%s]", stamp, compactName(m.Descriptor.Title, 40), m.Stage)
		for _, o := range m.Outcomes {
			fmt.Fprintf(&sb, " | %s %s%%", o.Title, o.Probability.StringFixed(2))
		}
		if m.Resolved() {
			sb.WriteString(" | resolved")
		}
		if stale[m.AMM.Hex()] {
			sb.WriteString(" | STALE")
		}
		fmt.Fprintln(c.out, sb.String())
	}
}

// PrintMarket imprime el detalle de un mercado: cabecera, outcomes y
// posición de liquidez del usuario.
func (c *Console) PrintMarket(m domain.Market, stale bool) {
	title := m.Descriptor.Title
	if stale {
		title += "  (STALE: showing last good snapshot)"
	}
	fmt.Fprintf(c.out, "\n── %s ──\n", title)
	if m.Descriptor.Category != "" {
		fmt.Fprintf(c.out, "  Category:  %s\n", m.Descriptor.Category)
	}
	fmt.Fprintf(c.out, "  AMM:       %s\n", m.AMM.Hex())
	fmt.Fprintf(c.out, "  Condition: %s\n", m.ConditionID.Hex())
	fmt.Fprintf(c.out, "  Stage:     %s | Fee: %s%% | Funding: %s\n",
		m.Stage, m.FeePercentage().String(), domain.FromBaseUnits(m.Funding, m.CollateralDecimals).StringFixed(4))
	if m.IsOwner(m.Liquidity.Account) {
		fmt.Fprintln(c.out, "  You own this market maker")
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Outcome", "Prob %", "Your balance", "Payout")
	for _, o := range m.Outcomes {
		payout := "-"
		if m.Resolved() && o.Determined() {
			payout = fmt.Sprintf("%s/%s", o.PayoutNumerator, m.PayoutDenominator)
		}
		table.Append(
			fmt.Sprintf("%d", o.Index),
			o.Title,
			o.Probability.StringFixed(2),
			o.BalanceUnits.StringFixed(4),
			payout,
		)
	}
	table.Render()

	lp := m.Liquidity
	if lp.Shares != nil && lp.Shares.Sign() > 0 {
		fmt.Fprintf(c.out, "  LP shares: %s of %s (%s%%) | pending fees: %s\n",
			domain.FromBaseUnits(lp.Shares, m.CollateralDecimals).StringFixed(4),
			domain.FromBaseUnits(lp.TotalShares, m.CollateralDecimals).StringFixed(4),
			domain.BasisPointsToPercentage(lp.SharePercentage).StringFixed(2),
			domain.FromBaseUnits(lp.PendingFees, m.CollateralDecimals).StringFixed(6))
	}
	if winners := m.Winners(); len(winners) > 0 {
		names := make([]string, len(winners))
		for i, w := range winners {
			names[i] = m.Descriptor.OutcomeTitle(w)
		}
		fmt.Fprintf(c.out, "  Resolved: %s\n", strings.Join(names, ", "))
	}
}

// NotifyQuestions imprime las preguntas del oráculo.
func (c *Console) NotifyQuestions(_ context.Context, questions []domain.OracleQuestion) error {
	now := c.now()
	if len(questions) == 0 {
		fmt.Fprintf(c.out, "[%s] no oracle questions\n", now.Format("15:04:05"))
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d oracle questions\n", now.Format("15:04:05"), len(questions))
	table := tablewriter.NewWriter(c.out)
	table.Header("Question", "Status", "Proposed", "Liveness", "Bond", "ID")
	for _, q := range questions {
		status := string(q.Status)
		if q.Stale {
			status += " (stale)"
		}
		table.Append(
			compactName(q.Ancillary.Title, 40),
			status,
			proposedLabel(q),
			livenessLabel(q, now),
			bigLabel(q.Data.ProposalBond),
			shortHash(q.QuestionID.Hex()),
		)
	}
	table.Render()
	return nil
}

// PrintQuestion imprime el detalle de una pregunta.
func (c *Console) PrintQuestion(q domain.OracleQuestion) {
	now := c.now()
	fmt.Fprintf(c.out, "\n── %s ──\n", q.Ancillary.Title)
	fmt.Fprintf(c.out, "  ID:          %s\n", q.QuestionID.Hex())
	fmt.Fprintf(c.out, "  Status:      %s\n", q.Status)
	if q.Ancillary.Description != "" {
		fmt.Fprintf(c.out, "  Description: %s\n", q.Ancillary.Description)
	}
	for _, opt := range q.Ancillary.ResolutionOptions() {
		fmt.Fprintf(c.out, "  %s = %s\n", opt.Label, opt.Value)
	}
	fmt.Fprintf(c.out, "  Creator:     %s\n", q.Creator().Hex())
	fmt.Fprintf(c.out, "  Reward:      %s | Bond: %s | Liveness: %ss\n",
		bigLabel(q.Data.Reward), bigLabel(q.Data.ProposalBond), bigLabel(q.Data.Liveness))
	if q.Request.HasProposal() {
		fmt.Fprintf(c.out, "  Proposer:    %s (%s)\n", q.Request.Proposer.Hex(), proposedLabel(q))
		fmt.Fprintf(c.out, "  Liveness:    %s\n", livenessLabel(q, now))
	}
	if q.Request.HasDispute() {
		fmt.Fprintf(c.out, "  Disputer:    %s\n", q.Request.Disputer.Hex())
	}
	if q.Resolution != nil {
		fmt.Fprintf(c.out, "  Settled at:  %s (tx %s)\n", bigLabel(q.Resolution.SettledPrice), q.Resolution.TxHash.Hex())
	}

	var actions []string
	if q.CanPropose() {
		actions = append(actions, "propose")
	}
	if q.CanDispute(now) {
		actions = append(actions, "dispute")
	}
	if q.CanSettle(now) {
		actions = append(actions, "settle")
	}
	if q.CanResolve() {
		actions = append(actions, "resolve")
	}
	if len(actions) > 0 {
		fmt.Fprintf(c.out, "  Actions:     %s\n", strings.Join(actions, ", "))
	}
}

// PrintAction imprime el resultado de una acción con sus pasos.
func (c *Console) PrintAction(r domain.ActionResult) {
	fmt.Fprintf(c.out, "%s confirmed (%d steps, id %s)\n", r.Action, len(r.Steps), r.ID)
	for _, s := range r.Steps {
		fmt.Fprintf(c.out, "  %-10s tx %s block %d\n", s.Step, s.Receipt.TxHash.Hex(), s.Receipt.BlockNumber)
	}
	if r.Amount != nil {
		fmt.Fprintf(c.out, "  amount: %s\n", r.Amount)
	}
}

// PrintWrites imprime el journal de escrituras.
func (c *Console) PrintWrites(records []domain.WriteRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "no writes recorded")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("When", "Action", "Step", "Status", "Tx", "Reason")
	for _, r := range records {
		tx := "-"
		if r.TxHash != (common.Hash{}) {
			tx = shortHash(r.TxHash.Hex())
		}
		table.Append(
			r.CreatedAt.Local().Format("01-02 15:04:05"),
			r.Action,
			r.Step,
			string(r.Status),
			tx,
			truncate(r.Reason, 50),
		)
	}
	table.Render()
}

// PrintChunkWarnings avisa de rangos de bloques cuyos eventos faltan.
func (c *Console) PrintChunkWarnings(errs []*domain.ChunkFetchError) {
	for _, e := range errs {
		fmt.Fprintf(c.out, "WARNING: %s events in blocks %d-%d could not be fetched and are missing\n",
			e.Event, e.FromBlock, e.ToBlock)
	}
}

// --- helpers ---

func proposedLabel(q domain.OracleQuestion) string {
	if !q.Request.HasProposal() {
		return "-"
	}
	if a, ok := domain.AnswerForPrice(q.Request.ProposedPrice); ok {
		return strings.ToUpper(string(a))
	}
	return bigLabel(q.Request.ProposedPrice)
}

func livenessLabel(q domain.OracleQuestion, now time.Time) string {
	if !q.Request.HasProposal() {
		return "-"
	}
	if rem := q.Remaining(now); rem > 0 {
		return rem.Truncate(time.Second).String() + " left"
	}
	return "expired"
}

func bigLabel(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
