package portstest

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// ─── Conditional tokens ──────────────────────────────────────────────────

// CTF is the state of the fake position-token ledger.
type CTF struct {
	Addr         common.Address
	Denominators map[common.Hash]*big.Int
	Numerators   map[common.Hash][]*big.Int
	Slots        map[common.Hash]int
	Balances     map[common.Address]map[string]*big.Int
	Approvals    map[[2]common.Address]bool
	// IndexSets records every indexSet passed to getCollectionId.
	IndexSets []*big.Int
}

func NewCTF(addr common.Address) *CTF {
	return &CTF{
		Addr:         addr,
		Denominators: make(map[common.Hash]*big.Int),
		Numerators:   make(map[common.Hash][]*big.Int),
		Slots:        make(map[common.Hash]int),
		Balances:     make(map[common.Address]map[string]*big.Int),
		Approvals:    make(map[[2]common.Address]bool),
	}
}

// CollectionID is the fake's collection id of (conditionID, indexSet).
func CollectionID(conditionID common.Hash, indexSet *big.Int) common.Hash {
	return crypto.Keccak256Hash(conditionID.Bytes(), math.U256Bytes(new(big.Int).Set(indexSet)))
}

// SetBalance sets account's balance of positionID.
func (c *CTF) SetBalance(account common.Address, positionID, amount *big.Int) {
	if c.Balances[account] == nil {
		c.Balances[account] = make(map[string]*big.Int)
	}
	c.Balances[account][positionID.String()] = new(big.Int).Set(amount)
}

// Prepare registers conditionID with the given number of outcome slots.
func (c *CTF) Prepare(conditionID common.Hash, outcomes int) {
	c.Slots[conditionID] = outcomes
}

// Resolve reports payouts for conditionID.
func (c *CTF) Resolve(conditionID common.Hash, payouts ...int64) {
	den := new(big.Int)
	nums := make([]*big.Int, len(payouts))
	for i, p := range payouts {
		nums[i] = big.NewInt(p)
		den.Add(den, nums[i])
	}
	c.Numerators[conditionID] = nums
	c.Denominators[conditionID] = den
	c.Slots[conditionID] = len(payouts)
}

type ctfHandle struct{ l *Ledger }

func (h *ctfHandle) Address() common.Address { return h.l.CTF.Addr }

func (h *ctfHandle) PayoutDenominator(_ context.Context, conditionID common.Hash) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("payoutDenominator"); err != nil {
		return nil, err
	}
	if d, ok := h.l.CTF.Denominators[conditionID]; ok {
		return new(big.Int).Set(d), nil
	}
	return new(big.Int), nil
}

func (h *ctfHandle) PayoutNumerator(_ context.Context, conditionID common.Hash, index int) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("payoutNumerators"); err != nil {
		return nil, err
	}
	nums := h.l.CTF.Numerators[conditionID]
	if index < 0 || index >= len(nums) {
		return new(big.Int), nil
	}
	return new(big.Int).Set(nums[index]), nil
}

func (h *ctfHandle) OutcomeSlotCount(_ context.Context, conditionID common.Hash) (int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("getOutcomeSlotCount"); err != nil {
		return 0, err
	}
	return h.l.CTF.Slots[conditionID], nil
}

func (h *ctfHandle) CollectionID(_ context.Context, _, conditionID common.Hash, indexSet *big.Int) (common.Hash, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("getCollectionId"); err != nil {
		return common.Hash{}, err
	}
	h.l.CTF.IndexSets = append(h.l.CTF.IndexSets, new(big.Int).Set(indexSet))
	return CollectionID(conditionID, indexSet), nil
}

func (h *ctfHandle) BalanceOf(_ context.Context, account common.Address, positionID *big.Int) (*big.Int, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("balanceOf"); err != nil {
		return nil, err
	}
	if b, ok := h.l.CTF.Balances[account][positionID.String()]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (h *ctfHandle) IsApprovedForAll(_ context.Context, account, operator common.Address) (bool, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("isApprovedForAll"); err != nil {
		return false, err
	}
	return h.l.CTF.Approvals[[2]common.Address{account, operator}], nil
}

func (h *ctfHandle) SetApprovalForAll(_ context.Context, operator common.Address, approved bool) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.l.CTF.Addr, "setApprovalForAll", nil, operator, approved)
	if err == nil {
		h.l.CTF.Approvals[[2]common.Address{h.l.Acct, operator}] = approved
	}
	return r, err
}

func (h *ctfHandle) RedeemPositions(_ context.Context, collateral common.Address, parent, conditionID common.Hash, indexSets []*big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	return h.l.write(h.l.CTF.Addr, "redeemPositions", nil, collateral, parent, conditionID, indexSets)
}

func (h *ctfHandle) ReportPayouts(_ context.Context, questionID common.Hash, payouts []*big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.l.CTF.Addr, "reportPayouts", nil, questionID, payouts)
	if err == nil {
		cond := domain.ConditionID(h.l.Acct, questionID, len(payouts))
		den := new(big.Int)
		nums := make([]*big.Int, len(payouts))
		for i, p := range payouts {
			nums[i] = new(big.Int).Set(p)
			den.Add(den, p)
		}
		h.l.CTF.Numerators[cond] = nums
		h.l.CTF.Denominators[cond] = den
	}
	return r, err
}

// ─── Oracle adapter ──────────────────────────────────────────────────────

// Adapter is the state of the fake oracle adapter.
type Adapter struct {
	Addr        common.Address
	Questions   map[common.Hash]domain.QuestionData
	ReadyQ      map[common.Hash]bool
	Initialized []domain.QuestionInitialized
	Resolved    []domain.QuestionResolved
	// ChunkErrs are reported by event queries whose range overlaps them;
	// events inside a failed range are dropped.
	ChunkErrs []*domain.ChunkFetchError
	Queries   [][2]uint64
}

func NewAdapter(addr common.Address) *Adapter {
	return &Adapter{
		Addr:      addr,
		Questions: make(map[common.Hash]domain.QuestionData),
		ReadyQ:    make(map[common.Hash]bool),
	}
}

func (a *Adapter) failed(from, to, block uint64) ([]*domain.ChunkFetchError, bool) {
	var errs []*domain.ChunkFetchError
	dropped := false
	for _, e := range a.ChunkErrs {
		if e.ToBlock < from || e.FromBlock > to {
			continue
		}
		errs = append(errs, e)
		if block >= e.FromBlock && block <= e.ToBlock {
			dropped = true
		}
	}
	return errs, dropped
}

type adapterHandle struct{ l *Ledger }

func (h *adapterHandle) Address() common.Address { return h.l.Adapt.Addr }

func (h *adapterHandle) GetQuestion(_ context.Context, questionID common.Hash) (domain.QuestionData, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("getQuestion"); err != nil {
		return domain.QuestionData{}, err
	}
	return h.l.Adapt.Questions[questionID], nil
}

func (h *adapterHandle) Ready(_ context.Context, questionID common.Hash) (bool, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("ready"); err != nil {
		return false, err
	}
	return h.l.Adapt.ReadyQ[questionID], nil
}

func (h *adapterHandle) Resolve(_ context.Context, questionID common.Hash) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.l.Adapt.Addr, "resolve", nil, questionID)
	if err == nil {
		q := h.l.Adapt.Questions[questionID]
		q.Resolved = true
		h.l.Adapt.Questions[questionID] = q
		h.l.Adapt.ReadyQ[questionID] = false
	}
	return r, err
}

func (h *adapterHandle) QuestionInitializedEvents(_ context.Context, from, to uint64) ([]domain.QuestionInitialized, []*domain.ChunkFetchError, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	h.l.Adapt.Queries = append(h.l.Adapt.Queries, [2]uint64{from, to})
	errs, _ := h.l.Adapt.failed(from, to, 0)
	var out []domain.QuestionInitialized
	for _, ev := range h.l.Adapt.Initialized {
		if ev.BlockNumber < from || ev.BlockNumber > to {
			continue
		}
		if _, dropped := h.l.Adapt.failed(from, to, ev.BlockNumber); dropped {
			continue
		}
		out = append(out, ev)
	}
	return out, errs, nil
}

func (h *adapterHandle) QuestionResolvedEvents(_ context.Context, from, to uint64) ([]domain.QuestionResolved, []*domain.ChunkFetchError, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	var out []domain.QuestionResolved
	for _, ev := range h.l.Adapt.Resolved {
		if ev.BlockNumber < from || ev.BlockNumber > to {
			continue
		}
		out = append(out, ev)
	}
	return out, nil, nil
}

// ─── Optimistic oracle ───────────────────────────────────────────────────

// Oracle is the state of the fake optimistic oracle. Requests are keyed by
// RequestID of their ancillary data.
type Oracle struct {
	Addr     common.Address
	Requests map[common.Hash]*domain.OracleRequest
	Keys     []ports.RequestKey
}

func NewOracle(addr common.Address) *Oracle {
	return &Oracle{Addr: addr, Requests: make(map[common.Hash]*domain.OracleRequest)}
}

// RequestID keys a request by its ancillary data.
func RequestID(ancillaryData []byte) common.Hash { return crypto.Keccak256Hash(ancillaryData) }

type ooHandle struct{ l *Ledger }

func (h *ooHandle) Address() common.Address { return h.l.OO.Addr }

func (h *ooHandle) request(key ports.RequestKey) *domain.OracleRequest {
	id := RequestID(key.AncillaryData)
	r, ok := h.l.OO.Requests[id]
	if !ok {
		r = &domain.OracleRequest{}
		h.l.OO.Requests[id] = r
	}
	return r
}

func (h *ooHandle) GetRequest(_ context.Context, key ports.RequestKey) (*domain.OracleRequest, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if err := h.l.read("getRequest"); err != nil {
		return nil, err
	}
	h.l.OO.Keys = append(h.l.OO.Keys, key)
	r, ok := h.l.OO.Requests[RequestID(key.AncillaryData)]
	if !ok {
		return &domain.OracleRequest{}, nil
	}
	cp := *r
	return &cp, nil
}

func (h *ooHandle) ProposePrice(_ context.Context, key ports.RequestKey, price *big.Int) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.l.OO.Addr, "proposePrice", nil, key, price)
	if err == nil {
		req := h.request(key)
		req.Proposer = h.l.Acct
		req.ProposedPrice = new(big.Int).Set(price)
	}
	return r, err
}

func (h *ooHandle) DisputePrice(_ context.Context, key ports.RequestKey) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.l.OO.Addr, "disputePrice", nil, key)
	if err == nil {
		h.request(key).Disputer = h.l.Acct
	}
	return r, err
}

func (h *ooHandle) Settle(_ context.Context, key ports.RequestKey) (domain.Receipt, error) {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	r, err := h.l.write(h.l.OO.Addr, "settle", nil, key)
	if err == nil {
		h.request(key).Settled = true
	}
	return r, err
}
