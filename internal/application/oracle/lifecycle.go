// Package oracle tracks the questions of an optimistic-oracle adapter and
// derives their status from live reads on every refresh.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

const defaultConcurrency = 4

// Config is the oracle/network descriptor the lifecycle needs. StartBlock and
// PriceIdentifier are used as given.
type Config struct {
	StartBlock      uint64
	PriceIdentifier [32]byte
	// Concurrency bounds the questions enriched in parallel.
	Concurrency int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Lifecycle discovers questions from adapter events and derives their status.
// Nothing derived is persisted: only the raw events and the scan cursor are
// cached in the EventStore.
type Lifecycle struct {
	ledger ports.Ledger
	store  ports.EventStore
	cfg    Config
	now    func() time.Time

	scanMu sync.Mutex
	loaded bool
	next   uint64

	mu          sync.RWMutex
	events      map[common.Hash]domain.QuestionInitialized
	resolutions map[common.Hash]domain.QuestionResolved
	questions   map[common.Hash]domain.OracleQuestion
	chunkErrs   []*domain.ChunkFetchError
}

// NewLifecycle builds a lifecycle. store may be nil, in which case every run
// scans from StartBlock.
func NewLifecycle(ledger ports.Ledger, store ports.EventStore, cfg Config) *Lifecycle {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		ledger:      ledger,
		store:       store,
		cfg:         cfg,
		now:         now,
		next:        cfg.StartBlock,
		events:      make(map[common.Hash]domain.QuestionInitialized),
		resolutions: make(map[common.Hash]domain.QuestionResolved),
		questions:   make(map[common.Hash]domain.OracleQuestion),
	}
}

func (lc *Lifecycle) cursorName() string {
	return "adapter:" + lc.ledger.Adapter().Address().Hex()
}

// Refresh scans new events and re-derives every known question. A question
// whose reads fail keeps its previous snapshot, marked stale. The returned
// error reports a failed scan; per-question failures are only logged.
func (lc *Lifecycle) Refresh(ctx context.Context) ([]domain.OracleQuestion, error) {
	_, scanErr := lc.Sync(ctx)
	if scanErr != nil && ctx.Err() != nil {
		return nil, scanErr
	}

	lc.mu.RLock()
	ids := make([]common.Hash, 0, len(lc.events))
	for id := range lc.events {
		ids = append(ids, id)
	}
	lc.mu.RUnlock()

	derived := make([]*domain.OracleQuestion, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lc.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			q, err := lc.derive(gctx, id)
			if err != nil {
				slog.Warn("oracle: question refresh failed, keeping previous snapshot",
					"question", id.Hex(), "err", err)
				return nil
			}
			derived[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	lc.mu.Lock()
	for i, id := range ids {
		if derived[i] != nil {
			lc.questions[id] = *derived[i]
			continue
		}
		if prev, ok := lc.questions[id]; ok {
			prev.Stale = true
			lc.questions[id] = prev
		}
	}
	lc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return lc.Snapshot(domain.FilterAll), fmt.Errorf("oracle.Refresh: %w", scanErr)
	}
	return lc.Snapshot(domain.FilterAll), nil
}

// Sync fetches QuestionInitialized and QuestionResolved events from the
// scan cursor to the chain head. The cursor only advances up to the block
// before the first failed chunk, so missing ranges are fetched again on the
// next run. The failed chunks are returned and kept for ChunkErrors.
func (lc *Lifecycle) Sync(ctx context.Context) ([]*domain.ChunkFetchError, error) {
	lc.scanMu.Lock()
	defer lc.scanMu.Unlock()

	if err := lc.load(ctx); err != nil {
		return nil, err
	}

	head, err := lc.ledger.Chain().BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("oracle.Sync: head: %w", err)
	}
	from := lc.next
	if from > head {
		return nil, nil
	}

	adapter := lc.ledger.Adapter()
	initialized, initErrs, err := adapter.QuestionInitializedEvents(ctx, from, head)
	if err != nil {
		return nil, fmt.Errorf("oracle.Sync: initialized events: %w", err)
	}
	resolved, resErrs, err := adapter.QuestionResolvedEvents(ctx, from, head)
	if err != nil {
		return nil, fmt.Errorf("oracle.Sync: resolved events: %w", err)
	}
	chunkErrs := make([]*domain.ChunkFetchError, 0, len(initErrs)+len(resErrs))
	chunkErrs = append(chunkErrs, initErrs...)
	chunkErrs = append(chunkErrs, resErrs...)

	lc.mu.Lock()
	for _, ev := range initialized {
		if prev, ok := lc.events[ev.QuestionID]; ok && prev.BlockNumber > ev.BlockNumber {
			continue
		}
		lc.events[ev.QuestionID] = ev
	}
	for _, ev := range resolved {
		lc.resolutions[ev.QuestionID] = ev
	}
	lc.chunkErrs = chunkErrs
	lc.mu.Unlock()

	// The cursor may only move up to the block before the first failed chunk.
	scanned, advance := head, true
	for _, ce := range chunkErrs {
		if ce.FromBlock <= from {
			advance = false
			break
		}
		scanned = min(scanned, ce.FromBlock-1)
	}
	if len(chunkErrs) > 0 {
		slog.Warn("oracle: event scan incomplete, cursor held before first failed chunk",
			"from", from, "head", head, "failed_chunks", len(chunkErrs))
	}

	if lc.store != nil {
		if err := lc.store.SaveQuestions(ctx, initialized); err != nil {
			return chunkErrs, fmt.Errorf("oracle.Sync: save questions: %w", err)
		}
		if err := lc.store.SaveResolutions(ctx, resolved); err != nil {
			return chunkErrs, fmt.Errorf("oracle.Sync: save resolutions: %w", err)
		}
	}
	if advance {
		lc.next = scanned + 1
		if lc.store != nil {
			if err := lc.store.SetCursor(ctx, lc.cursorName(), scanned); err != nil {
				return chunkErrs, fmt.Errorf("oracle.Sync: cursor: %w", err)
			}
		}
	}

	slog.Debug("oracle: events scanned", "from", from, "to", head,
		"initialized", len(initialized), "resolved", len(resolved))
	return chunkErrs, nil
}

// load restores the event cache once per process.
func (lc *Lifecycle) load(ctx context.Context) error {
	if lc.loaded || lc.store == nil {
		lc.loaded = true
		return nil
	}

	cursor, ok, err := lc.store.Cursor(ctx, lc.cursorName())
	if err != nil {
		return fmt.Errorf("oracle.load: cursor: %w", err)
	}
	questions, err := lc.store.LoadQuestions(ctx)
	if err != nil {
		return fmt.Errorf("oracle.load: questions: %w", err)
	}
	resolutions, err := lc.store.LoadResolutions(ctx)
	if err != nil {
		return fmt.Errorf("oracle.load: resolutions: %w", err)
	}

	lc.mu.Lock()
	for _, ev := range questions {
		lc.events[ev.QuestionID] = ev
	}
	for _, ev := range resolutions {
		lc.resolutions[ev.QuestionID] = ev
	}
	lc.mu.Unlock()

	if ok && cursor+1 > lc.next {
		lc.next = cursor + 1
	}
	lc.loaded = true
	slog.Info("oracle: event cache loaded", "questions", len(questions), "next_block", lc.next)
	return nil
}

// Question re-derives one question from live reads and publishes it. It is
// the refresh every oracle write ends with.
func (lc *Lifecycle) Question(ctx context.Context, id common.Hash) (domain.OracleQuestion, error) {
	q, err := lc.derive(ctx, id)
	if err != nil {
		lc.mu.Lock()
		if prev, ok := lc.questions[id]; ok {
			prev.Stale = true
			lc.questions[id] = prev
		}
		lc.mu.Unlock()
		return domain.OracleQuestion{}, fmt.Errorf("oracle.Question %s: %w", id.Hex(), err)
	}

	lc.mu.Lock()
	lc.questions[id] = q
	lc.mu.Unlock()
	return q, nil
}

// Lookup returns the last published snapshot of id.
func (lc *Lifecycle) Lookup(id common.Hash) (domain.OracleQuestion, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	q, ok := lc.questions[id]
	return q, ok
}

var errUnknownQuestion = errors.New("question not initialized on the adapter")

func (lc *Lifecycle) derive(ctx context.Context, id common.Hash) (domain.OracleQuestion, error) {
	adapter := lc.ledger.Adapter()

	data, err := adapter.GetQuestion(ctx, id)
	if err != nil {
		return domain.OracleQuestion{}, err
	}
	if data.Creator == (common.Address{}) && len(data.AncillaryData) == 0 {
		return domain.OracleQuestion{}, errUnknownQuestion
	}
	ready, err := adapter.Ready(ctx, id)
	if err != nil {
		return domain.OracleQuestion{}, err
	}

	var req *domain.OracleRequest
	if data.HasRequest() {
		req, err = lc.ledger.OptimisticOracle().GetRequest(ctx, lc.RequestKey(data))
		if err != nil {
			return domain.OracleQuestion{}, err
		}
	}

	anc, perr := domain.DecodeAncillary(data.AncillaryData)
	if perr != nil {
		slog.Debug("oracle: ancillary data not in the expected format", "question", id.Hex(), "err", perr)
	}

	q := domain.OracleQuestion{
		QuestionID: id,
		Ancillary:  anc,
		Data:       data,
		Request:    req,
		Ready:      ready,
		Status: domain.DeriveStatus(domain.StatusInputs{
			Resolved:         data.Resolved,
			Ready:            ready,
			RequestTimestamp: data.RequestTimestamp,
			Request:          req,
		}),
		DerivedAt: lc.now(),
	}

	lc.mu.RLock()
	if ev, ok := lc.events[id]; ok {
		q.BlockNumber = ev.BlockNumber
		q.TxHash = ev.TxHash
	}
	if res, ok := lc.resolutions[id]; ok {
		r := domain.Resolution{
			SettledPrice: res.SettledPrice,
			Payouts:      res.Payouts,
			BlockNumber:  res.BlockNumber,
			TxHash:       res.TxHash,
		}
		q.Resolution = &r
	}
	lc.mu.RUnlock()
	return q, nil
}

// RequestKey returns the oracle request key of a question: the adapter is
// the requester, identified by (priceIdentifier, requestTimestamp,
// ancillaryData).
func (lc *Lifecycle) RequestKey(data domain.QuestionData) ports.RequestKey {
	return ports.RequestKey{
		Requester:     lc.ledger.Adapter().Address(),
		Identifier:    lc.cfg.PriceIdentifier,
		Timestamp:     data.RequestTimestamp,
		AncillaryData: data.AncillaryData,
	}
}

// Snapshot returns the published questions passing filter, newest first.
func (lc *Lifecycle) Snapshot(filter domain.StatusFilter) []domain.OracleQuestion {
	lc.mu.RLock()
	out := make([]domain.OracleQuestion, 0, len(lc.questions))
	for _, q := range lc.questions {
		if filter.Match(q.Status) {
			out = append(out, q)
		}
	}
	lc.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].QuestionID.Hex() < out[j].QuestionID.Hex()
	})
	return out
}

// ChunkErrors returns the failed ranges of the last scan. Their events are
// missing until a later scan fetches them.
func (lc *Lifecycle) ChunkErrors() []*domain.ChunkFetchError {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return append([]*domain.ChunkFetchError(nil), lc.chunkErrs...)
}
