package onchain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// BlockRange is an inclusive range of blocks.
type BlockRange struct {
	From uint64
	To   uint64
}

// Chunks splits [from, to] into consecutive ranges of at most size blocks.
func Chunks(from, to, size uint64) []BlockRange {
	if from > to || size == 0 {
		return nil
	}
	var out []BlockRange
	for start := from; ; start += size {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		out = append(out, BlockRange{From: start, To: end})
		if end == to {
			return out
		}
	}
}

// FetchLogs returns the logs of event emitted by address in [from, to].
//
// The range is queried in sequential chunks. A chunk that fails is logged
// and reported in the second return value; its events are missing from the
// result but the remaining chunks are still fetched. The error is non-nil
// only when ctx ends.
func (g *Gateway) FetchLogs(ctx context.Context, address common.Address, event abi.Event, from, to uint64) ([]types.Log, []*domain.ChunkFetchError, error) {
	var (
		logs   []types.Log
		failed []*domain.ChunkFetchError
	)

	for _, r := range Chunks(from, to, g.chunkSize) {
		if err := ctx.Err(); err != nil {
			return logs, failed, err
		}
		if err := g.wait(ctx); err != nil {
			return logs, failed, err
		}

		chunk, err := g.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(r.From),
			ToBlock:   new(big.Int).SetUint64(r.To),
			Addresses: []common.Address{address},
			Topics:    [][]common.Hash{{event.ID}},
		})
		if err != nil {
			if ctx.Err() != nil {
				return logs, failed, ctx.Err()
			}
			cerr := &domain.ChunkFetchError{
				Contract:  address,
				Event:     event.Name,
				FromBlock: r.From,
				ToBlock:   r.To,
				Err:       err,
			}
			slog.Warn("gateway: log chunk failed, events in range dropped",
				"event", event.Name, "from", r.From, "to", r.To, "err", err)
			failed = append(failed, cerr)
			continue
		}

		slog.Debug("gateway: log chunk", "event", event.Name, "from", r.From, "to", r.To, "logs", len(chunk))
		logs = append(logs, chunk...)
	}

	return logs, failed, nil
}
