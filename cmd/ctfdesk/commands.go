package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alejandrodnm/ctfdesk/internal/application/poller"
	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

const defaultHistoryLimit = 20

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "watch":
		return a.watch(ctx)
	case "markets":
		return a.markets(ctx)
	case "questions":
		filter := domain.FilterAll
		if len(args) > 0 {
			filter = domain.StatusFilter(args[0])
		}
		return a.questions(ctx, filter)
	case "history":
		limit := defaultHistoryLimit
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("history: invalid limit %q", args[0])
			}
			limit = n
		}
		return a.history(ctx, limit)
	}

	if act, ok := a.actions()[command]; ok {
		return act(ctx, args)
	}
	return fmt.Errorf("unknown command %q (see -h)", command)
}

// watch polls every market on its own job and the oracle on another, and
// prints the board after every market cycle.
func (a *app) watch(ctx context.Context) error {
	s := poller.New()
	for _, v := range a.board.Views() {
		s.Add(poller.Job{
			Name:     "market:" + v.Descriptor().Title,
			Interval: a.cfg.MarketInterval(),
			Run: func(ctx context.Context) error {
				_, err := v.Refresh(ctx)
				return err
			},
		})
	}
	s.Add(poller.Job{
		Name:     "oracle",
		Interval: a.cfg.OracleInterval(),
		Run: func(ctx context.Context) error {
			questions, err := a.oracle.Refresh(ctx)
			a.notifier.PrintChunkWarnings(a.oracle.ChunkErrors())
			if len(questions) > 0 {
				_ = a.notifier.NotifyQuestions(ctx, questions)
			}
			return err
		},
	})
	s.Add(poller.Job{
		Name:     "board",
		Interval: a.cfg.MarketInterval(),
		Run: func(ctx context.Context) error {
			markets, stale := a.board.Snapshots()
			return a.notifier.NotifyMarkets(ctx, markets, stale)
		},
	})

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	slog.Info("ctfdesk stopped cleanly")
	return nil
}

func (a *app) markets(ctx context.Context) error {
	for _, err := range a.board.RefreshAll(ctx) {
		slog.Warn("market refresh failed", "err", err)
	}
	markets, stale := a.board.Snapshots()
	return a.notifier.NotifyMarkets(ctx, markets, stale)
}

func (a *app) questions(ctx context.Context, filter domain.StatusFilter) error {
	switch filter {
	case domain.FilterAll, domain.FilterPending, domain.FilterReady, domain.FilterResolved:
	default:
		return fmt.Errorf("questions: unknown filter %q", filter)
	}

	_, err := a.oracle.Refresh(ctx)
	a.notifier.PrintChunkWarnings(a.oracle.ChunkErrors())
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("oracle refresh failed, showing cached questions", "err", err)
	}
	return a.notifier.NotifyQuestions(ctx, a.oracle.Snapshot(filter))
}

func (a *app) history(ctx context.Context, limit int) error {
	records, err := a.store.RecentWrites(ctx, limit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	a.notifier.PrintWrites(records)
	return nil
}
