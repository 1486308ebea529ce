package ports

import (
	"context"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// Notifier presents derived snapshots and action outcomes to the user.
type Notifier interface {
	// NotifyMarkets shows the latest market snapshots. stale marks markets
	// whose last refresh failed.
	NotifyMarkets(ctx context.Context, markets []domain.Market, stale map[string]bool) error

	// NotifyQuestions shows the oracle questions that pass the filter.
	NotifyQuestions(ctx context.Context, questions []domain.OracleQuestion) error
}
