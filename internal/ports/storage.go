package ports

import (
	"context"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// Journal records every write step submitted by the client. It is an audit
// trail only: contract state is always read back from the ledger.
type Journal interface {
	RecordWrite(ctx context.Context, rec domain.WriteRecord) error
	RecentWrites(ctx context.Context, limit int) ([]domain.WriteRecord, error)
}

// EventStore caches decoded oracle events and the last block scanned, so a
// restart only fetches the new range.
type EventStore interface {
	SaveQuestions(ctx context.Context, events []domain.QuestionInitialized) error
	LoadQuestions(ctx context.Context) ([]domain.QuestionInitialized, error)
	SaveResolutions(ctx context.Context, events []domain.QuestionResolved) error
	LoadResolutions(ctx context.Context) ([]domain.QuestionResolved, error)

	// Cursor returns the last fully scanned block for name.
	Cursor(ctx context.Context, name string) (block uint64, ok bool, err error)
	SetCursor(ctx context.Context, name string, block uint64) error

	Close() error
}
