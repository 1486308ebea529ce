package portstest

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// Store is an in-memory Journal and EventStore.
type Store struct {
	mu          sync.Mutex
	Writes      []domain.WriteRecord
	Questions   map[common.Hash]domain.QuestionInitialized
	Resolutions map[common.Hash]domain.QuestionResolved
	Cursors     map[string]uint64
}

func NewStore() *Store {
	return &Store{
		Questions:   make(map[common.Hash]domain.QuestionInitialized),
		Resolutions: make(map[common.Hash]domain.QuestionResolved),
		Cursors:     make(map[string]uint64),
	}
}

func (s *Store) RecordWrite(_ context.Context, rec domain.WriteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes = append(s.Writes, rec)
	return nil
}

func (s *Store) RecentWrites(_ context.Context, limit int) ([]domain.WriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WriteRecord, 0, len(s.Writes))
	for i := len(s.Writes) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.Writes[i])
	}
	return out, nil
}

// Records returns a copy of the journal, oldest first.
func (s *Store) Records() []domain.WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.WriteRecord(nil), s.Writes...)
}

func (s *Store) SaveQuestions(_ context.Context, events []domain.QuestionInitialized) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if prev, ok := s.Questions[ev.QuestionID]; ok && prev.BlockNumber > ev.BlockNumber {
			continue
		}
		s.Questions[ev.QuestionID] = ev
	}
	return nil
}

func (s *Store) LoadQuestions(context.Context) ([]domain.QuestionInitialized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.QuestionInitialized, 0, len(s.Questions))
	for _, ev := range s.Questions {
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) SaveResolutions(_ context.Context, events []domain.QuestionResolved) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.Resolutions[ev.QuestionID] = ev
	}
	return nil
}

func (s *Store) LoadResolutions(context.Context) ([]domain.QuestionResolved, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.QuestionResolved, 0, len(s.Resolutions))
	for _, ev := range s.Resolutions {
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) Cursor(_ context.Context, name string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Cursors[name]
	return b, ok, nil
}

func (s *Store) SetCursor(_ context.Context, name string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block > s.Cursors[name] {
		s.Cursors[name] = block
	}
	return nil
}

func (s *Store) Close() error { return nil }

var (
	_ ports.Journal    = (*Store)(nil)
	_ ports.EventStore = (*Store)(nil)
)
