// Package memory holds process-local repositories used when no database is
// configured. Records are copied on the way in and out so callers never
// share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mozaika228/hephaestus/repositories"
)

type store[T any] struct {
	mu      sync.RWMutex
	records map[string]*T
	clone   func(*T) *T
	created func(*T) time.Time
	touch   func(*T, time.Time)
}

func newStore[T any](clone func(*T) *T, created func(*T) time.Time, touch func(*T, time.Time)) *store[T] {
	return &store[T]{
		records: make(map[string]*T),
		clone:   clone,
		created: created,
		touch:   touch,
	}
}

func (s *store[T]) create(id string, record *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = s.clone(record)
}

func (s *store[T]) get(id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return s.clone(record), nil
}

// update applies fn to a copy and stores it only when fn succeeds
func (s *store[T]) update(id string, fn func(*T) error) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	next := s.clone(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.touch(next, time.Now().UTC())
	s.records[id] = next
	return s.clone(next), nil
}

func (s *store[T]) list() []*T {
	s.mu.RLock()
	out := make([]*T, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, s.clone(record))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return s.created(out[i]).After(s.created(out[j]))
	})
	return out
}

// TransactionManager runs functions directly; each repository call is
// already atomic
type TransactionManager struct{}

// NewTransactionManager creates a no-op transaction manager
func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

// Begin returns a transaction whose Commit and Rollback do nothing
func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return transaction{ctx: ctx}, nil
}

// InTransaction calls fn
func (tm TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, transaction{ctx: ctx})
}

type transaction struct {
	ctx context.Context
}

func (transaction) Commit() error              { return nil }
func (transaction) Rollback() error            { return nil }
func (t transaction) Context() context.Context { return t.ctx }

// NewRepositories builds the in-memory repository set
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Uploads:      NewUploadRepository(),
		Tasks:        NewTaskRepository(),
		Jobs:         NewJobRepository(),
		Transactions: NewTransactionManager(),
	}
}
