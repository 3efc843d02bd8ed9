// Package memory provides in-process repositories with the same
// transactional contract as the postgres package. Writers are serialized
// and work on a private copy that is published atomically on commit, so
// readers always see a committed snapshot and never block.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sequences struct {
	interaction int64
	report      int64
	event       int64
	assignment  int64
}

type state struct {
	identities   map[uuid.UUID]models.Identity
	interactions map[int64]models.InteractionRecord
	reports      map[int64]models.AnomalyReport
	events       []models.AuditEvent
	assignments  map[int64]models.AssignmentRecord
	seq          sequences
}

func newState() *state {
	return &state{
		identities:   make(map[uuid.UUID]models.Identity),
		interactions: make(map[int64]models.InteractionRecord),
		reports:      make(map[int64]models.AnomalyReport),
		assignments:  make(map[int64]models.AssignmentRecord),
	}
}

func (s *state) clone() *state {
	return &state{
		identities:   maps.Clone(s.identities),
		interactions: maps.Clone(s.interactions),
		reports:      maps.Clone(s.reports),
		events:       slices.Clone(s.events),
		assignments:  maps.Clone(s.assignments),
		seq:          s.seq,
	}
}

// Store holds every relation behind a single writer lock
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[state]
	logger  *zap.Logger
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	s.current.Store(newState())
	return s
}

// NewRepositories creates all repository instances backed by the store
func (s *Store) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Identities:   &IdentityRepository{store: s},
		Interactions: &InteractionRepository{store: s},
		Anomalies:    &AnomalyRepository{store: s},
		AuditEvents:  &AuditEventRepository{store: s},
		Assignments:  &AssignmentRepository{store: s},
	}
}

// GetTransactionManager returns a transaction manager for the store
func (s *Store) GetTransactionManager() repositories.TransactionManager {
	return &TransactionManager{store: s}
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

// txFrom returns the store's transaction carried by ctx, if any
func (s *Store) txFrom(ctx context.Context) (*Transaction, bool) {
	tx, ok := repositories.TxFromContext(ctx)
	if !ok {
		return nil, false
	}
	memTx, ok := tx.(*Transaction)
	if !ok || memTx.store != s {
		return nil, false
	}
	return memTx, true
}

// view returns the state visible to ctx
func (s *Store) view(ctx context.Context) *state {
	if tx, ok := s.txFrom(ctx); ok {
		return tx.st
	}
	return s.current.Load()
}

// write applies fn to the transaction's state, or as its own committed
// unit when ctx carries no transaction
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if tx, ok := s.txFrom(ctx); ok {
		if tx.done {
			return fmt.Errorf("transaction already finished")
		}
		return fn(tx.st)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	st := s.current.Load().clone()
	if err := fn(st); err != nil {
		return err
	}
	s.current.Store(st)
	return nil
}

// requireTx fails outside a transaction, mirroring the postgres lock helpers
func (s *Store) requireTx(ctx context.Context, what string) error {
	if _, ok := s.txFrom(ctx); !ok {
		return fmt.Errorf("%s requires a transaction", what)
	}
	return nil
}

// TransactionManager implements repositories.TransactionManager
type TransactionManager struct {
	store *Store
}

// Begin takes the writer lock and snapshots the committed state
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	tm.store.writeMu.Lock()

	tx := &Transaction{
		store: tm.store,
		st:    tm.store.current.Load().clone(),
	}
	tx.ctx = repositories.ContextWithTx(ctx, tx)
	return tx, nil
}

// InTransaction executes fn within a transaction, joining one carried by ctx
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if tx, ok := tm.store.txFrom(ctx); ok {
		return fn(ctx, tx)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.store.logger.Error("failed to rollback transaction", zap.Error(rbErr), zap.NamedError("original_error", err))
		}
		return err
	}
	return tx.Commit()
}

// Transaction implements repositories.Transaction
type Transaction struct {
	store *Store
	st    *state
	ctx   context.Context
	done  bool
}

// Commit publishes the transaction's state
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	t.store.current.Store(t.st)
	t.store.writeMu.Unlock()
	return nil
}

// Rollback discards the transaction's state
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.writeMu.Unlock()
	return nil
}

// Context returns a context carrying the transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}
