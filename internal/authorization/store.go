package authorization

import (
	"context"
	"sync"
	"time"

	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/money"
)

// Store persists Authorization records and answers the read queries the
// rules engine needs (rules.AuthorizationQuerier), keeping the pipeline
// and the policy engine decoupled from the storage backend.
type Store interface {
	// GetByIdempotencyKey implements the decision cache: returns
	// ErrNotFound if no record exists yet for key.
	GetByIdempotencyKey(ctx context.Context, key string) (Authorization, error)
	GetByID(ctx context.Context, id string) (Authorization, error)

	// CreateDeclined persists a terminal DECLINED record. Single write,
	// no CBS side effect to account for.
	CreateDeclined(ctx context.Context, a Authorization) error

	// CreateApproved persists the APPROVED record and appends its
	// AUTH_HOLD ledger entry as one atomic unit.
	CreateApproved(ctx context.Context, a Authorization, hold ledgerentry.Entry) error

	// Clear mutates an APPROVED record to CLEARED and appends the
	// CLEARING_COMMIT entry atomically. mutate is invoked with the
	// current row locked against concurrent settlement calls; it
	// returns the ledger entry to append or an error to abort.
	Clear(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error

	// Release mutates towards RELEASED and appends AUTH_RELEASE
	// atomically, under the same locked-row discipline as Clear.
	Release(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error

	// Reverse mutates towards REVERSED and appends REVERSAL atomically.
	Reverse(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error

	// ApprovedTotalSince and CountSince satisfy rules.AuthorizationQuerier.
	ApprovedTotalSince(ctx context.Context, cardID string, since time.Time, currency money.Currency) (money.Money, error)
	CountSince(ctx context.Context, cardID string, since time.Time) (int, error)

	// ReleasedSince lists Authorizations that locally transitioned to
	// RELEASED at or after since. internal/reconcile uses this to find
	// candidates whose CBS-side hold may still be orphaned.
	ReleasedSince(ctx context.Context, since time.Time) ([]Authorization, error)
}

// MemoryStore is a concurrency-safe in-memory Store, backed by a single
// mutex so every mutate callback observes and updates a consistent
// snapshot, mirroring the row-lock discipline the Postgres store gets
// from SELECT ... FOR UPDATE.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]Authorization
	byKey  map[string]string // idempotencyKey -> authorizationID
	ledger ledgerentry.Store
}

// NewMemoryStore builds an empty in-memory authorization store. ledger
// is the ledger entry store the atomic Create/Clear/Release/Reverse
// operations append to.
func NewMemoryStore(ledger ledgerentry.Store) *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]Authorization),
		byKey:  make(map[string]string),
		ledger: ledger,
	}
}

func (s *MemoryStore) GetByIdempotencyKey(_ context.Context, key string) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return Authorization{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return Authorization{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) CreateDeclined(_ context.Context, a Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[a.IdempotencyKey]; exists {
		return nil
	}
	s.byID[a.AuthorizationID] = a
	s.byKey[a.IdempotencyKey] = a.AuthorizationID
	return nil
}

func (s *MemoryStore) CreateApproved(ctx context.Context, a Authorization, hold ledgerentry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[a.IdempotencyKey]; exists {
		return nil
	}
	if err := ledgerentry.AppendIfAbsent(ctx, s.ledger, hold); err != nil {
		return err
	}
	s.byID[a.AuthorizationID] = a
	s.byKey[a.IdempotencyKey] = a.AuthorizationID
	return nil
}

func (s *MemoryStore) mutateLocked(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[authorizationID]
	if !ok {
		return ErrNotFound
	}
	next, entry, err := mutate(current)
	if err != nil {
		return err
	}
	if err := ledgerentry.AppendIfAbsent(ctx, s.ledger, entry); err != nil {
		return err
	}
	s.byID[authorizationID] = next
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	return s.mutateLocked(ctx, authorizationID, mutate)
}

func (s *MemoryStore) Release(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	return s.mutateLocked(ctx, authorizationID, mutate)
}

func (s *MemoryStore) Reverse(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	return s.mutateLocked(ctx, authorizationID, mutate)
}

func (s *MemoryStore) ApprovedTotalSince(_ context.Context, cardID string, since time.Time, currency money.Currency) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := money.Zero(currency)
	for _, a := range s.byID {
		if a.CardID != cardID || a.Status != StatusApproved {
			continue
		}
		if a.CreatedAt.Before(since) {
			continue
		}
		if a.Amount.Currency() != currency {
			continue
		}
		var err error
		total, err = total.Add(a.Amount)
		if err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

func (s *MemoryStore) CountSince(_ context.Context, cardID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, a := range s.byID {
		if a.CardID == cardID && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ReleasedSince(_ context.Context, since time.Time) ([]Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Authorization
	for _, a := range s.byID {
		if a.Status == StatusReleased && !a.UpdatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}
