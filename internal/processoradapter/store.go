package processoradapter

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists ProcessorTransactionMapping records.
type Store interface {
	Create(ctx context.Context, m Mapping) error
	ByProcessorTransactionID(ctx context.Context, processorTransactionID string) (Mapping, error)
}

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed mapping store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, m Mapping) error {
	_, err := s.db.Exec(ctx, `INSERT INTO processor_transaction_mappings
        (processor_transaction_id, processor_name, authorization_id, card_token, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (processor_transaction_id) DO NOTHING`,
		m.ProcessorTransactionID, m.ProcessorName, m.AuthorizationID, m.CardToken, m.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) ByProcessorTransactionID(ctx context.Context, processorTransactionID string) (Mapping, error) {
	var m Mapping
	err := s.db.QueryRow(ctx, `SELECT processor_transaction_id, processor_name, authorization_id, card_token, created_at
        FROM processor_transaction_mappings WHERE processor_transaction_id = $1`, processorTransactionID).
		Scan(&m.ProcessorTransactionID, &m.ProcessorName, &m.AuthorizationID, &m.CardToken, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mapping{}, ErrUnknownTransaction
	}
	return m, err
}

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Mapping
}

// NewMemoryStore builds an empty in-memory mapping store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Mapping)}
}

func (s *MemoryStore) Create(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[m.ProcessorTransactionID]; exists {
		return nil
	}
	s.byID[m.ProcessorTransactionID] = m
	return nil
}

func (s *MemoryStore) ByProcessorTransactionID(_ context.Context, processorTransactionID string) (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[processorTransactionID]
	if !ok {
		return Mapping{}, ErrUnknownTransaction
	}
	return m, nil
}
