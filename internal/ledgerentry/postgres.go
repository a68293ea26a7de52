package ledgerentry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists ledger entries in PostgreSQL. Relies on
// UNIQUE(ledger_entries.idempotency_key) for at-most-once semantics under
// concurrent writers.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed ledger entry store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts a new entry. A conflict on the unique idempotency key
// constraint is treated as already-recorded, not as an error, since the
// caller is expected to have checked first but concurrent writers may
// race.
func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO ledger_entries
        (id, transaction_id, account_ref, entry_type, amount_minor, currency, transaction_type,
         authorization_id, card_id, idempotency_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (idempotency_key) DO NOTHING`,
		id, e.TransactionID, e.AccountRef, string(e.EntryType), e.Amount.MinorUnits(), string(e.Amount.Currency()),
		string(e.TransactionType), nullableString(e.AuthorizationID), nullableString(e.CardID), e.IdempotencyKey, e.CreatedAt.UTC())
	return err
}

// ExistsByIdempotencyKey reports whether an entry has already been
// recorded for key.
func (s *PostgresStore) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM ledger_entries WHERE idempotency_key = $1`, key).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
