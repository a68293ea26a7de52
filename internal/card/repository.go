package card

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a card or mapping lookup misses.
var ErrNotFound = errors.New("not found")

// Repository persists Card and BankAccountMapping records.
type Repository interface {
	Create(ctx context.Context, c Card) error
	Get(ctx context.Context, id string) (Card, error)
	UpdateState(ctx context.Context, id string, state State) error
	CreateMapping(ctx context.Context, m BankAccountMapping) error
	MappingByCardID(ctx context.Context, cardID string) (BankAccountMapping, error)
}

// PostgresRepository stores cards and mappings in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a card record.
func (r *PostgresRepository) Create(ctx context.Context, c Card) error {
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(c.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO cards (id, cardholder_name, last4, expiration_date, state, owner_id)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		cardID, c.CardholderName, c.Last4, c.ExpirationDate.UTC(), string(c.State), ownerID)
	return err
}

// Get fetches a card by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Card, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return Card{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT id, cardholder_name, last4, expiration_date, state, owner_id
        FROM cards WHERE id = $1`, cardID)
	var (
		idVal     uuid.UUID
		ownerID   uuid.UUID
		state     string
		expiresAt time.Time
		c         Card
	)
	if err := row.Scan(&idVal, &c.CardholderName, &c.Last4, &expiresAt, &state, &ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}
	c.ID = idVal.String()
	c.OwnerID = ownerID.String()
	c.State = State(state)
	c.ExpirationDate = expiresAt.UTC()
	return c, nil
}

// UpdateState persists a new lifecycle state for the card. CLOSED is
// never overwritten: a card already CLOSED stays CLOSED regardless of
// the requested state, enforcing the terminal invariant at the storage
// boundary as a second line of defense behind the domain-level checks.
func (r *PostgresRepository) UpdateState(ctx context.Context, id string, state State) error {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE cards SET state = $1 WHERE id = $2 AND state <> $3`,
		string(state), cardID, string(StateClosed))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE id = $1)`, cardID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// CreateMapping inserts a card-to-account mapping. Immutable thereafter.
func (r *PostgresRepository) CreateMapping(ctx context.Context, m BankAccountMapping) error {
	mappingID, err := uuid.Parse(m.ID)
	if err != nil {
		return err
	}
	cardID, err := uuid.Parse(m.CardID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO bank_account_mappings
        (id, card_id, bank_client_ref, bank_account_ref, bank_core_type, created_at, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mappingID, cardID, m.BankClientRef, m.BankAccountRef, m.BankCoreType, m.CreatedAt.UTC(), m.CreatedBy)
	return err
}

// MappingByCardID fetches the mapping for a card.
func (r *PostgresRepository) MappingByCardID(ctx context.Context, cardID string) (BankAccountMapping, error) {
	cardUUID, err := uuid.Parse(cardID)
	if err != nil {
		return BankAccountMapping{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT id, card_id, bank_client_ref, bank_account_ref, bank_core_type, created_at, created_by
        FROM bank_account_mappings WHERE card_id = $1`, cardUUID)
	var (
		id        uuid.UUID
		cid       uuid.UUID
		createdAt time.Time
		m         BankAccountMapping
	)
	if err := row.Scan(&id, &cid, &m.BankClientRef, &m.BankAccountRef, &m.BankCoreType, &createdAt, &m.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccountMapping{}, ErrNotFound
		}
		return BankAccountMapping{}, err
	}
	m.ID = id.String()
	m.CardID = cid.String()
	m.CreatedAt = createdAt.UTC()
	return m, nil
}
