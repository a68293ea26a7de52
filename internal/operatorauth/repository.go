package operatorauth

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no operator matches the lookup.
var ErrNotFound = errors.New("operator not found")

// Repository persists Operator accounts.
type Repository interface {
	Create(ctx context.Context, o Operator) error
	FindByUsername(ctx context.Context, username string) (Operator, error)
	FindByID(ctx context.Context, id string) (Operator, error)
	IncrementTokenVersion(ctx context.Context, id string) error
}

// PostgresRepository is the PostgreSQL-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed operator repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, o Operator) error {
	_, err := r.db.Exec(ctx, `INSERT INTO operators (id, username, password_hash, role, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, o.ID, o.Username, o.PasswordHash, o.Role, o.TokenVersion, o.CreatedAt.UTC())
	return err
}

func scanOperator(row pgx.Row) (Operator, error) {
	var o Operator
	if err := row.Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.TokenVersion, &o.CreatedAt); err != nil {
		return Operator{}, err
	}
	return o, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (Operator, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, password_hash, role, token_version, created_at
        FROM operators WHERE username = $1`, username)
	o, err := scanOperator(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Operator{}, ErrNotFound
	}
	return o, err
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Operator, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, password_hash, role, token_version, created_at
        FROM operators WHERE id = $1`, id)
	o, err := scanOperator(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Operator{}, ErrNotFound
	}
	return o, err
}

func (r *PostgresRepository) IncrementTokenVersion(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE operators SET token_version = token_version + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryRepository is a concurrency-safe in-memory Repository.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]Operator
	byUsername map[string]string
}

// NewMemoryRepository builds an empty in-memory operator repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]Operator), byUsername: make(map[string]string)}
}

func (r *MemoryRepository) Create(_ context.Context, o Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[o.Username]; exists {
		return errors.New("username already registered")
	}
	r.byID[o.ID] = o
	r.byUsername[o.Username] = o.ID
	return nil
}

func (r *MemoryRepository) FindByUsername(_ context.Context, username string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return Operator{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return Operator{}, ErrNotFound
	}
	return o, nil
}

func (r *MemoryRepository) IncrementTokenVersion(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.TokenVersion++
	r.byID[id] = o
	return nil
}
