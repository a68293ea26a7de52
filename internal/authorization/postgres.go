package authorization

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/money"
)

// PostgresStore persists Authorization records. Clear/Release/Reverse
// lock the target row with SELECT ... FOR UPDATE before mutating it and
// append their ledger entry in the same transaction, matching the
// atomicity requirement the settlement pipeline relies on.
type PostgresStore struct {
	ledger *ledgerentry.PostgresStore
	db     *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed authorization store. ledger
// is kept on the store but not called: ledger_entries rows are inserted
// directly inside the same transaction as the authorization row
// mutation.
func NewPostgresStore(db *pgxpool.Pool, ledger *ledgerentry.PostgresStore) *PostgresStore {
	return &PostgresStore{db: db, ledger: ledger}
}

func scanAuthorization(row pgx.Row) (Authorization, error) {
	var a Authorization
	var amountMinor int64
	var currency string
	var clearedMinor, reversedMinor *int64
	var status string
	if err := row.Scan(
		&a.AuthorizationID, &a.CardID, &a.AccountRef, &amountMinor, &currency,
		&clearedMinor, &reversedMinor, &status,
		&a.Merchant.Name, &a.Merchant.MCC, &a.Merchant.City, &a.Merchant.Country,
		&a.DeclineReason, &a.IdempotencyKey, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return Authorization{}, err
	}
	a.Status = Status(status)
	m, err := money.FromMinorUnits(amountMinor, money.Currency(currency))
	if err != nil {
		return Authorization{}, err
	}
	a.Amount = m
	if clearedMinor != nil {
		cm, err := money.FromMinorUnits(*clearedMinor, money.Currency(currency))
		if err != nil {
			return Authorization{}, err
		}
		a.ClearedAmount = &cm
	}
	if reversedMinor != nil {
		rm, err := money.FromMinorUnits(*reversedMinor, money.Currency(currency))
		if err != nil {
			return Authorization{}, err
		}
		a.ReversedTotal = &rm
	}
	return a, nil
}

const selectColumns = `authorization_id, card_id, account_ref, amount_minor, currency,
        cleared_amount_minor, reversed_total_minor, status,
        merchant_name, merchant_mcc, merchant_city, merchant_country,
        decline_reason, idempotency_key, created_at, updated_at`

func (s *PostgresStore) GetByIdempotencyKey(ctx context.Context, key string) (Authorization, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM authorizations WHERE idempotency_key = $1`, key)
	a, err := scanAuthorization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Authorization, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM authorizations WHERE authorization_id = $1`, id)
	a, err := scanAuthorization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) CreateDeclined(ctx context.Context, a Authorization) error {
	_, err := s.db.Exec(ctx, `INSERT INTO authorizations
        (authorization_id, card_id, account_ref, amount_minor, currency, status,
         merchant_name, merchant_mcc, merchant_city, merchant_country,
         decline_reason, idempotency_key, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (idempotency_key) DO NOTHING`,
		a.AuthorizationID, a.CardID, a.AccountRef, a.Amount.MinorUnits(), string(a.Amount.Currency()), string(a.Status),
		a.Merchant.Name, a.Merchant.MCC, a.Merchant.City, a.Merchant.Country,
		a.DeclineReason, a.IdempotencyKey, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return err
}

func (s *PostgresStore) CreateApproved(ctx context.Context, a Authorization, hold ledgerentry.Entry) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO authorizations
        (authorization_id, card_id, account_ref, amount_minor, currency, status,
         merchant_name, merchant_mcc, merchant_city, merchant_country,
         decline_reason, idempotency_key, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (idempotency_key) DO NOTHING`,
		a.AuthorizationID, a.CardID, a.AccountRef, a.Amount.MinorUnits(), string(a.Amount.Currency()), string(a.Status),
		a.Merchant.Name, a.Merchant.MCC, a.Merchant.City, a.Merchant.Country,
		a.DeclineReason, a.IdempotencyKey, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx) // already recorded by a concurrent winner
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
        (id, transaction_id, account_ref, entry_type, amount_minor, currency, transaction_type,
         authorization_id, card_id, idempotency_key, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (idempotency_key) DO NOTHING`,
		hold.ID, hold.TransactionID, hold.AccountRef, string(hold.EntryType), hold.Amount.MinorUnits(), string(hold.Amount.Currency()),
		string(hold.TransactionType), hold.AuthorizationID, hold.CardID, hold.IdempotencyKey, hold.CreatedAt.UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// lockForUpdate reads and row-locks an authorization within tx.
func lockForUpdate(ctx context.Context, tx pgx.Tx, authorizationID string) (Authorization, error) {
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM authorizations WHERE authorization_id = $1 FOR UPDATE`, authorizationID)
	a, err := scanAuthorization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Authorization{}, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) mutateLocked(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := lockForUpdate(ctx, tx, authorizationID)
	if err != nil {
		return err
	}
	next, entry, err := mutate(current)
	if err != nil {
		return err
	}

	var clearedMinor, reversedMinor any
	if next.ClearedAmount != nil {
		clearedMinor = next.ClearedAmount.MinorUnits()
	}
	if next.ReversedTotal != nil {
		reversedMinor = next.ReversedTotal.MinorUnits()
	}
	next.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE authorizations SET status = $1, cleared_amount_minor = $2, reversed_total_minor = $3, updated_at = $4
        WHERE authorization_id = $5`,
		string(next.Status), clearedMinor, reversedMinor, next.UpdatedAt, authorizationID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
        (id, transaction_id, account_ref, entry_type, amount_minor, currency, transaction_type,
         authorization_id, card_id, idempotency_key, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (idempotency_key) DO NOTHING`,
		entry.ID, entry.TransactionID, entry.AccountRef, string(entry.EntryType), entry.Amount.MinorUnits(), string(entry.Amount.Currency()),
		string(entry.TransactionType), entry.AuthorizationID, entry.CardID, entry.IdempotencyKey, entry.CreatedAt.UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Clear(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	return s.mutateLocked(ctx, authorizationID, mutate)
}

func (s *PostgresStore) Release(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	return s.mutateLocked(ctx, authorizationID, mutate)
}

func (s *PostgresStore) Reverse(ctx context.Context, authorizationID string, mutate func(Authorization) (Authorization, ledgerentry.Entry, error)) error {
	return s.mutateLocked(ctx, authorizationID, mutate)
}

func (s *PostgresStore) ApprovedTotalSince(ctx context.Context, cardID string, since time.Time, currency money.Currency) (money.Money, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount_minor), 0) FROM authorizations
        WHERE card_id = $1 AND status = $2 AND currency = $3 AND created_at >= $4`,
		cardID, string(StatusApproved), string(currency), since.UTC()).Scan(&total)
	if err != nil {
		return money.Money{}, err
	}
	return money.FromMinorUnits(total, currency)
}

func (s *PostgresStore) CountSince(ctx context.Context, cardID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM authorizations WHERE card_id = $1 AND created_at >= $2`,
		cardID, since.UTC()).Scan(&count)
	return count, err
}

// ReleasedSince lists Authorizations that locally transitioned to
// RELEASED at or after since, for internal/reconcile to cross-check
// against the CBS adapter's hold records.
func (s *PostgresStore) ReleasedSince(ctx context.Context, since time.Time) ([]Authorization, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM authorizations
        WHERE status = $1 AND updated_at >= $2`, string(StatusReleased), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Authorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
