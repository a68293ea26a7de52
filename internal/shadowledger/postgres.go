package shadowledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/money"
)

// PostgresShadowLedger is the reference BankAccountAdapter implementation:
// a double-entry journal over PostgreSQL standing in for a CBS that lacks
// native authorization holds.
type PostgresShadowLedger struct {
	db             *pgxpool.Pool
	holdsGLAccount string // dedicated liability account parking active holds
	settlementGL   string // counterparty account for committed debits
	adapterName    string
}

// NewPostgresShadowLedger constructs the reference adapter. holdsGLAccount
// is the "auth-holds" liability account from double-entry bookkeeping; settlementGL is
// the counterparty leg for a committed debit so the books stay balanced.
func NewPostgresShadowLedger(db *pgxpool.Pool, holdsGLAccount, settlementGL string) *PostgresShadowLedger {
	return &PostgresShadowLedger{db: db, holdsGLAccount: holdsGLAccount, settlementGL: settlementGL, adapterName: "shadow-journal-postgres"}
}

// EnsureAccount guarantees an account exists with the given currency. Not
// part of BankAccountAdapter; called at startup for the GL accounts. Card
// issuance does not call it.
func (l *PostgresShadowLedger) EnsureAccount(ctx context.Context, accountRef string, currency money.Currency) error {
	_, err := l.db.Exec(ctx, `INSERT INTO shadow_accounts (account_ref, currency)
        VALUES ($1, $2) ON CONFLICT (account_ref) DO NOTHING`, accountRef, string(currency))
	return err
}

// GetAvailableBalance returns the real-time available balance: total minus
// any live holds, which are already reflected in the posted journal.
func (l *PostgresShadowLedger) GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error) {
	var currency string
	var balance int64
	const query = `
        SELECT a.currency, COALESCE(SUM(e.amount), 0)
        FROM shadow_accounts a
        LEFT JOIN shadow_entries e ON e.account_ref = a.account_ref
        WHERE a.account_ref = $1
        GROUP BY a.currency`
	if err := l.db.QueryRow(ctx, query, accountRef).Scan(&currency, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return money.Money{}, &bankadapter.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: fmt.Errorf("unknown account")}
		}
		return money.Money{}, &bankadapter.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: err}
	}
	m, err := money.FromMinorUnits(balance, money.Currency(currency))
	if err != nil {
		return money.Money{}, &bankadapter.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: err}
	}
	return m, nil
}

func (l *PostgresShadowLedger) findHold(ctx context.Context, q pgxQuerier, referenceID string) (HoldRecord, error) {
	const query = `SELECT authorization_id, account_ref, journal_entry_id, amount, currency, status, created_at, updated_at
        FROM shadow_holds WHERE authorization_id = $1`
	var h HoldRecord
	var status string
	if err := q.QueryRow(ctx, query, referenceID).Scan(
		&h.AuthorizationID, &h.AccountRef, &h.JournalEntryID, &h.AmountMinor, &h.Currency, &status, &h.CreatedAt, &h.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HoldRecord{}, pgx.ErrNoRows
		}
		return HoldRecord{}, err
	}
	h.Status = HoldStatus(status)
	return h, nil
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PlaceHold reserves amount against accountRef by posting DEBIT account /
// CREDIT holds-GL, then persisting a HoldRecord. Idempotent on
// referenceID.
func (l *PostgresShadowLedger) PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	if existing, err := l.findHold(ctx, l.db, referenceID); err == nil {
		_ = existing
		return nil // already placed; idempotent no-op
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	available, err := l.lockedBalance(ctx, tx, accountRef)
	if err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}
	if available < amount.MinorUnits() {
		availableMoney, _ := money.FromMinorUnits(available, amount.Currency())
		return &bankadapter.InsufficientFunds{AccountRef: accountRef, Required: amount, Available: availableMoney}
	}

	journalID := uuid.NewString()
	if err := l.postJournal(ctx, tx, journalID, accountRef, l.holdsGLAccount, amount.MinorUnits()); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `INSERT INTO shadow_holds
        (authorization_id, account_ref, journal_entry_id, amount, currency, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		referenceID, accountRef, journalID, amount.MinorUnits(), string(amount.Currency()), string(HoldActive), now, now); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}
	return nil
}

// CommitDebit finalizes the debit tied to a previously placed hold:
// reverses the hold journal, then posts the real withdrawal against the
// settlement counterparty, in one local transaction.
func (l *PostgresShadowLedger) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	hold, err := l.findHold(ctx, tx, referenceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("no hold exists for reference %s", referenceID)}
		}
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}

	if hold.Status == HoldCommitted {
		return nil // idempotent no-op
	}
	if hold.Status == HoldReleased {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("hold %s already released", referenceID)}
	}
	if amount.MinorUnits() > hold.AmountMinor {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("commit amount %d exceeds hold amount %d", amount.MinorUnits(), hold.AmountMinor)}
	}

	// Reverse the full hold first, restoring pre-hold balance.
	if err := l.postJournal(ctx, tx, uuid.NewString(), l.holdsGLAccount, accountRef, hold.AmountMinor); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	// Then withdraw exactly the clearing amount against the settlement GL.
	if err := l.postJournal(ctx, tx, uuid.NewString(), accountRef, l.settlementGL, amount.MinorUnits()); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}

	if _, err := tx.Exec(ctx, `UPDATE shadow_holds SET status = $1, updated_at = $2 WHERE authorization_id = $3`,
		string(HoldCommitted), time.Now().UTC(), referenceID); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	return nil
}

// ReleaseHold cancels the hold without debiting by posting only the
// reversing journal. Safe to call even if no hold exists.
func (l *PostgresShadowLedger) ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	hold, err := l.findHold(ctx, tx, referenceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // nothing to release; safe no-op per contract
		}
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	if hold.Status != HoldActive {
		return nil // already COMMITTED or RELEASED; idempotent
	}

	if err := l.postJournal(ctx, tx, uuid.NewString(), l.holdsGLAccount, accountRef, hold.AmountMinor); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	if _, err := tx.Exec(ctx, `UPDATE shadow_holds SET status = $1, updated_at = $2 WHERE authorization_id = $3`,
		string(HoldReleased), time.Now().UTC(), referenceID); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	return nil
}

// GetAdapterName identifies this adapter implementation.
func (l *PostgresShadowLedger) GetAdapterName() string { return l.adapterName }

// IsHealthy pings the database.
func (l *PostgresShadowLedger) IsHealthy(ctx context.Context) bool {
	return l.db.Ping(ctx) == nil
}

// HoldByAuthorizationID exposes the hold record for reconciliation
// (internal/reconcile scans for holds still ACTIVE after their
// authorization has locally moved to RELEASED).
func (l *PostgresShadowLedger) HoldByAuthorizationID(ctx context.Context, authorizationID string) (HoldRecord, error) {
	hold, err := l.findHold(ctx, l.db, authorizationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return HoldRecord{}, fmt.Errorf("no hold for authorization %s", authorizationID)
	}
	return hold, err
}

func (l *PostgresShadowLedger) lockedBalance(ctx context.Context, tx pgx.Tx, accountRef string) (int64, error) {
	// Lock the account row first so concurrent holds against the same
	// account serialize; the balance itself is then a plain aggregate
	// read within that lock's scope (Postgres forbids FOR UPDATE on an
	// aggregated query).
	var locked string
	if err := tx.QueryRow(ctx, `SELECT account_ref FROM shadow_accounts WHERE account_ref = $1 FOR UPDATE`, accountRef).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account %s not found", accountRef)
		}
		return 0, err
	}

	var balance int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM shadow_entries WHERE account_ref = $1`, accountRef).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// postJournal writes a balanced double-entry pair: -amount on `from`,
// +amount on `to`, tagged with a shared transaction id.
func (l *PostgresShadowLedger) postJournal(ctx context.Context, tx pgx.Tx, journalID, from, to string, amountMinor int64) error {
	if _, err := tx.Exec(ctx, `INSERT INTO shadow_transactions (id, created_at) VALUES ($1, $2)`, journalID, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO shadow_entries (id, transaction_id, account_ref, amount) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), journalID, from, -amountMinor); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO shadow_entries (id, transaction_id, account_ref, amount) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), journalID, to, amountMinor); err != nil {
		return err
	}
	return nil
}
