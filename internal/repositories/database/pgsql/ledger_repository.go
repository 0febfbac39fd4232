package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/skalice/ledger-engine/internal/apperrors"
	"github.com/skalice/ledger-engine/internal/core/domain"
	portsrepo "github.com/skalice/ledger-engine/internal/core/ports/repositories"
	"github.com/skalice/ledger-engine/internal/models"
)

// PgxLedgerRepository persists accounts and the append-only transaction log.
type PgxLedgerRepository struct {
	BaseRepository
}

// NewLedgerRepository creates a new repository for ledger data.
func NewLedgerRepository(pool *pgxpool.Pool) *PgxLedgerRepository {
	return &PgxLedgerRepository{BaseRepository: BaseRepository{Pool: pool}}
}

// Ensure PgxLedgerRepository implements portsrepo.LedgerRepository
var _ portsrepo.LedgerRepository = (*PgxLedgerRepository)(nil)

// Helper to convert models.Account from DB to domain.Account
func toDomainAccount(m models.Account) domain.Account {
	return domain.Account{
		AccountID:   m.AccountID,
		Name:        m.Name,
		Balance:     m.Balance,
		CreditLimit: m.CreditLimit,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
	}
}

// Helper to convert models.Transaction from DB to domain.TransactionRecord
func toDomainTransaction(m models.Transaction) domain.TransactionRecord {
	return domain.TransactionRecord{
		TransactionID: m.TransactionID,
		AccountID:     m.AccountID,
		Amount:        m.Amount,
		Kind:          domain.TransactionKind(m.Kind),
		Description:   m.Description,
		OccurredAt:    m.OccurredAt,
	}
}

// FindAccountByID retrieves the authoritative account row by its ID.
func (r *PgxLedgerRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
		SELECT account_id, name, balance, credit_limit, version, created_at
		FROM accounts
		WHERE account_id = $1;
	`
	var modelAcc models.Account
	err := r.Pool.QueryRow(ctx, query, accountID).Scan(
		&modelAcc.AccountID,
		&modelAcc.Name,
		&modelAcc.Balance,
		&modelAcc.CreditLimit,
		&modelAcc.Version,
		&modelAcc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", apperrors.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("%w: failed to read account %s: %v", apperrors.ErrInfrastructure, accountID, err)
	}

	domainAcc := toDomainAccount(modelAcc)
	return &domainAcc, nil
}

// TransactionExists reports whether a transaction record with this ID is
// already committed.
func (r *PgxLedgerRepository) TransactionExists(ctx context.Context, transactionID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_id = $1);`
	var exists bool
	if err := r.Pool.QueryRow(ctx, query, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check transaction %s: %v", apperrors.ErrInfrastructure, transactionID, err)
	}
	return exists, nil
}

// CommitTransaction appends the transaction record and applies the balance
// change in one database transaction. The account update is conditioned on
// the version read by the caller; zero affected rows means another writer
// won the race and nothing is persisted.
func (r *PgxLedgerRepository) CommitTransaction(ctx context.Context, accountID string, expectedVersion int64, newBalance decimal.Decimal, record domain.TransactionRecord) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	// Ignored if the transaction commits.
	defer r.Rollback(ctx, tx)

	insertQuery := `
		INSERT INTO transactions (transaction_id, account_id, amount, kind, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = tx.Exec(ctx, insertQuery,
		record.TransactionID,
		record.AccountID,
		record.Amount,
		string(record.Kind),
		record.Description,
		record.OccurredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			// The same transaction ID was committed before, typically by an
			// earlier delivery of the same queued message.
			return fmt.Errorf("%w: transaction %s", apperrors.ErrDuplicate, record.TransactionID)
		}
		return fmt.Errorf("%w: failed to insert transaction %s: %v", apperrors.ErrInfrastructure, record.TransactionID, err)
	}

	updateQuery := `
		UPDATE accounts
		SET balance = $1, version = version + 1
		WHERE account_id = $2 AND version = $3;
	`
	tag, err := tx.Exec(ctx, updateQuery, newBalance, accountID, expectedVersion)
	if err != nil {
		return fmt.Errorf("%w: failed to update account %s: %v", apperrors.ErrInfrastructure, accountID, err)
	}
	if tag.RowsAffected() == 0 {
		// Another mutation advanced the version first. The deferred rollback
		// discards the inserted record as well.
		return fmt.Errorf("%w: account %s at version %d", apperrors.ErrConcurrentModification, accountID, expectedVersion)
	}

	return r.Commit(ctx, tx)
}

// FindRecentTransactions retrieves the newest transaction records for an
// account, most recent first.
func (r *PgxLedgerRepository) FindRecentTransactions(ctx context.Context, accountID string, limit int) ([]domain.TransactionRecord, error) {
	query := `
		SELECT transaction_id, account_id, amount, kind, description, occurred_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY occurred_at DESC, transaction_id DESC
		LIMIT $2;
	`
	rows, err := r.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query transactions for account %s: %v", apperrors.ErrInfrastructure, accountID, err)
	}
	defer rows.Close()

	records := make([]domain.TransactionRecord, 0, limit)
	for rows.Next() {
		var m models.Transaction
		if err := rows.Scan(
			&m.TransactionID,
			&m.AccountID,
			&m.Amount,
			&m.Kind,
			&m.Description,
			&m.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan transaction row: %v", apperrors.ErrInfrastructure, err)
		}
		records = append(records, toDomainTransaction(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed iterating transaction rows: %v", apperrors.ErrInfrastructure, err)
	}

	return records, nil
}
