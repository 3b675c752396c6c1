package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	campaignstore "github.com/MrJamesThe3rd/almsbox/internal/campaign/store"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a transaction row in selectTransactionColumns order.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction

	var statusStr, kindStr string

	var settlementID sql.NullString

	if err := s.Scan(
		&tx.ID, &tx.CampaignID, &tx.DonorID, &tx.Amount, &tx.Message, &tx.Anonymous,
		&settlementID, &tx.ProofLocator, &kindStr, &statusStr, &tx.Credited,
		&tx.VerifiedBy, &tx.VerifiedAt, &tx.VerificationComment, &tx.CompletedAt,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.Status = transaction.Status(statusStr)
	tx.ProofKind = proof.Kind(kindStr)

	if settlementID.Valid {
		tx.SettlementID = &settlementID.String
	}

	return &tx, nil
}

const selectTransactionColumns = `
	id, campaign_id, donor_id, amount, message, anonymous,
	settlement_id, proof_locator, proof_kind, status, credited,
	verified_by, verified_at, verification_comment, completed_at,
	created_at, updated_at
`

func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (campaign_id, donor_id, amount, message, anonymous, proof_locator, proof_kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		tx.CampaignID,
		tx.DonorID,
		tx.Amount,
		tx.Message,
		tx.Anonymous,
		tx.ProofLocator,
		tx.ProofKind,
		tx.Status,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.CampaignID != nil {
		query += fmt.Sprintf(" AND campaign_id = $%d", argIdx)

		args = append(args, *filter.CampaignID)
		argIdx++
	}

	if filter.DonorID != nil {
		query += fmt.Sprintf(" AND donor_id = $%d", argIdx)

		args = append(args, *filter.DonorID)
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

type transitionTx struct {
	tx  *sql.Tx
	row *transaction.Transaction
}

// lockTransactionQuery must not conflict with the FOR KEY SHARE taken by the
// foreign key check of a concurrent campaign delete. Lock order inside a
// region: transaction row, then campaign row.
const lockTransactionQuery = `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1 FOR NO KEY UPDATE`

// BeginTransition opens a database transaction and locks the row. A second
// caller for the same id blocks until the first commits or rolls back, then
// reads the committed state.
func (s *Store) BeginTransition(ctx context.Context, id uuid.UUID) (transaction.TransitionTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transition tx: %w", err)
	}

	query := lockTransactionQuery

	row, err := scanTransaction(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		dbTx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("locking transaction: %w", err)
	}

	return &transitionTx{tx: dbTx, row: row}, nil
}

func (t *transitionTx) Transaction() *transaction.Transaction { return t.row }
func (t *transitionTx) Commit() error                         { return t.tx.Commit() }
func (t *transitionTx) Rollback() error                       { return t.tx.Rollback() }

func (t *transitionTx) UpdateState(ctx context.Context, tx *transaction.Transaction, from transaction.Status) error {
	query := `
		UPDATE transactions
		SET status = $1, credited = $2, verified_by = $3, verified_at = $4,
			verification_comment = $5, settlement_id = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $8 AND status = $9 AND NOT credited
	`

	res, err := t.tx.ExecContext(ctx, query,
		tx.Status,
		tx.Credited,
		tx.VerifiedBy,
		tx.VerifiedAt,
		tx.VerificationComment,
		tx.SettlementID,
		tx.CompletedAt,
		tx.ID,
		from,
	)
	if err != nil {
		return fmt.Errorf("updating transaction state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating transaction state: %w", err)
	}

	if n == 0 {
		return transaction.ErrConcurrentUpdate
	}

	return nil
}

func (t *transitionTx) Credit(ctx context.Context, campaignID uuid.UUID, amount int64) error {
	return campaignstore.Credit(ctx, t.tx, campaignID, amount)
}
