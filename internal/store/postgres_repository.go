/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for the `transactions` ledger table and the
 * `transfer_incidents` table.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/microbank/transfer-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts the ledger entry; id and timestamp are generated by the database
// at commit time so the record carries exactly one authoritative clock.
func (r *PostgresRepository) Append(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions (sender_account_id, receiver_account_id, amount, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		tx.SenderAccountID,
		tx.ReceiverAccountID,
		tx.Amount,
		tx.Description,
		tx.Status,
	).Scan(&tx.ID, &tx.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	return tx, nil
}

// Get retrieves a single ledger entry by id.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT id, sender_account_id, receiver_account_id, amount, COALESCE(description, ''), status, created_at
		FROM transactions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&tx.ID,
		&tx.SenderAccountID,
		&tx.ReceiverAccountID,
		&tx.Amount,
		&tx.Description,
		&tx.Status,
		&tx.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewErrorf(domain.KindNotFound, "transaction with the id %s not found", id)
		}
		return nil, err
	}
	return &tx, nil
}

// ListByAccountIDs retrieves entries where either side of the transfer is one
// of the given accounts.
func (r *PostgresRepository) ListByAccountIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, sender_account_id, receiver_account_id, amount, COALESCE(description, ''), status, created_at
		FROM transactions
		WHERE sender_account_id = ANY($1) OR receiver_account_id = ANY($1)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListAll retrieves every ledger entry.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	query := `
		SELECT id, sender_account_id, receiver_account_id, amount, COALESCE(description, ''), status, created_at
		FROM transactions
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// MarkReverted flips a completed entry to reverted. Financial fields are left
// untouched; the guard on current status makes the call idempotent.
func (r *PostgresRepository) MarkReverted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transactions
		SET status = $2
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.Exec(ctx, query, id, domain.StatusReverted, domain.StatusCompleted)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		existing, getErr := r.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing.Status == domain.StatusReverted {
			return nil
		}
		return domain.NewErrorf(domain.KindValidation, "transaction %s is not in a revertible state", id)
	}
	return nil
}

// CreateIncident records an incident row. The id and creation time come back
// filled in so the caller can reference the incident in logs.
func (r *PostgresRepository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO transfer_incidents (attempt_id, sender_account_id, receiver_account_id, amount, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query,
		incident.AttemptID,
		incident.SenderAccountID,
		incident.ReceiverAccountID,
		incident.Amount,
		incident.Reason,
	).Scan(&incident.ID, &incident.CreatedAt)
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.SenderAccountID,
			&tx.ReceiverAccountID,
			&tx.Amount,
			&tx.Description,
			&tx.Status,
			&tx.Timestamp,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}
