/**
 * @description
 * This file defines the `Repository` interface, the contract for all ledger
 * persistence required by the transfer-service. The ledger is append-only:
 * financial fields are never updated, and the only mutation after insert is the
 * completed -> reverted status transition used by the compensation path.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: Identifier handling.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/microbank/transfer-service/internal/domain"
)

// Repository defines the set of methods for interacting with the ledger database.
type Repository interface {
	// Append inserts a new ledger entry and returns it with the generated id
	// and commit timestamp filled in. Entries are never deleted.
	Append(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)

	// Get returns the ledger entry with the given id, or a not-found domain error.
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	// ListByAccountIDs returns all entries where the sender or receiver account
	// is in ids, newest first.
	ListByAccountIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Transaction, error)

	// ListAll returns every ledger entry, newest first.
	ListAll(ctx context.Context) ([]domain.Transaction, error)

	// MarkReverted transitions a completed entry to reverted. It only changes
	// status; marking an already-reverted entry is a no-op.
	MarkReverted(ctx context.Context, id uuid.UUID) error

	// CreateIncident records an operator-visible incident for a transfer that
	// could not be driven to a consistent terminal state.
	CreateIncident(ctx context.Context, incident *domain.Incident) error
}
