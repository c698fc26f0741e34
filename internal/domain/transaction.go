/**
 * @description
 * This file defines the core domain models for the transfer-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, persistence, and API layers.
 *
 * @notes
 * - Amounts are `decimal.Decimal` with a fixed 4-decimal scale, matching the
 *   NUMERIC(19,4) column used by the ledger. Floats are never used for money.
 * - Account and User are snapshots owned by external collaborators; they are
 *   read through the account and auth service clients and never persisted here.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a ledger entry. A transaction is
// written as completed and may only ever transition to reverted.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusReverted  TransactionStatus = "reverted"
)

// Transaction is the immutable ledger record for one executed transfer.
// Sender, receiver, amount and timestamp never change after the row is written;
// only Status may move from completed to reverted.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	SenderAccountID   uuid.UUID         `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID         `json:"receiver_account_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description,omitempty"`
	Status            TransactionStatus `json:"status"`
	Timestamp         time.Time         `json:"timestamp"`
}

// CreateTransferRequest is the DTO for an incoming transfer request. Exactly one
// of ReceiverAccountID / ReceiverAccountIban must be set.
type CreateTransferRequest struct {
	SenderAccountID     uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountID   *uuid.UUID      `json:"receiver_account_id,omitempty"`
	ReceiverAccountIban string          `json:"receiver_account_iban,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description,omitempty"`
}

// Account is a read-only snapshot of an account owned by the account service.
// The account service enforces balance >= 0 atomically per adjustment.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	Iban       string          `json:"iban"`
	Balance    decimal.Decimal `json:"balance"`
	Blocked    bool            `json:"blocked"`
	OwnerName  string          `json:"owner_name"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	OwnerEmail string          `json:"owner_email"`
}

// User is the identity resolved by the auth service for the calling principal.
type User struct {
	ID         uuid.UUID `json:"id"`
	KeycloakID string    `json:"keycloak_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
}

// Principal is the authenticated caller, built once at the HTTP boundary from
// the validated JWT and passed down by value. RawToken is the bearer token as
// received, forwarded to the account and auth services on outbound calls.
type Principal struct {
	KeycloakID string
	Email      string
	Roles      []string
	RawToken   string
}

// HasRole reports whether the principal carries the given realm role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Incident is an operator-visible record written when a transfer could not be
// driven to a consistent terminal state. It exists precisely so that a failed
// compensation is never silent.
type Incident struct {
	ID                uuid.UUID       `json:"id"`
	AttemptID         uuid.UUID       `json:"attempt_id"`
	SenderAccountID   uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID       `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Reason            string          `json:"reason"`
	CreatedAt         time.Time       `json:"created_at"`
}
