/**
 * @description
 * This file defines the event payload published after a transfer commits.
 * It is a denormalized snapshot consumed by the notification and document
 * services; consumers must treat it as idempotent input keyed by TransactionID.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionEvent is published to the events exchange once per committed
// transfer. Delivery is at-least-once; the payload is built exactly once from
// the stored ledger entry plus the two account snapshots.
type TransactionEvent struct {
	TransactionID            uuid.UUID       `json:"transaction_id"`
	SenderAccountID          uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountID        uuid.UUID       `json:"receiver_account_id"`
	SenderAccountEmail       string          `json:"sender_account_email"`
	ReceiverAccountEmail     string          `json:"receiver_account_email"`
	SenderAccountIban        string          `json:"sender_account_iban"`
	ReceiverAccountIban      string          `json:"receiver_account_iban"`
	SenderAccountOwnerName   string          `json:"sender_account_owner_name"`
	ReceiverAccountOwnerName string          `json:"receiver_account_owner_name"`
	Amount                   decimal.Decimal `json:"amount"`
	Description              string          `json:"description,omitempty"`
	Timestamp                time.Time       `json:"timestamp"`
}

// NewTransactionEvent builds the event snapshot for a stored transaction.
func NewTransactionEvent(tx *Transaction, sender, receiver *Account) TransactionEvent {
	return TransactionEvent{
		TransactionID:            tx.ID,
		SenderAccountID:          tx.SenderAccountID,
		ReceiverAccountID:        tx.ReceiverAccountID,
		SenderAccountEmail:       sender.OwnerEmail,
		ReceiverAccountEmail:     receiver.OwnerEmail,
		SenderAccountIban:        sender.Iban,
		ReceiverAccountIban:      receiver.Iban,
		SenderAccountOwnerName:   sender.OwnerName,
		ReceiverAccountOwnerName: receiver.OwnerName,
		Amount:                   tx.Amount,
		Description:              tx.Description,
		Timestamp:                tx.Timestamp,
	}
}
