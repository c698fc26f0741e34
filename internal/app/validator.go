/**
 * @description
 * This file contains the pure input validation applied to a transfer request
 * before the coordinator touches any collaborator. Everything rejected here is
 * guaranteed to have caused no side effects.
 */

package app

import (
	"strings"

	"github.com/google/uuid"

	"github.com/microbank/transfer-service/internal/domain"
)

// maxDescriptionLength matches the ledger's description column.
const maxDescriptionLength = 500

// amountScale is the fixed decimal scale of ledger amounts.
const amountScale = 4

// ValidateTransferRequest checks the shape and business rules of a transfer
// request. It returns a validation-kind domain error for the first violation
// found, or nil.
func ValidateTransferRequest(req domain.CreateTransferRequest) error {
	if req.SenderAccountID == uuid.Nil {
		return domain.NewError(domain.KindValidation, "sender account id is required")
	}

	hasReceiverID := req.ReceiverAccountID != nil && *req.ReceiverAccountID != uuid.Nil
	hasReceiverIban := strings.TrimSpace(req.ReceiverAccountIban) != ""
	if !hasReceiverID && !hasReceiverIban {
		return domain.NewError(domain.KindValidation, "either the id or the iban of the receiver account must be provided")
	}
	if hasReceiverID && hasReceiverIban {
		return domain.NewError(domain.KindValidation, "only one of receiver account id or iban may be provided")
	}
	if hasReceiverID && *req.ReceiverAccountID == req.SenderAccountID {
		return domain.NewError(domain.KindValidation, "sender and receiver accounts must differ")
	}

	if !req.Amount.IsPositive() {
		return domain.NewError(domain.KindValidation, "amount must be greater than zero")
	}
	if req.Amount.Exponent() < -amountScale {
		return domain.NewErrorf(domain.KindValidation, "amount cannot have more than %d decimal places", amountScale)
	}

	if len(req.Description) > maxDescriptionLength {
		return domain.NewErrorf(domain.KindValidation, "description cannot exceed %d characters", maxDescriptionLength)
	}

	return nil
}
