/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and translate domain errors into the shared response envelope with the
 * matching HTTP status. They are the bridge between the web layer and the
 * business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http, time: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/google/uuid, github.com/shopspring/decimal: Request field types.
 * - internal/app, internal/domain: Service logic, models, and domain errors.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/microbank/transfer-service/internal/app"
	"github.com/microbank/transfer-service/internal/domain"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// baseResponse is the shared envelope every endpoint responds with.
type baseResponse struct {
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Errors    []string    `json:"errors,omitempty"`
}

// transactionResponse is the wire shape of a ledger entry. Amounts are
// serialized as strings so clients never lose decimal precision.
type transactionResponse struct {
	ID                uuid.UUID `json:"id"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            string    `json:"amount"`
	Description       string    `json:"description,omitempty"`
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
}

type createTransferRequest struct {
	SenderAccountID     uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountID   *uuid.UUID      `json:"receiver_account_id,omitempty"`
	ReceiverAccountIban string          `json:"receiver_account_iban,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description,omitempty"`
}

func buildTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:                tx.ID,
		SenderAccountID:   tx.SenderAccountID,
		ReceiverAccountID: tx.ReceiverAccountID,
		Amount:            tx.Amount.String(),
		Description:       tx.Description,
		Status:            string(tx.Status),
		Timestamp:         tx.Timestamp,
	}
}

func buildTransactionListResponse(txs []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, buildTransactionResponse(&txs[i]))
	}
	return out
}

// CreateTransferHandler handles POST requests that initiate a transfer.
func (h *TransferHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeUnauthorized(w, "Not authenticated")
		return
	}

	var body createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Printf("level=warn component=api endpoint=create_transfer outcome=reject reason=invalid_json err=%v", err)
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.ExecuteTransfer(r.Context(), principal, domain.CreateTransferRequest{
		SenderAccountID:     body.SenderAccountID,
		ReceiverAccountID:   body.ReceiverAccountID,
		ReceiverAccountIban: body.ReceiverAccountIban,
		Amount:              body.Amount,
		Description:         body.Description,
	})
	if err != nil {
		h.writeDomainError(w, "create_transfer", err)
		return
	}

	writeJSON(w, http.StatusCreated, "Transfer completed", buildTransactionResponse(tx))
}

// ListMyTransactionsHandler returns the caller's transaction history.
func (h *TransferHandlers) ListMyTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeUnauthorized(w, "Not authenticated")
		return
	}

	txs, err := h.service.ListCurrentUserTransactions(r.Context(), principal)
	if err != nil {
		h.writeDomainError(w, "list_my_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transactions retrieved", buildTransactionListResponse(txs))
}

// GetMyTransactionHandler returns one transaction the caller is involved in.
func (h *TransferHandlers) GetMyTransactionHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeUnauthorized(w, "Not authenticated")
		return
	}
	transactionID, ok := parseUUIDParam(w, r, "transactionID")
	if !ok {
		return
	}

	tx, err := h.service.GetCurrentUserTransaction(r.Context(), principal, transactionID)
	if err != nil {
		h.writeDomainError(w, "get_my_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transaction retrieved", buildTransactionResponse(tx))
}

// ListMyAccountTransactionsHandler returns the history of one account the
// caller owns.
func (h *TransferHandlers) ListMyAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeUnauthorized(w, "Not authenticated")
		return
	}
	accountID, ok := parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}

	txs, err := h.service.ListCurrentUserTransactionsByAccount(r.Context(), principal, accountID)
	if err != nil {
		h.writeDomainError(w, "list_my_account_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transactions retrieved", buildTransactionListResponse(txs))
}

// ListAllTransactionsHandler returns the whole ledger. Admin only.
func (h *TransferHandlers) ListAllTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListAllTransactions(r.Context())
	if err != nil {
		h.writeDomainError(w, "list_all_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transactions retrieved", buildTransactionListResponse(txs))
}

// GetTransactionHandler returns any transaction by id. Admin only.
func (h *TransferHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := parseUUIDParam(w, r, "transactionID")
	if !ok {
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeDomainError(w, "get_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transaction retrieved", buildTransactionResponse(tx))
}

// ListAccountTransactionsHandler returns the history of any account. Admin only.
func (h *TransferHandlers) ListAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())
	accountID, ok := parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}

	txs, err := h.service.ListTransactionsByAccount(r.Context(), principal, accountID)
	if err != nil {
		h.writeDomainError(w, "list_account_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transactions retrieved", buildTransactionListResponse(txs))
}

// ListUserTransactionsHandler returns the combined history of every account a
// user owns. Admin only.
func (h *TransferHandlers) ListUserTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	txs, err := h.service.ListTransactionsByUser(r.Context(), principal, userID)
	if err != nil {
		h.writeDomainError(w, "list_user_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transactions retrieved", buildTransactionListResponse(txs))
}

// RevertTransactionHandler marks a completed transaction as reverted. Admin
// only; used as the remediation step after an incident.
func (h *TransferHandlers) RevertTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := parseUUIDParam(w, r, "transactionID")
	if !ok {
		return
	}

	tx, err := h.service.RevertTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeDomainError(w, "revert_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, "Transaction reverted", buildTransactionResponse(tx))
}

// writeDomainError maps a service error onto the HTTP status it deserves and
// writes the envelope. Unrecognized errors become opaque 500s.
func (h *TransferHandlers) writeDomainError(w http.ResponseWriter, endpoint string, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=api endpoint=%s outcome=error kind=%s err=%v", endpoint, kind, err)
	} else {
		log.Printf("level=warn component=api endpoint=%s outcome=reject kind=%s err=%v", endpoint, kind, err)
	}

	message := "Internal server error"
	if kind != "" {
		message = err.Error()
	}
	writeJSONError(w, status, message)
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAccountBlocked:
		return http.StatusConflict
	case domain.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTransferFailed:
		return http.StatusBadGateway
	case domain.KindInconsistent:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(baseResponse{
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(baseResponse{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Errors:    []string{message},
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, message)
}
