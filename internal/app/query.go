/**
 * @description
 * This file contains the read-side operations for transaction history. User
 * operations scope results to accounts the caller owns; admin operations read
 * the ledger without ownership checks. Ownership is resolved through the
 * account service rather than stored locally, so the ledger stays the single
 * source of truth for history and the account service for ownership.
 *
 * @dependencies
 * - context, fmt: Standard Go libraries.
 * - github.com/google/uuid: Account and transaction identifiers.
 * - internal/domain: Domain models and errors.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/microbank/transfer-service/internal/domain"
)

// ListCurrentUserTransactions returns every transaction touching any account
// the caller owns, newest first.
func (s *Service) ListCurrentUserTransactions(ctx context.Context, principal domain.Principal) ([]domain.Transaction, error) {
	accountIDs, err := s.ownAccountIDs(ctx, principal.RawToken)
	if err != nil {
		return nil, err
	}
	if len(accountIDs) == 0 {
		return []domain.Transaction{}, nil
	}
	return s.repo.ListByAccountIDs(ctx, accountIDs)
}

// GetCurrentUserTransaction returns a single transaction if it touches one of
// the caller's accounts. A transaction that exists but belongs to someone else
// is an authorization failure, not a lookup failure.
func (s *Service) GetCurrentUserTransaction(ctx context.Context, principal domain.Principal, transactionID uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.repo.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	accountIDs, err := s.ownAccountIDs(ctx, principal.RawToken)
	if err != nil {
		return nil, err
	}
	for _, id := range accountIDs {
		if tx.SenderAccountID == id || tx.ReceiverAccountID == id {
			return tx, nil
		}
	}
	return nil, domain.NewError(domain.KindUnauthorized, "transaction does not involve any account of the current user")
}

// ListCurrentUserTransactionsByAccount returns the history of one account the
// caller owns.
func (s *Service) ListCurrentUserTransactionsByAccount(ctx context.Context, principal domain.Principal, accountID uuid.UUID) ([]domain.Transaction, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	account, err := s.accounts.GetAccount(cctx, principal.RawToken, accountID)
	cancel()
	if err != nil {
		return nil, err
	}

	user, err := s.resolveUser(ctx, principal.RawToken)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != user.ID {
		return nil, domain.NewError(domain.KindUnauthorized, "account does not belong to the current user")
	}
	return s.repo.ListByAccountIDs(ctx, []uuid.UUID{account.ID})
}

// ListAllTransactions returns the whole ledger, newest first. Admin only;
// role enforcement happens at the transport layer.
func (s *Service) ListAllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.repo.ListAll(ctx)
}

// GetTransaction returns a transaction by id without ownership checks.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.repo.Get(ctx, transactionID)
}

// ListTransactionsByAccount returns the history of any account.
func (s *Service) ListTransactionsByAccount(ctx context.Context, principal domain.Principal, accountID uuid.UUID) ([]domain.Transaction, error) {
	return s.repo.ListByAccountIDs(ctx, []uuid.UUID{accountID})
}

// ListTransactionsByUser returns the combined history of every account owned
// by the given user.
func (s *Service) ListTransactionsByUser(ctx context.Context, principal domain.Principal, userID uuid.UUID) ([]domain.Transaction, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	accounts, err := s.accounts.ListAccountsByUser(cctx, principal.RawToken, userID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %s: %w", userID, err)
	}
	if len(accounts) == 0 {
		return []domain.Transaction{}, nil
	}
	ids := make([]uuid.UUID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return s.repo.ListByAccountIDs(ctx, ids)
}

func (s *Service) ownAccountIDs(ctx context.Context, token string) ([]uuid.UUID, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	accounts, err := s.accounts.ListOwnAccounts(cctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list the caller's accounts: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids, nil
}
