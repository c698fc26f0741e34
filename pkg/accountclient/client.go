/**
 * @description
 * This package provides the HTTP client for the account service, the external
 * owner of accounts and balances. It exposes account lookups and the single
 * balance-mutation call the coordinator depends on.
 *
 * Key features:
 * - AdjustBalance carries an idempotency token (X-Idempotency-Key); the account
 *   service applies a repeated token at most once, which is what makes retrying
 *   a timed-out adjustment safe.
 * - Error responses are decoded into the domain error taxonomy so the caller can
 *   branch on not-found / blocked / insufficient-funds without parsing strings.
 * - The caller's bearer token is forwarded on every request; the account service
 *   performs its own request authentication.
 *
 * @dependencies
 * - net/http, encoding/json: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifier and money types.
 * - internal/domain: Account snapshot model and error taxonomy.
 */
package accountclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/microbank/transfer-service/internal/domain"
)

// Client is a client for the account service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new account service client. The timeout bounds every
// individual request; the coordinator layers its own per-call deadlines on top.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// adjustBalanceRequest is the wire payload for a balance adjustment. The amount
// is always positive; direction is carried by is_deposit, mirroring the account
// service's contract.
type adjustBalanceRequest struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsDeposit bool            `json:"is_deposit"`
}

type accountEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    *domain.Account `json:"data"`
}

type accountListEnvelope struct {
	Status  int              `json:"status"`
	Message string           `json:"message"`
	Data    []domain.Account `json:"data"`
}

// errorBody is the account service's error envelope. The code field is the
// machine-readable half of the contract; message is for humans only.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// GetAccount retrieves an account snapshot by id.
func (c *Client) GetAccount(ctx context.Context, token string, accountID uuid.UUID) (*domain.Account, error) {
	return c.getAccount(ctx, token, fmt.Sprintf("%s/api/v1/accounts/%s", c.baseURL, accountID))
}

// GetAccountByIban retrieves an account snapshot by IBAN.
func (c *Client) GetAccountByIban(ctx context.Context, token, iban string) (*domain.Account, error) {
	return c.getAccount(ctx, token, fmt.Sprintf("%s/api/v1/accounts/iban/%s", c.baseURL, url.PathEscape(strings.TrimSpace(iban))))
}

func (c *Client) getAccount(ctx context.Context, token, endpoint string) (*domain.Account, error) {
	var envelope accountEnvelope
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, "", &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, domain.NewError(domain.KindNotFound, "account not found")
	}
	return envelope.Data, nil
}

// ListOwnAccounts retrieves all accounts owned by the calling principal. The
// account service resolves the owner from the forwarded bearer token.
func (c *Client) ListOwnAccounts(ctx context.Context, token string) ([]domain.Account, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/me", c.baseURL)
	var envelope accountListEnvelope
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, "", &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// ListAccountsByUser retrieves all accounts owned by the given user.
func (c *Client) ListAccountsByUser(ctx context.Context, token string, userID uuid.UUID) ([]domain.Account, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/users/%s", c.baseURL, userID)
	var envelope accountListEnvelope
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, "", &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// AdjustBalance applies a signed delta to the account's balance and returns the
// updated snapshot. The account service enforces balance >= 0 and the blocked
// flag atomically, and deduplicates by idempotency token, so delivering the
// same logical adjustment twice changes the balance at most once.
func (c *Client) AdjustBalance(ctx context.Context, token string, accountID uuid.UUID, delta decimal.Decimal, idempotencyToken string) (*domain.Account, error) {
	if delta.IsZero() {
		return nil, domain.NewError(domain.KindValidation, "adjustment delta must be non-zero")
	}

	payload := adjustBalanceRequest{
		AccountID: accountID,
		Amount:    delta.Abs(),
		IsDeposit: delta.IsPositive(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal adjustment request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/accounts/balance", c.baseURL)
	var envelope accountEnvelope
	if err := c.do(ctx, token, http.MethodPut, endpoint, body, idempotencyToken, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("account service returned no account in adjustment response")
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, body []byte, idempotencyToken string, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("account service base url is empty")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	if idempotencyToken != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("account service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode account service response: %w", err)
	}
	return nil
}

// decodeError maps an account service error response onto the domain taxonomy.
// Unknown shapes fall back to a plain error so transport-level failures stay
// distinguishable from definitive domain rejections.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		switch body.Code {
		case "account_blocked":
			return domain.NewError(domain.KindAccountBlocked, messageOr(body.Message, "account is blocked"))
		case "insufficient_funds":
			return domain.NewError(domain.KindInsufficientFunds, messageOr(body.Message, "insufficient balance"))
		case "not_found":
			return domain.NewError(domain.KindNotFound, messageOr(body.Message, "account not found"))
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.NewError(domain.KindNotFound, "account not found")
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewError(domain.KindUnauthorized, "account service rejected the caller's credentials")
	}
	return fmt.Errorf("account service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
