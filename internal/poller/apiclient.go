package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agrilink/agrilink-gobackend/internal/momo"
	"github.com/agrilink/agrilink-gobackend/internal/payment"
)

const defaultAPITimeout = 15 * time.Second

// APIClient implements PaymentAPI against the marketplace's HTTP surface, so a
// session can drive a payment through the same endpoints the storefront uses.
type APIClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewAPIClient builds a client for the given API base URL. authToken is sent
// as a Bearer token on every request.
func NewAPIClient(baseURL, authToken string, client *http.Client) (*APIClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("API base URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultAPITimeout}
	}
	return &APIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		authToken:  authToken,
		httpClient: client,
	}, nil
}

type initiateRequest struct {
	PhoneNumber string   `json:"phoneNumber"`
	Amount      float64  `json:"amount"`
	OrderIDs    []string `json:"orderIds"`
}

type initiateResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	ReferenceID string   `json:"referenceId"`
	ExternalID  string   `json:"externalId"`
	OrderIDs    []string `json:"orderIds"`
}

type statusResponse struct {
	Success       bool   `json:"success"`
	ReferenceID   string `json:"referenceId"`
	PaymentStatus string `json:"paymentStatus"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
}

// Initiate posts to /api/payment/initiate.
func (c *APIClient) Initiate(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error) {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(initiateRequest{
		PhoneNumber: phoneNumber,
		Amount:      amount,
		OrderIDs:    orderIDs,
	}); err != nil {
		return nil, fmt.Errorf("encode initiate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/payment/initiate", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("initiate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode initiate response: %w", err)
	}
	return &payment.InitiateResult{
		ReferenceID: out.ReferenceID,
		ExternalID:  out.ExternalID,
		OrderIDs:    out.OrderIDs,
	}, nil
}

// CheckStatus queries /api/payment/status/{referenceId}.
func (c *APIClient) CheckStatus(ctx context.Context, referenceID string) (*payment.StatusResult, error) {
	url := fmt.Sprintf("%s/api/payment/status/%s", c.baseURL, referenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &payment.StatusResult{
		ReferenceID:   out.ReferenceID,
		PaymentStatus: momo.Status(out.PaymentStatus),
		Amount:        out.Amount,
		Currency:      out.Currency,
		Reason:        out.Reason,
	}, nil
}
