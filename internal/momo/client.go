package momo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL      = "https://sandbox.momodeveloper.mtn.com"
	defaultTargetEnv    = "sandbox"
	defaultCurrency     = "EUR"
	placeholderCallback = "https://example.com/api/payment/callback"

	// Tokens are treated as expired one minute early so a token that is
	// about to lapse is never handed to an outbound request.
	tokenExpiryBuffer = time.Minute
)

// ProviderError surfaces a non-successful response from the collection API.
// Details carries the provider's error body when one was returned.
type ProviderError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("momo api error: status=%d message=%s details=%s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("momo api error: status=%d message=%s", e.StatusCode, e.Message)
}

// credential is the cached provider credential. It is only ever replaced
// wholesale under the client's mutex, never mutated field by field.
type credential struct {
	subjectID   string
	apiKey      string
	accessToken string
	tokenExpiry time.Time
}

// Config holds the collection API settings, normally read from MOMO_*
// environment variables.
type Config struct {
	BaseURL           string
	SubscriptionKey   string
	TargetEnvironment string
	Currency          string
	CallbackURL       string
}

// Client talks to the mobile-money collection API and owns the credential
// lifecycle (subject registration, API key issuance, token exchange).
type Client struct {
	httpClient      *http.Client
	baseURL         string
	subscriptionKey string
	targetEnv       string
	currency        string
	callbackURL     string

	// credMu is held across the whole credential refresh so concurrent
	// callers coalesce into a single exchange against the provider.
	credMu sync.Mutex
	cred   credential
}

// NewClient builds a client from an explicit config.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.SubscriptionKey) == "" {
		return nil, errors.New("subscription key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	targetEnv := strings.TrimSpace(cfg.TargetEnvironment)
	if targetEnv == "" {
		targetEnv = defaultTargetEnv
	}

	currency := strings.TrimSpace(cfg.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	callbackURL := strings.TrimSpace(cfg.CallbackURL)
	if callbackURL == "" {
		callbackURL = placeholderCallback
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient:      httpClient,
		baseURL:         baseURL,
		subscriptionKey: cfg.SubscriptionKey,
		targetEnv:       targetEnv,
		currency:        currency,
		callbackURL:     callbackURL,
	}, nil
}

// NewClientFromEnv constructs a client using MOMO_* environment variables.
func NewClientFromEnv(httpClient *http.Client) (*Client, error) {
	key := strings.TrimSpace(os.Getenv("MOMO_SUBSCRIPTION_KEY"))
	if key == "" {
		return nil, errors.New("MOMO_SUBSCRIPTION_KEY must be set")
	}
	return NewClient(Config{
		BaseURL:           os.Getenv("MOMO_BASE_URL"),
		SubscriptionKey:   key,
		TargetEnvironment: os.Getenv("MOMO_TARGET_ENVIRONMENT"),
		Currency:          os.Getenv("MOMO_CURRENCY"),
		CallbackURL:       os.Getenv("MOMO_CALLBACK_URL"),
	}, httpClient)
}

// Currency returns the settlement currency collections are submitted in.
func (c *Client) Currency() string { return c.currency }

// EnsureSubject registers a collection-API subject if none is cached and
// returns the subject identifier.
func (c *Client) EnsureSubject(ctx context.Context) (string, error) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	return c.subjectLocked(ctx)
}

// EnsureAPIKey makes sure a subject and its API key exist, returning the key.
func (c *Client) EnsureAPIKey(ctx context.Context) (string, error) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	return c.apiKeyLocked(ctx)
}

func (c *Client) subjectLocked(ctx context.Context) (string, error) {
	if c.cred.subjectID != "" {
		return c.cred.subjectID, nil
	}

	subjectID := uuid.NewString()
	body := map[string]string{"providerCallbackHost": c.callbackURL}

	headers := map[string]string{"X-Reference-Id": subjectID}
	status, respBody, err := c.doRequest(ctx, http.MethodPost, "/v1_0/apiuser", "", headers, body)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", &ProviderError{StatusCode: status, Message: "subject registration rejected", Details: string(respBody)}
	}

	c.cred.subjectID = subjectID
	return subjectID, nil
}

func (c *Client) apiKeyLocked(ctx context.Context) (string, error) {
	if c.cred.apiKey != "" {
		return c.cred.apiKey, nil
	}

	subjectID, err := c.subjectLocked(ctx)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/v1_0/apiuser/%s/apikey", subjectID)
	status, respBody, err := c.doRequest(ctx, http.MethodPost, path, "", nil, nil)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", &ProviderError{StatusCode: status, Message: "api key issuance rejected", Details: string(respBody)}
	}

	var key apiKeyResponse
	if err := json.Unmarshal(respBody, &key); err != nil {
		return "", fmt.Errorf("decode apikey response: %w", err)
	}
	if key.APIKey == "" {
		return "", errors.New("apikey response missing key")
	}

	c.cred.apiKey = key.APIKey
	return key.APIKey, nil
}

// AccessToken returns a cached, unexpired access token, performing the
// subject/key/token exchanges as needed. The mutex is held for the duration of
// a refresh, so overlapping callers share one in-flight exchange instead of
// each hitting the token endpoint.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.credMu.Lock()
	defer c.credMu.Unlock()

	if c.cred.accessToken != "" && time.Now().Before(c.cred.tokenExpiry) {
		return c.cred.accessToken, nil
	}

	subjectID, err := c.subjectLocked(ctx)
	if err != nil {
		return "", err
	}
	apiKey, err := c.apiKeyLocked(ctx)
	if err != nil {
		return "", err
	}

	basic := base64.StdEncoding.EncodeToString([]byte(subjectID + ":" + apiKey))
	headers := map[string]string{"Authorization": "Basic " + basic}
	status, respBody, err := c.doRequest(ctx, http.MethodPost, "/collection/token/", "", headers, nil)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", &ProviderError{StatusCode: status, Message: "token exchange rejected", Details: string(respBody)}
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	lifetime := time.Duration(token.ExpiresIn) * time.Second
	buffer := tokenExpiryBuffer
	if lifetime <= buffer {
		buffer = lifetime / 2
	}

	c.cred = credential{
		subjectID:   subjectID,
		apiKey:      apiKey,
		accessToken: token.AccessToken,
		tokenExpiry: time.Now().Add(lifetime - buffer),
	}
	return token.AccessToken, nil
}

// SubmitCollection submits a request-to-pay for the payer and amount, returning
// the generated reference id. The provider acknowledges asynchronously; the
// returned reference is the key for later status queries, never reused.
func (c *Client) SubmitCollection(ctx context.Context, payer string, amount float64, externalID string) (string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	referenceID := uuid.NewString()
	if externalID == "" {
		externalID = referenceID
	}

	body := requestToPayBody{
		Amount:       strconv.FormatFloat(amount, 'f', -1, 64),
		Currency:     c.currency,
		ExternalID:   externalID,
		Payer:        party{PartyIDType: "MSISDN", PartyID: payer},
		PayerMessage: "AgriLink order payment",
		PayeeNote:    "AgriLink marketplace collection",
	}

	headers := map[string]string{
		"X-Reference-Id":       referenceID,
		"X-Target-Environment": c.targetEnv,
		"X-Callback-Url":       c.callbackURL,
	}
	status, respBody, err := c.doRequest(ctx, http.MethodPost, "/collection/v1_0/requesttopay", token, headers, body)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", &ProviderError{StatusCode: status, Message: "request to pay rejected", Details: string(respBody)}
	}

	return referenceID, nil
}

// CollectionStatus fetches the current status of a previously submitted
// collection request.
func (c *Client) CollectionStatus(ctx context.Context, referenceID string) (*CollectionStatus, error) {
	if referenceID == "" {
		return nil, errors.New("referenceID is required")
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/collection/v1_0/requesttopay/%s", referenceID)
	headers := map[string]string{"X-Target-Environment": c.targetEnv}
	status, respBody, err := c.doRequest(ctx, http.MethodGet, path, token, headers, nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, &ProviderError{StatusCode: status, Message: "status fetch rejected", Details: string(respBody)}
	}

	var result requestToPayResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderError{StatusCode: http.StatusInternalServerError, Message: fmt.Sprintf("decode status response: %v", err)}
	}
	if result.Status == "" {
		return nil, &ProviderError{StatusCode: http.StatusInternalServerError, Message: "status response missing status", Details: string(respBody)}
	}

	return &CollectionStatus{
		ReferenceID: referenceID,
		Status:      result.Status,
		Amount:      result.Amount,
		Currency:    result.Currency,
		Payer:       result.Payer.PartyID,
		Reason:      result.Reason.String(),
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, bearer string, headers map[string]string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return 0, nil, err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &ProviderError{StatusCode: http.StatusInternalServerError, Message: fmt.Sprintf("provider unreachable: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &ProviderError{StatusCode: http.StatusInternalServerError, Message: fmt.Sprintf("read provider response: %v", err)}
	}

	return resp.StatusCode, data, nil
}
