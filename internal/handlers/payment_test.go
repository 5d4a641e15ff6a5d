package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/agrilink/agrilink-gobackend/internal/momo"
	"github.com/agrilink/agrilink-gobackend/internal/payment"
)

type fakeCollectionClient struct {
	submitFn  func(ctx context.Context, payer string, amount float64, externalID string) (string, error)
	statusFn  func(ctx context.Context, referenceID string) (*momo.CollectionStatus, error)
	submitted int
}

func (f *fakeCollectionClient) SubmitCollection(ctx context.Context, payer string, amount float64, externalID string) (string, error) {
	f.submitted++
	return f.submitFn(ctx, payer, amount, externalID)
}

func (f *fakeCollectionClient) CollectionStatus(ctx context.Context, referenceID string) (*momo.CollectionStatus, error) {
	return f.statusFn(ctx, referenceID)
}

func newPaymentRouter(client payment.CollectionClient, opts ...payment.Option) *mux.Router {
	orchestrator := payment.NewOrchestrator(client, opts...)
	handler := NewPaymentHandler(orchestrator)

	router := mux.NewRouter()
	router.HandleFunc("/api/payment/initiate", handler.InitiatePayment).Methods("POST")
	router.HandleFunc("/api/payment/status/{referenceId}", handler.GetPaymentStatus).Methods("GET")
	router.HandleFunc("/api/payment/callback", handler.PaymentCallback).Methods("POST")
	return router
}

func TestInitiateMissingPhoneNumberIs400(t *testing.T) {
	client := &fakeCollectionClient{
		submitFn: func(ctx context.Context, payer string, amount float64, externalID string) (string, error) {
			return "ref-1", nil
		},
	}
	router := newPaymentRouter(client)

	body := strings.NewReader(`{"amount":5000,"orderIds":["o1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payment/initiate", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
	require.Contains(t, resp["message"], "phoneNumber")

	// The provider was never contacted.
	require.Equal(t, 0, client.submitted)
}

func TestInitiateSuccessReturnsReferences(t *testing.T) {
	client := &fakeCollectionClient{
		submitFn: func(ctx context.Context, payer string, amount float64, externalID string) (string, error) {
			return "ref-42", nil
		},
	}
	router := newPaymentRouter(client)

	body := strings.NewReader(`{"phoneNumber":"46733123453","amount":5000,"orderIds":["o1","o2"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payment/initiate", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool     `json:"success"`
		ReferenceID string   `json:"referenceId"`
		ExternalID  string   `json:"externalId"`
		OrderIDs    []string `json:"orderIds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "ref-42", resp.ReferenceID)
	require.NotEmpty(t, resp.ExternalID)
	require.Equal(t, []string{"o1", "o2"}, resp.OrderIDs)
}

func TestInitiateProviderErrorUsesProviderStatus(t *testing.T) {
	client := &fakeCollectionClient{
		submitFn: func(ctx context.Context, payer string, amount float64, externalID string) (string, error) {
			return "", &momo.ProviderError{StatusCode: http.StatusConflict, Message: "request to pay rejected"}
		},
	}
	router := newPaymentRouter(client)

	body := strings.NewReader(`{"phoneNumber":"46733123453","amount":5000,"orderIds":["o1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payment/initiate", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetPaymentStatusHappyPath(t *testing.T) {
	client := &fakeCollectionClient{
		statusFn: func(ctx context.Context, referenceID string) (*momo.CollectionStatus, error) {
			return &momo.CollectionStatus{
				ReferenceID: referenceID,
				Status:      momo.StatusSuccessful,
				Amount:      "5000",
				Currency:    "EUR",
			}, nil
		},
	}
	router := newPaymentRouter(client)

	req := httptest.NewRequest(http.MethodGet, "/api/payment/status/ref-42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success       bool   `json:"success"`
		ReferenceID   string `json:"referenceId"`
		PaymentStatus string `json:"paymentStatus"`
		Amount        string `json:"amount"`
		Currency      string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "ref-42", resp.ReferenceID)
	require.Equal(t, "SUCCESSFUL", resp.PaymentStatus)
	require.Equal(t, "5000", resp.Amount)
	require.Equal(t, "EUR", resp.Currency)
}

func TestCallbackAlwaysAcks(t *testing.T) {
	client := &fakeCollectionClient{}
	router := newPaymentRouter(client)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/callback", strings.NewReader(`{"referenceId":"ref-1","status":"SUCCESSFUL"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])

	// Even a garbage body gets acknowledged.
	req = httptest.NewRequest(http.MethodPost, "/api/payment/callback", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
