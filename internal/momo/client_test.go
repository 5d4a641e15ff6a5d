package momo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, tokenHits, submitHits *atomic.Int64, statusBody string, statusCode int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1_0/apiuser":
			if r.Header.Get("X-Reference-Id") == "" || r.Header.Get("Ocp-Apim-Subscription-Key") == "" {
				http.Error(w, "missing subject headers", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/apikey"):
			json.NewEncoder(w).Encode(map[string]string{"apiKey": "secret-key"})
		case r.Method == http.MethodPost && r.URL.Path == "/collection/token/":
			if tokenHits != nil {
				tokenHits.Add(1)
			}
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
				http.Error(w, "missing basic auth", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
		case r.Method == http.MethodPost && r.URL.Path == "/collection/v1_0/requesttopay":
			if submitHits != nil {
				submitHits.Add(1)
			}
			if r.Header.Get("X-Reference-Id") == "" ||
				r.Header.Get("X-Target-Environment") != "sandbox" ||
				r.Header.Get("Authorization") != "Bearer tok-1" {
				http.Error(w, "missing request-to-pay headers", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/collection/v1_0/requesttopay/"):
			w.WriteHeader(statusCode)
			w.Write([]byte(statusBody))
		default:
			http.Error(w, "unexpected request "+r.URL.Path, http.StatusTeapot)
		}
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:         baseURL,
		SubscriptionKey: "sub-key",
	}, nil)
	require.NoError(t, err)
	return client
}

func TestAccessTokenCachedAndCoalesced(t *testing.T) {
	var tokenHits atomic.Int64
	srv := newTestServer(t, &tokenHits, nil, "", http.StatusOK)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	const callers = 8
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := client.AccessToken(context.Background())
			if err == nil && tok != "tok-1" {
				err = errors.New("unexpected token " + tok)
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	for err := range results {
		require.NoError(t, err)
	}

	// A later call inside the validity window stays on the cache too.
	tok, err := client.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	require.Equal(t, int64(1), tokenHits.Load())
}

func TestSubmitCollectionGeneratesDistinctReferences(t *testing.T) {
	var submitHits atomic.Int64
	srv := newTestServer(t, nil, &submitHits, "", http.StatusOK)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ref, err := client.SubmitCollection(context.Background(), "46733123453", 5000, "")
		require.NoError(t, err)
		require.NotEmpty(t, ref)
		require.False(t, seen[ref], "reference %s reused", ref)
		seen[ref] = true
	}
	require.Equal(t, int64(5), submitHits.Load())
}

func TestSubmitCollectionPreservesProviderErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1_0/apiuser":
			w.WriteHeader(http.StatusCreated)
		case strings.HasSuffix(r.URL.Path, "/apikey"):
			json.NewEncoder(w).Encode(map[string]string{"apiKey": "secret-key"})
		case r.URL.Path == "/collection/token/":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
		default:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":"RESOURCE_ALREADY_EXIST","message":"Duplicated reference id"}`))
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.SubmitCollection(context.Background(), "46733123453", 5000, "")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusConflict, pe.StatusCode)
	require.Contains(t, pe.Details, "RESOURCE_ALREADY_EXIST")
}

func TestCollectionStatusParsesReasonObject(t *testing.T) {
	body := `{"amount":"5000","currency":"EUR","externalId":"ext-1",` +
		`"payer":{"partyIdType":"MSISDN","partyId":"46733123453"},` +
		`"status":"FAILED","reason":{"code":"PAYER_NOT_FOUND","message":"Payee does not exist"}}`
	srv := newTestServer(t, nil, nil, body, http.StatusOK)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	st, err := client.CollectionStatus(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, "5000", st.Amount)
	require.Equal(t, "46733123453", st.Payer)
	require.Contains(t, st.Reason, "PAYER_NOT_FOUND")
}

func TestCollectionStatusParsesReasonString(t *testing.T) {
	body := `{"amount":"10","currency":"EUR","payer":{"partyIdType":"MSISDN","partyId":"1"},` +
		`"status":"REJECTED","reason":"payer declined"}`
	srv := newTestServer(t, nil, nil, body, http.StatusOK)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	st, err := client.CollectionStatus(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, st.Status)
	require.Equal(t, "payer declined", st.Reason)
}

func TestCollectionStatusProviderErrorPreserved(t *testing.T) {
	srv := newTestServer(t, nil, nil, `{"message":"Reference id not found"}`, http.StatusNotFound)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.CollectionStatus(context.Background(), "missing-ref")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusNotFound, pe.StatusCode)
	require.Contains(t, pe.Details, "Reference id not found")
}

func TestTransportErrorMapsToProviderError(t *testing.T) {
	srv := newTestServer(t, nil, nil, "", http.StatusOK)
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)

	_, err := client.CollectionStatus(context.Background(), "ref-1")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusInternalServerError, pe.StatusCode)
}
