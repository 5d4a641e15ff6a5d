package momo

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the settlement status reported by the collection API.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
	StatusRejected   Status = "REJECTED"
	StatusTimeout    Status = "TIMEOUT"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusRejected, StatusTimeout:
		return true
	}
	return false
}

// CollectionStatus is the outcome of a status query for a submitted collection.
type CollectionStatus struct {
	ReferenceID string
	Status      Status
	Amount      string
	Currency    string
	Payer       string
	Reason      string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type apiKeyResponse struct {
	APIKey string `json:"apiKey"`
}

type requestToPayBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPayResult struct {
	Amount     string       `json:"amount"`
	Currency   string       `json:"currency"`
	ExternalID string       `json:"externalId"`
	Payer      party        `json:"payer"`
	Status     Status       `json:"status"`
	Reason     statusReason `json:"reason"`
}

// statusReason tolerates the provider returning either a bare string or a
// {code, message} object in the reason field.
type statusReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *statusReason) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.Message = s
		return nil
	}
	type alias statusReason
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = statusReason(a)
	return nil
}

func (r statusReason) String() string {
	if r.Message != "" && r.Code != "" {
		return fmt.Sprintf("%s: %s", r.Code, r.Message)
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Code
}
