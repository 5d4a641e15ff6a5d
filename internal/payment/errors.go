package payment

import (
	"errors"
	"net/http"

	"github.com/agrilink/agrilink-gobackend/internal/momo"
)

// ValidationError marks caller input that fails a local precondition. It is
// never retried and maps to a 400 at the HTTP boundary.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// HTTPStatus maps an orchestrator error to the status code the API should
// respond with: 400 for validation failures, the provider's status when known,
// 500 otherwise.
func HTTPStatus(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var pe *momo.ProviderError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return pe.StatusCode
	}
	return http.StatusInternalServerError
}
