package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError carries the structured error body returned by the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e APIError) Error() string {
	if e.Code == "" {
		e.Code = "UNKNOWN"
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("%s (%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLimitReached reports whether err is the service refusing an action because
// the caller's monthly allowance is exhausted.
func IsLimitReached(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Code == "LIMIT_REACHED"
}

// IsUnavailable reports whether err is a retryable backend availability
// failure rather than a definitive denial.
func IsUnavailable(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := APIError{Status: resp.StatusCode}
	if len(data) == 0 {
		apiErr.Message = resp.Status
		return apiErr
	}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = string(data)
		return apiErr
	}
	apiErr.Code = payload.Code
	apiErr.Message = payload.Message
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
