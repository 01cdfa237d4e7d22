package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/cartsync/pkg/errors"
)

// errorBody accepts both error shapes the cart backend emits:
// {"error":{"code","message"}} and {"message":"..."}.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func parseErrorBody(body []byte) (code, message string, ok bool) {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return "", "", false
	}
	if eb.Error != nil {
		return eb.Error.Code, eb.Error.Message, true
	}
	return "", eb.Message, eb.Message != ""
}

// ParseResponseError turns a non-2xx response into an error. It consumes
// and closes the body.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}
	return ErrorFromBody(resp.StatusCode, body, service)
}

// ErrorFromBody maps a backend status and error body onto an AppError when
// the status has a matching kind. Unrecognised 5xx replies stay plain errors.
func ErrorFromBody(status int, body []byte, service string) error {
	code, message, ok := parseErrorBody(body)
	if !ok {
		message = string(bytes.TrimSpace(body))
	}
	qualified := service + ": " + message

	switch status {
	case http.StatusNotFound:
		nf := apperrors.NotFound(service, "requested")
		if message != "" {
			nf.Message = qualified
		}
		return nf
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case http.StatusConflict:
		return apperrors.Conflict(qualified)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Unauthorized(qualified)
	case http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	}

	if !ok {
		return fmt.Errorf("%s returned status %d: %s", service, status, message)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%s server error (%d/%s): %s", service, status, code, message)
	}
	if code == "" {
		code = http.StatusText(status)
	}
	return &apperrors.AppError{Code: code, Message: qualified, Status: status}
}
