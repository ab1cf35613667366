package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the persistence API.
type Error struct {
	Status  int
	Code    string
	Message string
	Path    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Code, e.Message)
}

// errorBody covers the server's error payloads: the framework default
// {status, error, message, path} and the {code, message} variant.
type errorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{
		Status: resp.StatusCode,
		Code:   strings.ToUpper(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_")),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	switch {
	case body.Code != "":
		apiErr.Code = body.Code
	case body.Error != "":
		apiErr.Code = strings.ToUpper(strings.ReplaceAll(body.Error, " ", "_"))
	}
	apiErr.Message = body.Message
	apiErr.Path = body.Path
	return apiErr
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsForbidden reports whether err is a 401 or 403 from the API.
func IsForbidden(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}
