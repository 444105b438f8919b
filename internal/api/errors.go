package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

func newError(method, path string, status int, body []byte) *Error {
	return &Error{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Detail:     parseDetail(body),
	}
}

// parseDetail pulls a readable message out of the API's "detail" field,
// which is either a string, an {error, error_description} object or a
// list of validation errors.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var obj struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		EntityName  string `json:"entity_name"`
		EntityField string `json:"entity_field"`
		EntityValue any    `json:"entity_value"`
	}
	if err := json.Unmarshal(envelope.Detail, &obj); err == nil {
		switch {
		case obj.Description != "":
			return obj.Description
		case obj.Error != "":
			return obj.Error
		case obj.EntityName != "":
			return fmt.Sprintf("%s with %s %v", obj.EntityName, obj.EntityField, obj.EntityValue)
		}
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &list); err == nil && len(list) > 0 {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			msgs = append(msgs, item.Msg)
		}
		return strings.Join(msgs, "; ")
	}

	return string(envelope.Detail)
}

func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
