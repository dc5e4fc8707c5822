package response

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope every REST handler writes.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable code next to the human message so
// clients can branch without parsing message text.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, APIResponse{Status: "success", Data: data})
}

// Error writes an error envelope with a code derived from the status.
func Error(w http.ResponseWriter, status int, msg string) {
	ErrorCode(w, status, defaultCode(status), msg)
}

// ErrorCode writes an error envelope with an explicit code.
func ErrorCode(w http.ResponseWriter, status int, code, msg string) {
	write(w, status, APIResponse{Status: "error", Error: &ErrorBody{Code: code, Message: msg}})
}

func defaultCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}

func write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
