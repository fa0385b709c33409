package response

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// JSON writes v as the response body. Bodies are flat, matching what the
// surrounding CRUD system consumes.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a {code, detail} body. Detail strings for credential errors
// must stay generic; operator-facing configuration problems are logged, not
// exposed here.
func Error(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Detail: detail})
}
