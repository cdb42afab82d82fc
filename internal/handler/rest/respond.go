package rest

import (
	"encoding/json"
	"net/http"
)

// statusError is the error body every endpoint returns. Shape matches what
// the web client's error handling expects.
type statusError struct {
	Msg    string `json:"msg"`
	Status bool   `json:"status"`
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, statusError{Msg: msg, Status: false})
}
