package httpjson

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	Write(w, status, errorBody{Error: message})
}

// WriteCodedError ajoute un code stable (ex: "auth", "network") pour les clients.
func WriteCodedError(w http.ResponseWriter, status int, code, message string) {
	Write(w, status, errorBody{Error: message, Code: code})
}
