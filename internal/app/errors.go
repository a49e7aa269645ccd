package app

import (
	"errors"
	"fmt"
)

// Codes stables des échecs du pipeline. Ils sont exposés tels quels par l'API.
const (
	CodeValidation = "validation"
	CodeNetwork    = "network"
	CodeExtraction = "extraction"
	CodeAuth       = "auth"
)

// Sentinelles pour errors.Is : errors.Is(err, ErrAuth) est vrai pour toute
// CodedError de code "auth", quel que soit son message.
var (
	ErrValidation = &CodedError{Code: CodeValidation}
	ErrNetwork    = &CodedError{Code: CodeNetwork}
	ErrExtraction = &CodedError{Code: CodeExtraction}
	ErrAuth       = &CodedError{Code: CodeAuth}
)

// CodedError porte un code d'erreur stable en plus du message.
//
// Codes: validation, network, extraction, auth.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		if e.Message == "" {
			return e.Code
		}
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	if !ok || e == nil {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Code == e.Code
}

func validationError(format string, args ...any) error {
	return &CodedError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func extractionError(format string, args ...any) error {
	return &CodedError{Code: CodeExtraction, Message: fmt.Sprintf(format, args...)}
}

func authError(format string, args ...any) error {
	return &CodedError{Code: CodeAuth, Message: fmt.Sprintf(format, args...)}
}

func networkError(err error, format string, args ...any) error {
	return &CodedError{Code: CodeNetwork, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrorCode renvoie le code de la première CodedError de la chaîne, ou "".
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
