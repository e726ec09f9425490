package mcpserver

import (
	"fmt"

	"github.com/corpusvault/corpusvault/internal/errkind"
)

// Standard JSON-RPC error codes, plus a reserved range for corpusvault's
// own error kinds.
const (
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeStoreUnavail   = -32001
	ErrCodeTimeout        = -32002
	ErrCodeExternalModule = -32003
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts a corpusvault error into an MCPError, keyed off its
// errkind.Kind where the error was classified by the core contract, and
// falling back to an opaque internal error otherwise.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	kind, ok := errkind.Of(err)
	if !ok {
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}

	switch kind {
	case errkind.Usage:
		return &MCPError{Code: ErrCodeInvalidParams, Message: err.Error()}
	case errkind.BackendUnavailable:
		return &MCPError{Code: ErrCodeStoreUnavail, Message: err.Error()}
	case errkind.Timeout:
		return &MCPError{Code: ErrCodeTimeout, Message: err.Error()}
	case errkind.ExternalModule:
		return &MCPError{Code: ErrCodeExternalModule, Message: err.Error()}
	default: // StoreIO, StoreSchema
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

// NewInvalidParamsError creates an error for invalid tool parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}
