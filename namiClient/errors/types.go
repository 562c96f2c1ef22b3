package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeDatabase indicates database operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeTransaction indicates transaction-related errors
	ErrCodeTransaction ErrorCode = "TRANSACTION"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeRPC indicates RPC-related errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeWallet indicates wallet adapter errors
	ErrCodeWallet ErrorCode = "WALLET"

	// ErrCodeTimeout indicates timeout errors
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// ClientError is an error raised while talking to a network or a wallet.
type ClientError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Network  string                 `json:"network,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewClientError creates a new ClientError
func NewClientError(code ErrorCode, network, message string, cause error) *ClientError {
	return &ClientError{
		Code:     code,
		Message:  message,
		Network:  network,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ClientError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Network != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Network, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *ClientError) WithContext(key string, value interface{}) *ClientError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *ClientError) WithSeverity(severity Severity) *ClientError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *ClientError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout:
		return true
	case ErrCodeDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeDatabase:
		return SeverityHigh
	case ErrCodeTransaction, ErrCodeWallet:
		return SeverityMedium
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewValidationError creates a validation error
func NewValidationError(network, message string) *ClientError {
	return NewClientError(ErrCodeValidation, network, message, nil)
}

// NewNetworkError creates a network error
func NewNetworkError(network, message string, cause error) *ClientError {
	return NewClientError(ErrCodeNetwork, network, message, cause)
}

// NewRPCError creates an RPC error
func NewRPCError(network, message string, cause error) *ClientError {
	return NewClientError(ErrCodeRPC, network, message, cause)
}

// NewWalletError creates a wallet adapter error
func NewWalletError(network, message string, cause error) *ClientError {
	return NewClientError(ErrCodeWallet, network, message, cause)
}

// NewTransactionError creates a transaction error
func NewTransactionError(network, message string, cause error) *ClientError {
	return NewClientError(ErrCodeTransaction, network, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(network, message string) *ClientError {
	return NewClientError(ErrCodeTimeout, network, message, nil)
}
