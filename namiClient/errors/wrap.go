package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapClientError wraps an error as a ClientError if it isn't already one
func WrapClientError(err error, code ErrorCode, network, message string) *ClientError {
	if err == nil {
		return nil
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		clientErr.WithContext("wrapped_message", message)
		if network != "" && clientErr.Network == "" {
			clientErr.Network = network
		}
		return clientErr
	}

	return NewClientError(code, network, message, err)
}

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsClientError checks if an error is a ClientError with specific code
func IsClientError(err error, code ErrorCode) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Code == code
	}
	return false
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"too many requests",
	"rate limit",
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Message returns the text shown to a user for err: the registered
// description when err wraps one of the sentinel errors, err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range []error{
		ErrNoWallet, ErrAccountMissing, ErrAmountMissing, ErrDenomMissing,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
