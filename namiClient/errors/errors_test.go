package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		InitialDelay:    1 * time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: []ErrorCode{ErrCodeNetwork},
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 1*time.Second, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Contains(t, config.RetryableErrors, ErrCodeNetwork)
	assert.Contains(t, config.RetryableErrors, ErrCodeRPC)
	assert.Contains(t, config.RetryableErrors, ErrCodeTimeout)
}

func TestRetryWithConfig_Success(t *testing.T) {
	tests := []struct {
		name              string
		attemptsToSucceed int
	}{
		{name: "succeeds on first attempt", attemptsToSucceed: 1},
		{name: "succeeds on second attempt", attemptsToSucceed: 2},
		{name: "succeeds on last attempt", attemptsToSucceed: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			fn := func() error {
				attempts++
				if attempts < tt.attemptsToSucceed {
					return NewNetworkError("harpoon-4", "relay unreachable", nil)
				}
				return nil
			}

			err := RetryWithConfig(context.Background(), fn, fastRetryConfig(3))

			assert.NoError(t, err)
			assert.Equal(t, tt.attemptsToSucceed, attempts)
		})
	}
}

func TestRetryWithConfig_NonRetryableError(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return NewValidationError("harpoon-4", "bad input")
	}

	err := RetryWithConfig(context.Background(), fn, fastRetryConfig(3))

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsClientError(err, ErrCodeValidation))
}

func TestRetryWithConfig_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return NewNetworkError("harpoon-4", "relay unreachable", nil)
	}

	err := RetryWithConfig(context.Background(), fn, fastRetryConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var clientErr *ClientError
	require.True(t, As(err, &clientErr))
	assert.Equal(t, ErrCodeNetwork, clientErr.Code)
	assert.Equal(t, "maximum retry attempts exceeded", clientErr.Context["wrapped_message"])
	assert.Equal(t, 3, clientErr.Context["attempts"])
}

func TestRetryWithConfig_ContextCancellation(t *testing.T) {
	config := fastRetryConfig(5)
	config.InitialDelay = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := RetryWithConfig(ctx, func() error {
		return NewNetworkError("", "down", nil)
	}, config)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewRPCError("kaiyo-1", "status failed", cause)

	assert.Equal(t, "[kaiyo-1:RPC] status failed: dial tcp: connection refused", err.Error())
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)

	noNetwork := NewClientError(ErrCodeInternal, "", "boom", nil)
	assert.Equal(t, "[INTERNAL] boom", noNetwork.Error())
	assert.Equal(t, SeverityCritical, noNetwork.Severity)
	assert.False(t, noNetwork.IsRetryable())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout text", err: stderrors.New("context deadline: Timeout"), want: true},
		{name: "rate limited", err: stderrors.New("429 Too Many Requests"), want: true},
		{name: "plain", err: stderrors.New("insufficient funds"), want: false},
		{name: "wallet error", err: NewWalletError("", "rejected", nil), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRegisteredErrors(t *testing.T) {
	wrapped := errorsmod.Wrap(ErrNoWallet, "sign and broadcast")
	assert.ErrorIs(t, wrapped, ErrNoWallet)
	assert.Equal(t, "No Wallet Connected", Message(wrapped))

	assert.Equal(t, "Transaction amount missing", Message(Wrap(ErrAmountMissing, "deposit")))
	assert.Equal(t, "other", Message(stderrors.New("other")))
	assert.Equal(t, "", Message(nil))

	codespace, code, _ := errorsmod.ABCIInfo(ErrReadOnly, false)
	assert.Equal(t, Codespace, codespace)
	assert.Equal(t, uint32(4), code)
}
