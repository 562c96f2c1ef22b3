package errors

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups the registered client errors.
const Codespace = "nami"

// Registered errors surfaced to users. Codes are stable and start at 2
// because 1 is reserved by the registry for internal errors.
var (
	ErrNoConnection    = errorsmod.Register(Codespace, 2, "no connection to any rpc endpoint")
	ErrNoWallet        = errorsmod.Register(Codespace, 3, "No Wallet Connected")
	ErrReadOnly        = errorsmod.Register(Codespace, 4, "read-only wallet cannot sign")
	ErrTxFailed        = errorsmod.Register(Codespace, 5, "transaction failed")
	ErrUnknownAdapter  = errorsmod.Register(Codespace, 6, "unknown wallet adapter")
	ErrInvalidAddress  = errorsmod.Register(Codespace, 7, "invalid address")
	ErrPairingRejected = errorsmod.Register(Codespace, 8, "pairing rejected")
	ErrSessionDeleted  = errorsmod.Register(Codespace, 9, "pairing session deleted")
	ErrAccountMissing  = errorsmod.Register(Codespace, 10, "Account not found")
	ErrAmountMissing   = errorsmod.Register(Codespace, 11, "Transaction amount missing")
	ErrDenomMissing    = errorsmod.Register(Codespace, 12, "Transaction denom missing")
	ErrUnknownNetwork  = errorsmod.Register(Codespace, 13, "unknown network")
	ErrKeyNotFound     = errorsmod.Register(Codespace, 14, "key not found in keyring")
)
