package transaction

import (
	"encoding/json"
	"fmt"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Kind is the vault operation.
type Kind string

const (
	Deposit  Kind = "deposit"
	Withdraw Kind = "withdraw"
)

// ParseKind accepts "deposit" or "withdraw".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Deposit, Withdraw:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown transaction kind %q", s)
}

// Action is the key of the vault contract's execute message.
func (k Kind) Action() string {
	if k == Deposit {
		return "Deposit"
	}
	return "Withdraw"
}

// BuildExecuteMsg builds the vault contract call for kind, sending coin
// along as funds.
func BuildExecuteMsg(sender, contract string, kind Kind, coin sdk.Coin) (*wasmtypes.MsgExecuteContract, error) {
	payload, err := json.Marshal(map[string]struct{}{kind.Action(): {}})
	if err != nil {
		return nil, err
	}
	return &wasmtypes.MsgExecuteContract{
		Sender:   sender,
		Contract: contract,
		Msg:      payload,
		Funds:    sdk.NewCoins(coin),
	}, nil
}
