package network

import (
	"context"
	"strings"

	errorsmod "cosmossdk.io/errors"
	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/cosmos/cosmos-sdk/client"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/query"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
)

// balancePageLimit matches the page size used when listing every balance.
const balancePageLimit = 10000

// Querier answers the chain queries the wallet and transaction flow need.
type Querier interface {
	Balance(ctx context.Context, address, denom string) (sdk.Coin, error)
	AllBalances(ctx context.Context, address string) (sdk.Coins, error)
	Account(ctx context.Context, address string) (sdk.AccountI, error)
	Simulate(ctx context.Context, txBytes []byte) (uint64, error)
	SmartContractState(ctx context.Context, contract string, queryMsg []byte) ([]byte, error)
}

// chainQuerier routes gRPC queries through a client.Context, either as ABCI
// queries over the RPC connection or over a dedicated gRPC connection.
type chainQuerier struct {
	clientCtx client.Context
}

var _ Querier = (*chainQuerier)(nil)

func newQuerier(clientCtx client.Context) *chainQuerier {
	return &chainQuerier{clientCtx: clientCtx}
}

func (q *chainQuerier) Balance(ctx context.Context, address, denom string) (sdk.Coin, error) {
	resp, err := banktypes.NewQueryClient(q.clientCtx).Balance(ctx, &banktypes.QueryBalanceRequest{
		Address: address,
		Denom:   denom,
	})
	if err != nil {
		return sdk.Coin{}, errorsmod.Wrapf(err, "balance of %s in %s", address, denom)
	}
	if resp.Balance == nil {
		return sdk.NewInt64Coin(denom, 0), nil
	}
	return *resp.Balance, nil
}

func (q *chainQuerier) AllBalances(ctx context.Context, address string) (sdk.Coins, error) {
	resp, err := banktypes.NewQueryClient(q.clientCtx).AllBalances(ctx, &banktypes.QueryAllBalancesRequest{
		Address:    address,
		Pagination: &query.PageRequest{Limit: balancePageLimit},
	})
	if err != nil {
		return nil, errorsmod.Wrapf(err, "balances of %s", address)
	}
	return resp.Balances, nil
}

// Account returns ErrAccountMissing when the chain has never seen address.
func (q *chainQuerier) Account(ctx context.Context, address string) (sdk.AccountI, error) {
	resp, err := authtypes.NewQueryClient(q.clientCtx).Account(ctx, &authtypes.QueryAccountRequest{Address: address})
	if err != nil {
		if isNotFound(err) {
			return nil, errorsmod.Wrap(nerrors.ErrAccountMissing, address)
		}
		return nil, errorsmod.Wrapf(err, "account %s", address)
	}

	var acc sdk.AccountI
	if err := q.clientCtx.InterfaceRegistry.UnpackAny(resp.Account, &acc); err != nil {
		return nil, errorsmod.Wrapf(err, "failed to unpack account %s", address)
	}
	return acc, nil
}

// Simulate returns the gas used by a dry run of txBytes.
func (q *chainQuerier) Simulate(ctx context.Context, txBytes []byte) (uint64, error) {
	resp, err := txtypes.NewServiceClient(q.clientCtx).Simulate(ctx, &txtypes.SimulateRequest{TxBytes: txBytes})
	if err != nil {
		return 0, errorsmod.Wrap(err, "simulation failed")
	}
	if resp.GasInfo == nil {
		return 0, nil
	}
	return resp.GasInfo.GasUsed, nil
}

func (q *chainQuerier) SmartContractState(ctx context.Context, contract string, queryMsg []byte) ([]byte, error) {
	resp, err := wasmtypes.NewQueryClient(q.clientCtx).SmartContractState(ctx, &wasmtypes.QuerySmartContractStateRequest{
		Address:   contract,
		QueryData: queryMsg,
	})
	if err != nil {
		return nil, errorsmod.Wrapf(err, "smart query on %s", contract)
	}
	return resp.Data, nil
}

func isNotFound(err error) bool {
	if s, ok := status.FromError(err); ok && s.Code() == codes.NotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

var authAccountRetriever = authtypes.AccountRetriever{}
