package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/transaction"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

// WalletOutput is what `wallet show` prints.
type WalletOutput struct {
	Adapter  wallet.Kind     `yaml:"adapter,omitempty" json:"adapter,omitempty"`
	State    wallet.State    `yaml:"state" json:"state"`
	Account  *wallet.Account `yaml:"account,omitempty" json:"account,omitempty"`
	Network  string          `yaml:"network" json:"network"`
	FeeDenom string          `yaml:"fee_denom" json:"fee_denom"`
}

// BalanceOutput is one balance in base and display units.
type BalanceOutput struct {
	Denom   string `yaml:"denom" json:"denom"`
	Amount  string `yaml:"amount" json:"amount"`
	Display string `yaml:"display" json:"display"`
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Connect a wallet adapter and inspect the account",
	}

	cmd.AddCommand(
		walletConnectCmd(),
		walletDisconnectCmd(),
		walletShowCmd(),
		walletBalancesCmd(),
		walletBalanceCmd(),
		walletFeeDenomCmd(),
	)
	return cmd
}

func walletConnectCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "connect <keyring|pairing|readOnly>",
		Short: "Connect a wallet adapter and remember it",
		Long: `
Connect one of the wallet adapters. The adapter is remembered and
reconnected by every following command.

  keyring   signs with the key named in the config (key_name)
  pairing   prints a pairing URI and QR code for a remote wallet to approve
  readOnly  watches an address without signing (--address)
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := wallet.ParseKind(args[0])
			if err != nil {
				return err
			}

			app, err := newApp(cmd, appOptions{signing: true, connect: kind})
			if err != nil {
				return err
			}
			defer app.Close()

			if kind == wallet.KindReadOnly {
				err = app.wallets.ConnectReadOnly(cmd.Context(), address)
			} else {
				err = app.wallets.Connect(cmd.Context(), kind)
			}
			if err != nil {
				return err
			}

			account, _ := app.wallets.Account()
			fmt.Fprintf(cmd.OutOrStdout(), "Connected %s wallet %s\n", kind, account.Address)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Address for the readOnly adapter")
	return cmd
}

func walletDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet and forget the adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{autoConnect: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.wallets.Disconnect(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wallet disconnected")
			return nil
		},
	}
}

func walletShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the connected adapter and account",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{autoConnect: true})
			if err != nil {
				return err
			}
			defer app.Close()

			out := WalletOutput{
				Adapter:  app.wallets.Kind(),
				State:    app.wallets.State(),
				Network:  app.network.Network(),
				FeeDenom: app.wallets.FeeDenom(),
			}
			if account, ok := app.wallets.Account(); ok {
				out.Account = &account
			}
			return app.print(out)
		},
	}
}

func walletBalancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "List every balance of the connected account",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{autoConnect: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.requireWallet(); err != nil {
				return err
			}
			if err := app.wallets.RefreshBalances(cmd.Context()); err != nil {
				return err
			}
			coins := app.wallets.Balances()
			out := make([]BalanceOutput, 0, len(coins))
			for _, c := range coins {
				out = append(out, BalanceOutput{
					Denom:   c.Denom,
					Amount:  c.Amount.String(),
					Display: transaction.FormatAmount(c.Amount, app.cfg.TokenDecimals, transaction.DisplayPlaces),
				})
			}
			return app.print(out)
		},
	}
}

func walletBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <denom>",
		Short: "Show one balance of the connected account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{autoConnect: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.requireWallet(); err != nil {
				return err
			}
			amount, err := app.wallets.GetBalance(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			return app.print(BalanceOutput{
				Denom:   args[0],
				Amount:  amount.String(),
				Display: transaction.FormatAmount(amount, app.cfg.TokenDecimals, transaction.DisplayPlaces),
			})
		},
	}
}

func walletFeeDenomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fee-denom [denom]",
		Short: "Show or set the denom fees are paid in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				if err := app.wallets.SetFeeDenom(args[0]); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.wallets.FeeDenom())
			return nil
		},
	}
}
