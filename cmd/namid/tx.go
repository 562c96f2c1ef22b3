package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/transaction"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Deposit into or withdraw from the NAMI vault",
	}

	cmd.AddCommand(
		vaultTxCmd(transaction.Deposit),
		vaultTxCmd(transaction.Withdraw),
		txHistoryCmd(),
	)
	return cmd
}

func vaultTxCmd(kind transaction.Kind) *cobra.Command {
	var denom string
	var useMax bool

	cmd := &cobra.Command{
		Use:   string(kind) + " [amount]",
		Short: fmt.Sprintf("%s tokens to the vault contract", kind.Action()),
		Long: fmt.Sprintf(`
Sign and broadcast a %s to the vault contract of the selected network
with the connected wallet. The amount is in display units, e.g. 12.5.
Without --denom the first enabled token for %s is used.
`, kind, kind),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{signing: true, autoConnect: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if denom == "" {
				denom = app.flow.DefaultDenom(kind)
			}

			var amount string
			switch {
			case len(args) == 1:
				amount = args[0]
			case useMax:
				if _, err := app.wallets.GetBalance(cmd.Context(), denom, true); err != nil {
					return err
				}
				amount = app.flow.MaxAmount(denom)
			}

			res, err := app.flow.Submit(cmd.Context(), kind, amount, denom)
			if err != nil && res.State != transaction.StateFailure {
				return err
			}
			if printErr := app.print(res); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&denom, "denom", "", "Token denom")
	cmd.Flags().BoolVar(&useMax, "max", false, "Use the whole balance of the denom")
	return cmd
}

func txHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deposits and withdrawals on the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.db.TxHistory(app.network.Network(), limit)
			if err != nil {
				return err
			}
			out := make([]TxRecordOutput, 0, len(records))
			for _, r := range records {
				out = append(out, TxRecordOutput{
					Time:        r.CreatedAt,
					Kind:        r.Kind,
					Status:      r.Status,
					TxHash:      r.TxHash,
					Denom:       r.Denom,
					Amount:      r.Amount,
					Height:      r.Height,
					ExplorerURL: app.network.ExplorerTxURL(r.TxHash),
					Log:         r.RawLog,
				})
			}
			return app.print(out)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records, 0 for all")
	return cmd
}
