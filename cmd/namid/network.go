package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/rpcpool"
)

// NetworkStatusOutput is what `network status` prints.
type NetworkStatusOutput struct {
	Network   string               `yaml:"network" json:"network"`
	RPC       string               `yaml:"rpc" json:"rpc"`
	Preferred string               `yaml:"preferred,omitempty" json:"preferred,omitempty"`
	Connected bool                 `yaml:"connected" json:"connected"`
	Block     *network.BlockStatus `yaml:"block,omitempty" json:"block,omitempty"`
}

// RPCsOutput is what `network rpcs` prints.
type RPCsOutput struct {
	Network   string                   `yaml:"network" json:"network"`
	Preferred string                   `yaml:"preferred,omitempty" json:"preferred,omitempty"`
	Endpoints []rpcpool.EndpointRecord `yaml:"endpoints" json:"endpoints"`
}

func networkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Select the Kujira network and RPC endpoint",
	}

	cmd.AddCommand(
		networkStatusCmd(),
		networkRPCsCmd(),
		networkUseCmd(),
		networkSetRPCCmd(),
		networkLockCmd(),
		networkUnlockCmd(),
		networkInfoCmd(),
	)
	return cmd
}

func networkStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the selected network, live RPC and block status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			out := NetworkStatusOutput{
				Network:   app.network.Network(),
				RPC:       app.network.RPC(),
				Preferred: app.network.Preferred(),
				Connected: app.network.Connected(),
			}
			if out.Connected {
				bs, err := app.network.BlockStatus(cmd.Context())
				if err != nil {
					app.log.Warn().Err(err).Msg("failed to fetch block status")
				} else {
					out.Block = &bs
				}
			}
			return app.print(out)
		},
	}
}

func networkRPCsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rpcs",
		Short: "Race every RPC of the network and list their latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.network.WaitRPCs(cmd.Context()); err != nil {
				app.log.Warn().Err(err).Msg("some rpc probes did not finish in time")
			}

			return app.print(RPCsOutput{
				Network:   app.network.Network(),
				Preferred: app.network.Preferred(),
				Endpoints: app.network.RPCs(),
			})
		},
	}
}

func networkUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <chain-id>",
		Short: "Switch to another network (kaiyo-1 or harpoon-4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.network.SetNetwork(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Using %s via %s\n", app.network.Network(), app.network.RPC())
			return nil
		},
	}
}

func networkSetRPCCmd() *cobra.Command {
	var lock bool

	cmd := &cobra.Command{
		Use:   "set-rpc <url>",
		Short: "Connect to a specific RPC endpoint of the network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.network.SetRPC(cmd.Context(), args[0]); err != nil {
				return err
			}
			if lock {
				if err := app.network.Lock(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", app.network.RPC())
			return nil
		},
	}

	cmd.Flags().BoolVar(&lock, "lock", true, "Pin the endpoint for following runs")
	return cmd
}

func networkLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Pin the live RPC endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.network.Lock(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s\n", app.network.Preferred())
			return nil
		},
	}
}

func networkUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove the pinned RPC endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.network.Unlock(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "RPC endpoint unpinned")
			return nil
		},
	}
}

func networkInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the chain registration wallets need for the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			info, err := app.network.ChainInfo()
			if err != nil {
				return err
			}
			return app.print(info)
		},
	}
}
