package main

import (
	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/constant"
)

var (
	homeFlag   string
	outputFlag string
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "namid",
		Short:         "NAMI vault client for the Kujira chain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", constant.DefaultNodeHome, "Client home directory")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", OutputFormatYAML, "Output format (yaml|json)")

	InitRootCmd(rootCmd)

	return rootCmd
}
