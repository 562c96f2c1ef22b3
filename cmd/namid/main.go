package main

import (
	"fmt"
	"os"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"

	"github.com/nami-protocol/nami-client/namiClient/constant"
)

func main() {
	// Load environment variables from .env file if available
	_ = godotenv.Load()

	// Kujira bech32 prefixes and coin type
	setupSDKConfig()

	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func setupSDKConfig() {
	config := sdk.GetConfig()

	prefix := constant.Bech32Prefix
	config.SetBech32PrefixForAccount(prefix, prefix+"pub")
	config.SetBech32PrefixForValidator(prefix+"valoper", prefix+"valoperpub")
	config.SetBech32PrefixForConsensusNode(prefix+"valcons", prefix+"valconspub")
	config.SetCoinType(constant.CoinType)

	config.Seal()
}
