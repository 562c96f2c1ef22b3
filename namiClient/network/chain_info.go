package network

import (
	"fmt"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
)

// Gas price steps are derived from the configured minimum price.
const (
	gasStepAverage = 1.5
	gasStepHigh    = 2.0
)

// NewChainInfo builds the wallet-facing description of a configured network.
func NewChainInfo(chainID string, n config.NetworkConfig, cfg config.Config, rpc string) (ChainInfo, error) {
	prefix := n.Bech32Prefix
	if prefix == "" {
		prefix = constant.Bech32Prefix
	}
	if rpc == "" && len(n.RPCURLs) > 0 {
		rpc = n.RPCURLs[0]
	}

	native := Currency{
		CoinDenom:        displayDenom(constant.DefaultFeeDenom),
		CoinMinimalDenom: constant.DefaultFeeDenom,
		CoinDecimals:     constant.DefaultTokenDecimals,
	}

	info := ChainInfo{
		ChainID:   chainID,
		ChainName: n.ChainName,
		RPC:       rpc,
		Bip44:     Bip44{CoinType: constant.CoinType},
		Bech32Config: Bech32Config{
			Bech32PrefixAccAddr:  prefix,
			Bech32PrefixAccPub:   prefix + "pub",
			Bech32PrefixValAddr:  prefix + "valoper",
			Bech32PrefixValPub:   prefix + "valoperpub",
			Bech32PrefixConsAddr: prefix + "valcons",
			Bech32PrefixConsPub:  prefix + "valconspub",
		},
		Currencies:    []Currency{native},
		StakeCurrency: native,
	}

	seen := map[string]bool{native.CoinMinimalDenom: true}
	for _, d := range append(append([]config.DenomOption{}, cfg.DepositDenoms...), cfg.WithdrawDenoms...) {
		if seen[d.Denom] {
			continue
		}
		seen[d.Denom] = true
		info.Currencies = append(info.Currencies, Currency{
			CoinDenom:        d.Name,
			CoinMinimalDenom: d.Denom,
			CoinDecimals:     cfg.TokenDecimals,
		})
	}

	if n.GasPrices != "" {
		prices, err := sdk.ParseDecCoins(n.GasPrices)
		if err != nil {
			return ChainInfo{}, fmt.Errorf("invalid gas prices for %s: %w", chainID, err)
		}
		for _, p := range prices {
			low, err := p.Amount.Float64()
			if err != nil {
				return ChainInfo{}, fmt.Errorf("invalid gas price %s: %w", p, err)
			}
			cur := Currency{CoinDenom: displayDenom(p.Denom), CoinMinimalDenom: p.Denom, CoinDecimals: cfg.TokenDecimals}
			for _, c := range info.Currencies {
				if c.CoinMinimalDenom == p.Denom {
					cur = c
				}
			}
			info.FeeCurrencies = append(info.FeeCurrencies, FeeCurrency{
				Currency:     cur,
				GasPriceStep: GasPriceStep{Low: low, Average: low * gasStepAverage, High: low * gasStepHigh},
			})
		}
	}

	return info, nil
}

// displayDenom turns a micro denom such as ukuji into KUJI.
func displayDenom(denom string) string {
	if i := strings.LastIndex(denom, "/"); i >= 0 {
		denom = denom[i+1:]
	}
	return strings.ToUpper(strings.TrimPrefix(denom, "u"))
}
