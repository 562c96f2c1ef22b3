package constant

import "os"

// <NodeDir>/                    (e.g., /home/user/.namiclient)
// └── config/
//	└── nami_config.json
// └── databases/
//	└── nami.db
// └── keyring-test/ | keyring-file/

const (
	NodeDir = ".namiclient"

	ConfigSubdir   = "config"
	ConfigFileName = "nami_config.json"

	DatabasesSubdir  = "databases"
	DatabaseFileName = "nami.db"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// Chain identifiers of the supported Kujira networks.
const (
	Mainnet = "kaiyo-1"
	Testnet = "harpoon-4"

	DefaultNetwork = Testnet
)

// Kujira address and key derivation parameters.
const (
	Bech32Prefix = "kujira"
	CoinType     = 118

	DefaultFeeDenom      = "ukuji"
	DefaultTokenDecimals = 6
)

// Preference keys persisted between runs.
const (
	PrefNetwork  = "network"
	PrefRPC      = "rpc"
	PrefWallet   = "wallet"
	PrefAddress  = "address"
	PrefFeeDenom = "feeDenom"
)

// DefaultReadOnlyAddress is used by the read-only adapter when no address is supplied.
const DefaultReadOnlyAddress = "kujira1y3ztnmghrmsa8d8h5ny7h2lvq4w3lre9hvwhcw"
