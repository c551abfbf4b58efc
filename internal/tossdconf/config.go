// Package tossdconf loads tossd's configuration from flags and the
// environment, following the jessevdk/go-flags idiom dcrlnd itself uses
// for its own config struct.
package tossdconf

import (
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
	"golang.org/x/xerrors"
)

// Network selects which messaging network set and stablecoin deployment
// tossd talks to.
type Network string

const (
	NetworkDev        Network = "dev"
	NetworkProduction Network = "production"
	NetworkLocal      Network = "local"
)

// ChainID selects the EVM L2 tossd watches.
type ChainID string

const (
	ChainBaseSepolia ChainID = "base-sepolia"
	ChainBaseMainnet ChainID = "base-mainnet"
)

// stablecoinAddresses maps each supported chain id to the stablecoin
// contract tossd watches for Transfer events.
var stablecoinAddresses = map[ChainID]string{
	ChainBaseSepolia: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	ChainBaseMainnet: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

var chainRPCIDs = map[ChainID]uint64{
	ChainBaseSepolia: 84532,
	ChainBaseMainnet: 8453,
}

// Config is tossd's full runtime configuration, populated from the
// environment and command-line flags.
type Config struct {
	DataDir string `long:"datadir" env:"TOSSD_DATADIR" description:"Directory holding the on-disk JSON store" default:".data"`
	LogDir  string `long:"logdir" env:"TOSSD_LOGDIR" description:"Directory holding tossd.log" default:".log"`
	DebugLevel string `long:"debuglevel" env:"TOSSD_DEBUGLEVEL" description:"Logging level for all subsystems" default:"info"`

	WalletKey string `long:"walletkey" env:"TOSSD_WALLET_KEY" description:"Hex-encoded signing key for the agent's own messaging identity"`

	DBEncryptionKey string `long:"dbencryptionkey" env:"TOSSD_DB_ENCRYPTION_KEY" description:"32-byte hex key for the secure-messaging store"`

	NetworkEnv Network `long:"network" env:"TOSSD_NETWORK" description:"Messaging network set" choice:"dev" choice:"production" choice:"local" default:"dev"`
	ChainIDEnv ChainID `long:"chainid" env:"TOSSD_CHAIN_ID" description:"EVM L2 chain" choice:"base-sepolia" choice:"base-mainnet" default:"base-sepolia"`

	ChainRPCURL string `long:"chainrpcurl" env:"TOSSD_CHAIN_RPC_URL" description:"EVM JSON-RPC endpoint"`

	WalletProviderURL    string `long:"walletproviderurl" env:"TOSSD_WALLET_PROVIDER_URL" description:"Base URL of the custodial wallet service"`
	WalletProviderKeyID  string `long:"walletproviderkeyid" env:"TOSSD_WALLET_PROVIDER_KEY_ID" description:"Wallet provider credential key id"`
	WalletProviderSecret string `long:"walletprovidersecret" env:"TOSSD_WALLET_PROVIDER_SECRET" description:"Wallet provider credential secret"`

	LLMProviderURL string `long:"llmproviderurl" env:"TOSSD_LLM_PROVIDER_URL" description:"Base URL of the toss-prompt parser service" default:"https://api.openai.com/v1/chat/completions"`
	LLMProviderKey string `long:"llmproviderkey" env:"TOSSD_LLM_PROVIDER_KEY" description:"Credential for the toss-prompt parser"`

	CommandPrefix   string   `long:"commandprefix" env:"TOSSD_COMMAND_PREFIX" description:"Prefix text commands must begin with" default:"@toss"`
	AllowedCommands []string `long:"allowedcommand" description:"Whitelisted command name (may be repeated)"`

	WelcomeMessageDM    string `long:"welcomemessagedm" description:"Optional message sent once per DM on first interaction"`
	WelcomeMessageGroup string `long:"welcomemessagegroup" description:"Optional message sent once per group on first interaction"`

	RPCListen     string `long:"rpclisten" env:"TOSSD_RPC_LISTEN" description:"Address the admin RPC surface listens on" default:"localhost:8443"`
	MetricsListen string `long:"metricslisten" env:"TOSSD_METRICS_LISTEN" description:"Address the Prometheus metrics endpoint listens on" default:"localhost:8444"`

	MongoURI string `long:"mongouri" env:"TOSSD_MONGO_URI" description:"When set, use MongoDB instead of the JSON file store"`

	WatcherPollInterval int `long:"watcherpollinterval" description:"Chain watcher poll interval, in seconds" default:"30"`
}

// StablecoinAddress returns the stablecoin contract address for c's chain.
func (c *Config) StablecoinAddress() string {
	return stablecoinAddresses[c.ChainIDEnv]
}

// ChainRPCID returns the numeric chain id tossd's configured chain uses.
func (c *Config) ChainRPCID() uint64 {
	return chainRPCIDs[c.ChainIDEnv]
}

// EnsureDirs creates the data and log directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return xerrors.Errorf("tossdconf: could not create %s: %w", dir, err)
		}
	}
	return nil
}

// LogFile returns the path tossd's rotating logger should write to.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, "tossd.log")
}

// Load parses configuration from the environment and command-line flags,
// validating the chain id and requiring the chain RPC and wallet provider
// URLs.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if _, ok := stablecoinAddresses[cfg.ChainIDEnv]; !ok {
		return nil, xerrors.Errorf("tossdconf: unrecognized chain id %q", cfg.ChainIDEnv)
	}
	if cfg.ChainRPCURL == "" {
		return nil, xerrors.New("tossdconf: chainrpcurl is required")
	}
	if cfg.WalletProviderURL == "" {
		return nil, xerrors.New("tossdconf: walletproviderurl is required")
	}

	return cfg, nil
}
