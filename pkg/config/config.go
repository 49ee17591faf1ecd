package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-multierror"
	"github.com/primev/withdraw-finalizer/pkg/bridge"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const (
	DefaultL2RPCUrl   = "https://testnet.era.zksync.dev"
	DefaultLogLevel   = "info"
	DefaultRPCTimeout = 30 * time.Second
)

// Config is read once at process start and is not modified afterwards.
type Config struct {
	L1RPCUrl         string                 `yaml:"l1_rpc_url" json:"l1_rpc_url"`
	L2RPCUrl         string                 `yaml:"l2_rpc_url" json:"l2_rpc_url"`
	WalletPrivKey    string                 `yaml:"wallet_priv_key" json:"-"`
	WithdrawTxHash   string                 `yaml:"withdraw_tx_hash" json:"withdraw_tx_hash"`
	WithdrawLogIndex int                    `yaml:"withdraw_log_index" json:"withdraw_log_index"`
	SecondaryChain   bool                   `yaml:"secondary_chain" json:"secondary_chain"`
	Secondary        bridge.SecondaryConfig `yaml:"secondary_chain_contracts" json:"secondary_chain_contracts"`
	GasLimit         uint64                 `yaml:"gas_limit" json:"gas_limit"`
	WaitForInclusion bool                   `yaml:"wait_for_inclusion" json:"wait_for_inclusion"`
	LogLevel         string                 `yaml:"log_level" json:"log_level"`
	RPCTimeout       time.Duration          `yaml:"rpc_timeout" json:"rpc_timeout"`
	DatadogAPIKey    string                 `yaml:"dd_api_key" json:"-"`
	DatadogAppKey    string                 `yaml:"dd_app_key" json:"-"`
}

// LoadFromFile overrides cfg with the values present in the YAML file.
func LoadFromFile(cfg *Config, filePath string) error {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("%w: failed to read config file at: %s, %w", shared.ErrConfiguration, filePath, err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("%w: failed to unmarshal config file at: %s, %w", shared.ErrConfiguration, filePath, err)
	}
	return nil
}

// Check fills defaults and reports every invalid value at once.
func Check(cfg *Config) error {
	var result *multierror.Error

	if cfg.L2RPCUrl == "" {
		cfg.L2RPCUrl = DefaultL2RPCUrl
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = DefaultRPCTimeout
	}

	if cfg.L1RPCUrl == "" {
		result = multierror.Append(result, fmt.Errorf("missing L1 RPC endpoint, check chainlist.org or an RPC node provider"))
	}
	if cfg.WalletPrivKey == "" {
		result = multierror.Append(result, fmt.Errorf("wallet private key is not configured"))
	} else if _, err := cfg.PrivateKey(); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.WithdrawTxHash == "" {
		result = multierror.Append(result, fmt.Errorf("withdraw tx hash is not configured"))
	} else if _, err := cfg.TxHash(); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.WithdrawLogIndex < 0 {
		result = multierror.Append(result, fmt.Errorf("withdraw log index must not be negative"))
	}
	if cfg.SecondaryChain {
		if cfg.Secondary.MainContract == "" || cfg.Secondary.ERC20BridgeL1 == "" || cfg.Secondary.ERC20BridgeL2 == "" {
			result = multierror.Append(result, fmt.Errorf("secondary chain requires main contract, L1 erc20 and L2 erc20 addresses"))
		}
	}
	if cfg.RPCTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("rpc timeout must not be negative"))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}
	return nil
}

// PrivateKey parses the configured signing key.
func (c *Config) PrivateKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.WalletPrivKey), "0x"))
	if err != nil {
		// The key material is never part of the message.
		return nil, fmt.Errorf("%w: invalid wallet private key", shared.ErrConfiguration)
	}
	return key, nil
}

// TxHash parses the withdrawal reference.
func (c *Config) TxHash() (common.Hash, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(c.WithdrawTxHash))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: withdraw tx hash %q is not a 32 byte hex string", shared.ErrConfiguration, c.WithdrawTxHash)
	}
	return common.BytesToHash(raw), nil
}
