package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testTxHash = "0xaaaa0000000000000000000000000000000000000000000000000000000000aa"
)

func validConfig() Config {
	return Config{
		L1RPCUrl:       "https://l1.test",
		WalletPrivKey:  testKey,
		WithdrawTxHash: testTxHash,
	}
}

func TestCheckDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Check(&cfg))
	require.Equal(t, DefaultL2RPCUrl, cfg.L2RPCUrl)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, DefaultRPCTimeout, cfg.RPCTimeout)

	hash, err := cfg.TxHash()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(testTxHash), hash)

	key, err := cfg.PrivateKey()
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestCheckReportsAllProblems(t *testing.T) {
	cfg := Config{LogLevel: "loud"}
	err := Check(&cfg)
	require.ErrorIs(t, err, shared.ErrConfiguration)
	require.Contains(t, err.Error(), "L1 RPC endpoint")
	require.Contains(t, err.Error(), "private key")
	require.Contains(t, err.Error(), "withdraw tx hash")
	require.Contains(t, err.Error(), "log level")
}

func TestCheckMissingKey(t *testing.T) {
	cfg := validConfig()
	cfg.WalletPrivKey = ""
	require.ErrorIs(t, Check(&cfg), shared.ErrConfiguration)
}

func TestCheckInvalidValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"key":         func(c *Config) { c.WalletPrivKey = "0xnothex" },
		"short hash":  func(c *Config) { c.WithdrawTxHash = "0xAAA" },
		"index":       func(c *Config) { c.WithdrawLogIndex = -1 },
		"timeout":     func(c *Config) { c.RPCTimeout = -time.Second },
		"secondary":   func(c *Config) { c.SecondaryChain = true },
		"missing l1":  func(c *Config) { c.L1RPCUrl = "" },
		"missing ref": func(c *Config) { c.WithdrawTxHash = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			require.ErrorIs(t, Check(&cfg), shared.ErrConfiguration)
		})
	}
}

func TestInvalidKeyIsNotEchoed(t *testing.T) {
	cfg := validConfig()
	cfg.WalletPrivKey = "0xdeadbeefzz"
	err := Check(&cfg)
	require.Error(t, err)
	require.NotContains(t, err.Error(), "deadbeef")
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
l2_rpc_url: https://l2.test
secondary_chain: true
secondary_chain_contracts:
  main_contract_address: "0x9A6DE0f62Aa270A8bCB1e2610078650D539B1Ef9"
  l1_erc20_contract_address: "0x927DdFcc55164a59E0F33918D13a2D559bC10ce7"
  l2_erc20_contract_address: "0x00ff932A6d70E2B8f1Eb4919e1e09C1923E7e57b"
gas_limit: 500000
log_level: debug
`), 0o600))

	cfg := validConfig()
	cfg.L2RPCUrl = "https://env.test"
	require.NoError(t, LoadFromFile(&cfg, path))
	require.NoError(t, Check(&cfg))
	require.Equal(t, "https://l1.test", cfg.L1RPCUrl)
	require.Equal(t, "https://l2.test", cfg.L2RPCUrl)
	require.True(t, cfg.SecondaryChain)
	require.Equal(t, "0x9A6DE0f62Aa270A8bCB1e2610078650D539B1Ef9", cfg.Secondary.MainContract)
	require.Equal(t, uint64(500000), cfg.GasLimit)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := validConfig()
	err := LoadFromFile(&cfg, filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, shared.ErrConfiguration)
}
