package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/primev/withdraw-finalizer/pkg/config"
	"github.com/primev/withdraw-finalizer/pkg/finalizer"
	"github.com/primev/withdraw-finalizer/pkg/metrics"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	optionConfig = &cli.StringFlag{
		Name:    "config",
		Usage:   "path to YAML config file, overrides env vars",
		EnvVars: []string{"WITHDRAW_FINALIZER_CONFIG"},
	}
	optionL1RPCUrl = &cli.StringFlag{
		Name:    "l1-rpc-endpoint",
		Usage:   "L1 JSON-RPC endpoint",
		EnvVars: []string{"L1_RPC_ENDPOINT"},
	}
	optionL2RPCUrl = &cli.StringFlag{
		Name:    "l2-rpc-endpoint",
		Usage:   "L2 JSON-RPC endpoint",
		Value:   config.DefaultL2RPCUrl,
		EnvVars: []string{"L2_RPC_ENDPOINT"},
	}
	optionPrivKey = &cli.StringFlag{
		Name:    "wallet-priv-key",
		Usage:   "hex encoded private key paying for the finalize transaction",
		EnvVars: []string{"WALLET_PRIV_KEY"},
	}
	optionTxHash = &cli.StringFlag{
		Name:    "withdraw-tx-hash",
		Usage:   "hash of the L2 withdrawal transaction",
		EnvVars: []string{"WITHDRAW_TX_HASH"},
	}
	optionLogIndex = &cli.IntFlag{
		Name:    "withdraw-log-index",
		Usage:   "index of the withdrawal among those made by the transaction",
		EnvVars: []string{"WITHDRAW_LOG_INDEX"},
	}
	optionSecondaryChain = &cli.BoolFlag{
		Name:    "secondary-chain",
		Usage:   "use configured contract addresses instead of the L2 registry",
		EnvVars: []string{"SECONDARY_CHAIN"},
	}
	optionSecondaryMain = &cli.StringFlag{
		Name:    "secondary-chain-main-contract-address",
		EnvVars: []string{"SECONDARY_CHAIN_MAIN_CONTRACT_ADDRESS"},
	}
	optionSecondaryL1ERC20 = &cli.StringFlag{
		Name:    "secondary-chain-l1erc20-contract-address",
		EnvVars: []string{"SECONDARY_CHAIN_L1ERC20_CONTRACT_ADDRESS"},
	}
	optionSecondaryL2ERC20 = &cli.StringFlag{
		Name:    "secondary-chain-l2erc20-contract-address",
		EnvVars: []string{"SECONDARY_CHAIN_L2ERC20_CONTRACT_ADDRESS"},
	}
	optionSecondaryL1WETH = &cli.StringFlag{
		Name:    "secondary-chain-l1weth-contract-address",
		EnvVars: []string{"SECONDARY_CHAIN_L1WETH_CONTRACT_ADDRESS"},
	}
	optionSecondaryL2WETH = &cli.StringFlag{
		Name:    "secondary-chain-l2weth-contract-address",
		EnvVars: []string{"SECONDARY_CHAIN_L2WETH_CONTRACT_ADDRESS"},
	}
	optionGasLimit = &cli.Uint64Flag{
		Name:    "gas-limit",
		Usage:   "gas limit of the finalize transaction, 0 estimates it",
		EnvVars: []string{"GAS_LIMIT"},
	}
	optionWait = &cli.BoolFlag{
		Name:    "wait-for-inclusion",
		Usage:   "poll L1 until the finalize transaction is mined",
		EnvVars: []string{"WAIT_FOR_INCLUSION"},
	}
	optionLogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   config.DefaultLogLevel,
		EnvVars: []string{"LOG_LEVEL"},
	}
	optionRPCTimeout = &cli.DurationFlag{
		Name:    "rpc-timeout",
		Value:   config.DefaultRPCTimeout,
		EnvVars: []string{"RPC_TIMEOUT"},
	}
	optionDatadogAPIKey = &cli.StringFlag{
		Name:    "dd-api-key",
		EnvVars: []string{"DD_API_KEY"},
	}
	optionDatadogAppKey = &cli.StringFlag{
		Name:    "dd-app-key",
		EnvVars: []string{"DD_APP_KEY"},
	}
)

var flags = []cli.Flag{
	optionConfig,
	optionL1RPCUrl,
	optionL2RPCUrl,
	optionPrivKey,
	optionTxHash,
	optionLogIndex,
	optionSecondaryChain,
	optionSecondaryMain,
	optionSecondaryL1ERC20,
	optionSecondaryL2ERC20,
	optionSecondaryL1WETH,
	optionSecondaryL2WETH,
	optionGasLimit,
	optionWait,
	optionLogLevel,
	optionRPCTimeout,
	optionDatadogAPIKey,
	optionDatadogAppKey,
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %v\n", err)
		os.Exit(shared.ExitConfiguration)
	}

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "exited with error: %v\n", err)
		os.Exit(shared.ExitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:         "withdraw-finalizer",
		Usage:        "Finalize zkSync withdrawals on L1",
		OnUsageError: usageError,
		Commands: []*cli.Command{
			{
				Name:         "finalize",
				Usage:        "Submit the L1 transaction releasing a withdrawal",
				Flags:        flags,
				Action:       finalize,
				OnUsageError: usageError,
			},
			{
				Name:         "params",
				Usage:        "Print the finalize parameters of a withdrawal",
				Flags:        flags,
				Action:       params,
				OnUsageError: usageError,
			},
			{
				Name:         "status",
				Usage:        "Report whether a withdrawal is already finalized",
				Flags:        flags,
				Action:       status,
				OnUsageError: usageError,
			},
		},
	}
}

// usageError marks invalid flag or env var values, such as a non boolean
// SECONDARY_CHAIN, as configuration errors.
func usageError(_ *cli.Context, err error, _ bool) error {
	return fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Config{
		L1RPCUrl:         c.String(optionL1RPCUrl.Name),
		L2RPCUrl:         c.String(optionL2RPCUrl.Name),
		WalletPrivKey:    c.String(optionPrivKey.Name),
		WithdrawTxHash:   c.String(optionTxHash.Name),
		WithdrawLogIndex: c.Int(optionLogIndex.Name),
		SecondaryChain:   c.Bool(optionSecondaryChain.Name),
		GasLimit:         c.Uint64(optionGasLimit.Name),
		WaitForInclusion: c.Bool(optionWait.Name),
		LogLevel:         c.String(optionLogLevel.Name),
		RPCTimeout:       c.Duration(optionRPCTimeout.Name),
		DatadogAPIKey:    c.String(optionDatadogAPIKey.Name),
		DatadogAppKey:    c.String(optionDatadogAppKey.Name),
	}
	cfg.Secondary.MainContract = c.String(optionSecondaryMain.Name)
	cfg.Secondary.ERC20BridgeL1 = c.String(optionSecondaryL1ERC20.Name)
	cfg.Secondary.ERC20BridgeL2 = c.String(optionSecondaryL2ERC20.Name)
	cfg.Secondary.WETHBridgeL1 = c.String(optionSecondaryL1WETH.Name)
	cfg.Secondary.WETHBridgeL2 = c.String(optionSecondaryL2WETH.Name)

	configFilePath := c.String(optionConfig.Name)
	if configFilePath != "" {
		log.Info().Str("config_file", configFilePath).Msg("overriding env var config with file")
		if err := config.LoadFromFile(&cfg, configFilePath); err != nil {
			return config.Config{}, err
		}
	}

	if err := setupLogging(cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(logLevel string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("%w: failed to parse log level: %w", shared.ErrConfiguration, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func finalize(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	reporter := metrics.NewReporter(cfg.DatadogAPIKey, cfg.DatadogAppKey)
	res, err := finalizer.Run(ctx, cfg, reporter)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, res.TxHash.Hex())
	return nil
}

func params(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	f, err := finalizer.New(cfg, nil)
	if err != nil {
		return err
	}
	p, err := f.Params(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func status(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	f, err := finalizer.New(cfg, nil)
	if err != nil {
		return err
	}
	done, err := f.Status(ctx)
	if err != nil {
		return err
	}
	if done {
		fmt.Fprintln(c.App.Writer, "finalized")
	} else {
		fmt.Fprintln(c.App.Writer, "pending")
	}
	return nil
}
