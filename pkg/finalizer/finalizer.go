package finalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/primev/withdraw-finalizer/pkg/account"
	"github.com/primev/withdraw-finalizer/pkg/bridge"
	"github.com/primev/withdraw-finalizer/pkg/config"
	"github.com/primev/withdraw-finalizer/pkg/connector"
	"github.com/primev/withdraw-finalizer/pkg/metrics"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/rs/zerolog/log"
)

var (
	waitAttempts = 50
	waitInterval = 5 * time.Second
)

// Finalizer runs one withdrawal finalization end to end.
type Finalizer struct {
	cfg      config.Config
	reporter metrics.Reporter
	opts     []connector.Option
}

// New validates cfg before anything touches the network.
func New(cfg config.Config, reporter metrics.Reporter, opts ...connector.Option) (*Finalizer, error) {
	if err := config.Check(&cfg); err != nil {
		return nil, err
	}
	if reporter == nil {
		reporter = metrics.Noop{}
	}
	return &Finalizer{cfg: cfg, reporter: reporter, opts: opts}, nil
}

// Run validates cfg, finalizes the configured withdrawal and reports the
// outcome. Invalid configuration is reported before any network call.
func Run(ctx context.Context, cfg config.Config, reporter metrics.Reporter, opts ...connector.Option) (*account.Result, error) {
	f, err := New(cfg, reporter, opts...)
	if err != nil {
		if reporter == nil {
			reporter = metrics.Noop{}
		}
		report(ctx, reporter, cfg, err)
		return nil, err
	}
	return f.Run(ctx)
}

// Run fetches the finalize parameters of the configured withdrawal and submits
// the finalize transaction on L1.
func (f *Finalizer) Run(ctx context.Context) (res *account.Result, err error) {
	defer func() {
		report(ctx, f.reporter, f.cfg, err)
	}()

	ref, err := f.cfg.TxHash()
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("Withdraw tx hash: %s", ref.Hex())
	log.Info().Msg("Running finalization of withdrawal to L1")

	acct, closeFn, err := f.setup(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	Diagnostics(ctx, acct)

	params, err := acct.FinalizeWithdrawalParams(ctx, ref, f.cfg.WithdrawLogIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch finalize withdrawal params: %w", err)
	}
	logParams(params)

	res, err = acct.FinalizeWithdrawal(ctx, ref, f.cfg.WithdrawLogIndex)
	if err != nil {
		log.Error().Err(err).Msg("Error withdrawing")
		return nil, err
	}
	log.Info().Str("contract", res.Target.Hex()).Msgf("Withdraw transaction sent %s", res.TxHash.Hex())

	if f.cfg.WaitForInclusion {
		if _, err := acct.WaitMined(ctx, res.TxHash, waitAttempts, waitInterval); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Params only fetches and returns the finalize parameters.
func (f *Finalizer) Params(ctx context.Context) (*account.FinalizeParams, error) {
	ref, err := f.cfg.TxHash()
	if err != nil {
		return nil, err
	}
	acct, closeFn, err := f.setup(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return acct.FinalizeWithdrawalParams(ctx, ref, f.cfg.WithdrawLogIndex)
}

// Status reports whether L1 already released the configured withdrawal.
func (f *Finalizer) Status(ctx context.Context) (bool, error) {
	ref, err := f.cfg.TxHash()
	if err != nil {
		return false, err
	}
	acct, closeFn, err := f.setup(ctx)
	if err != nil {
		return false, err
	}
	defer closeFn()
	return acct.IsWithdrawalFinalized(ctx, ref, f.cfg.WithdrawLogIndex)
}

func (f *Finalizer) setup(ctx context.Context) (*account.Account, func(), error) {
	opts := append([]connector.Option{connector.WithTimeout(f.cfg.RPCTimeout)}, f.opts...)

	l1, err := connector.New(shared.ChainEndpoint{URL: f.cfg.L1RPCUrl, Role: shared.L1}, opts...)
	if err != nil {
		return nil, nil, err
	}
	l2, err := connector.New(shared.ChainEndpoint{URL: f.cfg.L2RPCUrl, Role: shared.L2}, opts...)
	if err != nil {
		l1.Close()
		return nil, nil, err
	}
	closeFn := func() {
		l1.Close()
		l2.Close()
	}

	set, err := bridge.Resolve(ctx, f.cfg.SecondaryChain, f.cfg.Secondary, l2)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to resolve bridge addresses: %w", err)
	}
	log.Debug().Bool("secondary_chain", f.cfg.SecondaryChain).Object("bridges", set).Msg("resolved bridge addresses")

	key, err := f.cfg.PrivateKey()
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	acct, err := account.New(account.Options{
		PrivateKey: key,
		L1:         l1,
		L2:         l2,
		Bridges:    set,
		GasLimit:   f.cfg.GasLimit,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return acct, closeFn, nil
}

// Diagnostics logs balances and contract addresses. Failures are logged and
// never abort the run.
func Diagnostics(ctx context.Context, acct *account.Account) {
	for _, chain := range []shared.Chain{shared.L1, shared.L2} {
		if id, err := acct.ChainID(ctx, chain); err != nil {
			log.Warn().Err(err).Msgf("failed to get %s chain id", chain)
		} else {
			log.Info().Msgf("%s chain id is %s", chain, id)
		}
		if bal, err := acct.Balance(ctx, chain); err != nil {
			log.Warn().Err(err).Msgf("failed to get %s balance", chain)
		} else {
			log.Info().Msgf("%s Balance is %s", chain, bal)
		}
	}

	if pending, err := acct.HasPendingTransactions(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to check for pending L1 transactions")
	} else if pending {
		log.Warn().Str("address", acct.Address().Hex()).Msg("signer has pending L1 transactions, the finalize tx will be queued behind them")
	}

	log.Info().Msgf("Main contract address: %s", acct.MainContract().Hex())
	erc20, weth := acct.L1BridgeContracts()
	if weth != (common.Address{}) {
		log.Info().Msgf("L1WETH address: %s", weth.Hex())
	}
	log.Info().Msgf("L1ERC20 address: %s", erc20.Hex())
}

func logParams(params *account.FinalizeParams) {
	buf, err := json.Marshal(params)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode finalize withdraw params")
		return
	}
	log.Info().Msgf("Finalize withdraw params: %s", buf)
}

func report(ctx context.Context, reporter metrics.Reporter, cfg config.Config, err error) {
	outcome := metrics.Outcome(err)
	if err := reporter.Report(ctx, outcome, []string{
		fmt.Sprintf("secondary_chain:%t", cfg.SecondaryChain),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to report finalize outcome")
	}
}
