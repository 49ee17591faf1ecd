package account

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/primev/withdraw-finalizer/pkg/bridge"
	"github.com/primev/withdraw-finalizer/pkg/connector"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/sha3"
)

type chainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	Call(ctx context.Context, contract common.Address, fn *w3.Func, args ...any) ([]byte, error)
}

// L1Backend is the primary chain: read calls plus transaction submission.
type L1Backend interface {
	chainReader
	shared.TxBackend
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// L2Backend is the rollup chain, which also serves withdrawal proofs.
type L2Backend interface {
	chainReader
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

type Options struct {
	PrivateKey *ecdsa.PrivateKey
	L1         L1Backend
	L2         L2Backend
	Bridges    bridge.AddressSet
	// GasLimit for the finalize transaction. Zero estimates it on L1.
	GasLimit uint64
}

// Account binds a signing key to both chains of a deployment.
type Account struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	l1         L1Backend
	l2         L2Backend
	bridges    bridge.AddressSet
	gasLimit   uint64
}

// Result describes a submitted finalize transaction.
type Result struct {
	TxHash common.Hash    `json:"txHash"`
	Target common.Address `json:"target"`
	Nonce  uint64         `json:"nonce"`
}

func New(opts Options) (*Account, error) {
	if opts.PrivateKey == nil {
		return nil, fmt.Errorf("%w: wallet private key is not configured", shared.ErrConfiguration)
	}
	if opts.L1 == nil || opts.L2 == nil {
		return nil, fmt.Errorf("%w: both L1 and L2 connectors are required", shared.ErrConfiguration)
	}

	pubKeyBytes := crypto.FromECDSAPub(&opts.PrivateKey.PublicKey)
	hash := sha3.NewLegacyKeccak256()
	hash.Write(pubKeyBytes[1:])
	address := common.BytesToAddress(hash.Sum(nil)[12:])
	log.Info().Msg("Signing address used for finalize tx on L1: " + address.Hex())

	return &Account{
		privateKey: opts.PrivateKey,
		address:    address,
		l1:         opts.L1,
		l2:         opts.L2,
		bridges:    opts.Bridges,
		gasLimit:   opts.GasLimit,
	}, nil
}

func (a *Account) Address() common.Address {
	return a.address
}

// Balance returns the account balance on the given chain.
func (a *Account) Balance(ctx context.Context, chain shared.Chain) (*big.Int, error) {
	switch chain {
	case shared.L1:
		return a.l1.Balance(ctx, a.address)
	case shared.L2:
		return a.l2.Balance(ctx, a.address)
	default:
		return nil, fmt.Errorf("%w: unknown chain %s", shared.ErrConfiguration, chain)
	}
}

func (a *Account) ChainID(ctx context.Context, chain shared.Chain) (*big.Int, error) {
	switch chain {
	case shared.L1:
		return a.l1.ChainID(ctx)
	case shared.L2:
		return a.l2.ChainID(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown chain %s", shared.ErrConfiguration, chain)
	}
}

// HasPendingTransactions reports whether the signer has unmined L1
// transactions, which would queue the finalize transaction behind them.
func (a *Account) HasPendingTransactions(ctx context.Context) (bool, error) {
	return shared.PendingTransactionsExist(ctx, a.l1, a.address)
}

func (a *Account) MainContract() common.Address {
	return a.bridges.MainContract
}

// L1BridgeContracts returns the L1 ERC-20 and WETH bridges.
func (a *Account) L1BridgeContracts() (erc20, weth common.Address) {
	return a.bridges.ERC20BridgeL1, a.bridges.WETHBridgeL1
}

func (a *Account) Bridges() bridge.AddressSet {
	return a.bridges
}

type finalizeTarget struct {
	contract common.Address
	finalize *w3.Func
	check    *w3.Func
}

func (a *Account) target(ctx context.Context, params *FinalizeParams) (finalizeTarget, error) {
	if isETH(params.Sender) {
		return finalizeTarget{a.bridges.MainContract, finalizeEthWithdrawalFunc, isEthWithdrawalFinalizedFunc}, nil
	}
	if l1Bridge, ok := a.bridges.L1Counterpart(params.Sender); ok {
		return finalizeTarget{l1Bridge, finalizeWithdrawalFunc, isWithdrawalFinalizedFunc}, nil
	}

	out, err := a.l2.Call(ctx, params.Sender, l1BridgeFunc)
	if err != nil {
		return finalizeTarget{}, fmt.Errorf("failed to get L1 bridge of %s: %w", params.Sender.Hex(), err)
	}
	var l1Bridge common.Address
	if err := l1BridgeFunc.DecodeReturns(out, &l1Bridge); err != nil {
		return finalizeTarget{}, fmt.Errorf("%w: failed to decode L1 bridge of %s: %w", shared.ErrRemoteCall, params.Sender.Hex(), err)
	}
	if l1Bridge == (common.Address{}) {
		return finalizeTarget{}, fmt.Errorf("%w: L2 bridge %s has no L1 counterpart", shared.ErrRemoteCall, params.Sender.Hex())
	}
	return finalizeTarget{l1Bridge, finalizeWithdrawalFunc, isWithdrawalFinalizedFunc}, nil
}

func (a *Account) isFinalized(ctx context.Context, t finalizeTarget, params *FinalizeParams) (bool, error) {
	out, err := a.l1.Call(ctx, t.contract, t.check, params.L1BatchNumber, params.L2MessageIndex)
	if err != nil {
		return false, err
	}
	var finalized bool
	if err := t.check.DecodeReturns(out, &finalized); err != nil {
		return false, fmt.Errorf("%w: failed to decode finalization status: %w", shared.ErrRemoteCall, err)
	}
	return finalized, nil
}

// IsWithdrawalFinalized reports whether L1 already released the index-th
// withdrawal of ref.
func (a *Account) IsWithdrawalFinalized(ctx context.Context, ref common.Hash, index int) (bool, error) {
	params, err := a.FinalizeWithdrawalParams(ctx, ref, index)
	if err != nil {
		return false, err
	}
	t, err := a.target(ctx, params)
	if err != nil {
		return false, err
	}
	return a.isFinalized(ctx, t, params)
}

// FinalizeWithdrawal fetches fresh proof parameters for the index-th
// withdrawal of ref and submits one finalize transaction on L1. It does not
// wait for inclusion and never retries.
func (a *Account) FinalizeWithdrawal(ctx context.Context, ref common.Hash, index int) (*Result, error) {
	params, err := a.FinalizeWithdrawalParams(ctx, ref, index)
	if err != nil {
		return nil, err
	}
	t, err := a.target(ctx, params)
	if err != nil {
		return nil, err
	}

	finalized, err := a.isFinalized(ctx, t, params)
	if err != nil {
		log.Warn().Err(err).Str("contract", t.contract.Hex()).Msg("failed to check finalization status, submitting anyway")
	} else if finalized {
		return nil, fmt.Errorf("%w: withdrawal %s (batch %s, message %s) was already processed by %s",
			shared.ErrAlreadyFinalized, ref.Hex(), params.L1BatchNumber, params.L2MessageIndex, t.contract.Hex())
	}

	data, err := t.finalize.EncodeArgs(
		params.L1BatchNumber,
		params.L2MessageIndex,
		params.L2TxNumberInBatch,
		[]byte(params.Message),
		params.proofArg(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode finalize call: %w", shared.ErrRemoteCall, err)
	}

	chainID, err := a.l1.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get L1 chain id: %w", err)
	}
	opts, err := shared.CreateTransactOpts(ctx, a.privateKey, chainID, a.l1, a.gasLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transact opts: %w", err)
	}
	if opts.GasLimit == 0 {
		gas, err := a.l1.EstimateGas(ctx, ethereum.CallMsg{
			From:      opts.From,
			To:        &t.contract,
			GasFeeCap: opts.GasFeeCap,
			GasTipCap: opts.GasTipCap,
			Data:      data,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate finalize gas: %w", classifySubmitError(err))
		}
		opts.GasLimit = gas
	}

	tx, err := shared.SignDynamicTx(opts, chainID, t.contract, data)
	if err != nil {
		return nil, err
	}
	if err := a.l1.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send finalize tx: %w", classifySubmitError(err))
	}
	log.Debug().Msgf("Finalize withdrawal tx sent, hash: %s, contract: %s, nonce: %d, gas: %d",
		tx.Hash().Hex(), t.contract.Hex(), tx.Nonce(), tx.Gas())

	return &Result{
		TxHash: tx.Hash(),
		Target: t.contract,
		Nonce:  tx.Nonce(),
	}, nil
}

// WaitMined polls L1 for the receipt of txHash. A reverted transaction is
// reported as a remote call error.
func (a *Account) WaitMined(ctx context.Context, txHash common.Hash, attempts int, interval time.Duration) (*types.Receipt, error) {
	for idx := 0; idx < attempts; idx++ {
		receipt, err := a.l1.TransactionReceipt(ctx, txHash)
		if receipt != nil {
			log.Info().Msgf("Finalize withdrawal tx included in block %s, hash: %s",
				receipt.BlockNumber, receipt.TxHash.Hex())
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: finalize tx %s reverted on L1", shared.ErrRemoteCall, txHash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for %s: %w", shared.ErrNetwork, txHash.Hex(), ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("%w: finalize tx %s not included in a block after %d attempts", shared.ErrNetwork, txHash.Hex(), attempts)
}

func classifySubmitError(err error) error {
	var remote *connector.RemoteError
	if !errors.As(err, &remote) {
		return err
	}
	msg := remote.Message
	if strings.Contains(strings.ToLower(msg), "already finalized") {
		return fmt.Errorf("%w: %w", shared.ErrAlreadyFinalized, err)
	}
	if i := strings.LastIndex(msg, ": "); i >= 0 && alreadyFinalizedReasons[strings.TrimSpace(msg[i+2:])] {
		return fmt.Errorf("%w: %w", shared.ErrAlreadyFinalized, err)
	}
	return err
}
