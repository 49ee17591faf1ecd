package shared

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const feeCapMultiplier = 2

type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type NonceBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// PendingTransactionsExist reports whether from has transactions in the
// mempool that are not yet mined.
func PendingTransactionsExist(ctx context.Context, backend NonceBackend, from common.Address) (bool, error) {
	currentNonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return false, fmt.Errorf("failed to get current pending nonce: %w", err)
	}

	latestNonce, err := backend.NonceAt(ctx, from, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get latest nonce: %w", err)
	}

	return currentNonce > latestNonce, nil
}

// CreateTransactOpts prepares dynamic fee transact opts for the key on the
// given chain. A zero gasLimit is left for the caller to estimate.
func CreateTransactOpts(
	ctx context.Context,
	privateKey *ecdsa.PrivateKey,
	chainID *big.Int,
	backend TxBackend,
	gasLimit uint64,
) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create transactor: %w", ErrSignature, err)
	}
	auth.Context = ctx

	fromAddress := auth.From
	nonce, err := backend.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)

	// Returns priority fee per gas
	gasTip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	// Returns priority fee per gas + base fee per gas
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if gasPrice.Cmp(gasTip) < 0 {
		gasPrice = new(big.Int).Set(gasTip)
	}

	// Headroom over the current price for a rising base fee.
	auth.GasFeeCap = new(big.Int).Mul(gasPrice, big.NewInt(feeCapMultiplier))
	auth.GasTipCap = gasTip
	auth.GasLimit = gasLimit
	return auth, nil
}

// SignDynamicTx builds an EIP-1559 transaction from opts and signs it with the
// opts signer.
func SignDynamicTx(opts *bind.TransactOpts, chainID *big.Int, to common.Address, data []byte) (*types.Transaction, error) {
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}
	rawTx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     opts.Nonce.Uint64(),
		GasTipCap: opts.GasTipCap,
		GasFeeCap: opts.GasFeeCap,
		Gas:       opts.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signedTx, err := opts.Signer(opts.From, rawTx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign transaction: %w", ErrSignature, err)
	}
	return signedTx, nil
}
