package account

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/primev/withdraw-finalizer/pkg/shared"
)

// FinalizeParams is what the L1 contracts need to release a withdrawal.
type FinalizeParams struct {
	L1BatchNumber     *big.Int       `json:"l1BatchNumber"`
	L2MessageIndex    *big.Int       `json:"l2MessageIndex"`
	L2TxNumberInBatch uint16         `json:"l2TxNumberInBlock"`
	Message           hexutil.Bytes  `json:"message"`
	Sender            common.Address `json:"sender"`
	Proof             []common.Hash  `json:"proof"`
}

func (p *FinalizeParams) proofArg() [][32]byte {
	proof := make([][32]byte, len(p.Proof))
	for i, h := range p.Proof {
		proof[i] = h
	}
	return proof
}

type l2Receipt struct {
	TxHash         common.Hash     `json:"transactionHash"`
	Status         *hexutil.Uint64 `json:"status"`
	L1BatchNumber  *hexutil.Big    `json:"l1BatchNumber"`
	L1BatchTxIndex *hexutil.Uint64 `json:"l1BatchTxIndex"`
	Logs           []l2Log         `json:"logs"`
	L2ToL1Logs     []l2ToL1Log     `json:"l2ToL1Logs"`
}

type l2Log struct {
	Address       common.Address `json:"address"`
	Topics        []common.Hash  `json:"topics"`
	Data          hexutil.Bytes  `json:"data"`
	L1BatchNumber *hexutil.Big   `json:"l1BatchNumber"`
}

type l2ToL1Log struct {
	Sender common.Address `json:"sender"`
	Key    common.Hash    `json:"key"`
	Value  common.Hash    `json:"value"`
}

type logProof struct {
	Proof []common.Hash `json:"proof"`
	ID    uint64        `json:"id"`
	Root  common.Hash   `json:"root"`
}

var messageArgs = func() abi.Arguments {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: bytesType}}
}()

// FinalizeWithdrawalParams collects the proof of the index-th withdrawal made
// by the L2 transaction ref.
func (a *Account) FinalizeWithdrawalParams(ctx context.Context, ref common.Hash, index int) (*FinalizeParams, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: negative withdrawal index %d", shared.ErrConfiguration, index)
	}

	var raw json.RawMessage
	if err := a.l2.CallContext(ctx, &raw, "eth_getTransactionReceipt", ref); err != nil {
		return nil, fmt.Errorf("failed to get withdrawal receipt: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: no transaction %s on L2", shared.ErrNotFound, ref.Hex())
	}
	var receipt l2Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("%w: malformed receipt for %s: %w", shared.ErrRemoteCall, ref.Hex(), err)
	}
	if receipt.Status != nil && *receipt.Status == 0 {
		return nil, fmt.Errorf("%w: transaction %s failed on L2", shared.ErrNotFound, ref.Hex())
	}

	msgLog, err := withdrawalLog(receipt, index)
	if err != nil {
		return nil, err
	}
	logIndex, err := withdrawalL2ToL1LogIndex(receipt, index)
	if err != nil {
		return nil, err
	}

	batch := msgLog.L1BatchNumber
	if batch == nil {
		batch = receipt.L1BatchNumber
	}
	if batch == nil || receipt.L1BatchTxIndex == nil {
		return nil, fmt.Errorf("%w: transaction %s is not included in an L1 batch yet", shared.ErrNotReady, ref.Hex())
	}
	if uint64(*receipt.L1BatchTxIndex) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: l1 batch tx index %d out of range", shared.ErrRemoteCall, uint64(*receipt.L1BatchTxIndex))
	}

	var proof *logProof
	if err := a.l2.CallContext(ctx, &proof, "zks_getL2ToL1LogProof", ref, logIndex); err != nil {
		return nil, fmt.Errorf("failed to get log proof: %w", err)
	}
	if proof == nil {
		return nil, fmt.Errorf("%w: log proof for %s not found, the batch is not executed on L1 yet", shared.ErrNotReady, ref.Hex())
	}

	vals, err := messageArgs.Unpack(msgLog.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode withdrawal message: %w", shared.ErrRemoteCall, err)
	}
	message, ok := vals[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected withdrawal message type %T", shared.ErrRemoteCall, vals[0])
	}

	return &FinalizeParams{
		L1BatchNumber:     new(big.Int).Set(batch.ToInt()),
		L2MessageIndex:    new(big.Int).SetUint64(proof.ID),
		L2TxNumberInBatch: uint16(*receipt.L1BatchTxIndex),
		Message:           message,
		Sender:            common.BytesToAddress(msgLog.Topics[1].Bytes()),
		Proof:             proof.Proof,
	}, nil
}

func withdrawalLog(receipt l2Receipt, index int) (l2Log, error) {
	n := 0
	for _, l := range receipt.Logs {
		if l.Address != L1MessengerAddress || len(l.Topics) < 2 || l.Topics[0] != l1MessageSentTopic {
			continue
		}
		if n == index {
			return l, nil
		}
		n++
	}
	return l2Log{}, fmt.Errorf("%w: transaction %s has no withdrawal with index %d", shared.ErrNotFound, receipt.TxHash.Hex(), index)
}

func withdrawalL2ToL1LogIndex(receipt l2Receipt, index int) (int, error) {
	n := 0
	for i, l := range receipt.L2ToL1Logs {
		if l.Sender != L1MessengerAddress {
			continue
		}
		if n == index {
			return i, nil
		}
		n++
	}
	return 0, fmt.Errorf("%w: transaction %s has no L2 to L1 message with index %d", shared.ErrNotFound, receipt.TxHash.Hex(), index)
}
