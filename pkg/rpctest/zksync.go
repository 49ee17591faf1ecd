package rpctest

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	l1Messenger        = common.HexToAddress("0x0000000000000000000000000000000000008008")
	l2EthToken         = common.HexToAddress("0x000000000000000000000000000000000000800a")
	bootloader         = common.HexToAddress("0x0000000000000000000000000000000000008001")
	l1MessageSentTopic = crypto.Keccak256Hash([]byte("L1MessageSent(address,bytes32,bytes)"))
	withdrawalTopic    = crypto.Keccak256Hash([]byte("Withdrawal(address,address,uint256)"))
)

// Withdrawal describes an L2 withdrawal the node serves receipts and proofs
// for.
type Withdrawal struct {
	TxHash         common.Hash
	Sender         common.Address
	Message        []byte
	L1BatchNumber  uint64
	L1BatchTxIndex uint64
	MessageID      uint64
	Proof          []common.Hash
	// Pending leaves the receipt without L1 batch information.
	Pending bool
	// Unproven makes the node answer null for the log proof.
	Unproven bool
}

// NewL2 starts a node with a registry describing the given deployment.
func NewL2(t testing.TB, chainID int64, mainContract common.Address, bridges map[string]common.Address) *Node {
	n := NewNode(t)
	n.Result("eth_chainId", hexutil.EncodeBig(big.NewInt(chainID)))
	n.Result("eth_getBalance", "0x2386f26fc10000")
	n.Result("zks_getMainContract", mainContract)
	n.Result("zks_getBridgeContracts", bridges)
	return n
}

// ServeWithdrawal answers eth_getTransactionReceipt and zks_getL2ToL1LogProof
// for w. The proof is only served for the log index the receipt implies.
func (n *Node) ServeWithdrawal(t testing.TB, w Withdrawal) {
	n.Result("eth_getTransactionReceipt", WithdrawalReceipt(t, w))
	n.Handle("zks_getL2ToL1LogProof", func(params []json.RawMessage) (any, error) {
		if w.Unproven || len(params) != 2 {
			return nil, nil
		}
		var hash common.Hash
		var idx int
		if err := json.Unmarshal(params[0], &hash); err != nil {
			return nil, &Error{Code: -32602, Message: err.Error()}
		}
		if err := json.Unmarshal(params[1], &idx); err != nil {
			return nil, &Error{Code: -32602, Message: err.Error()}
		}
		if hash != w.TxHash || idx != 1 {
			return nil, nil
		}
		return map[string]any{
			"proof": w.Proof,
			"id":    w.MessageID,
			"root":  crypto.Keccak256Hash(w.Message),
		}, nil
	})
}

// WithdrawalReceipt renders the zkSync receipt of w. The messenger log and
// L2 to L1 log are placed second, after an unrelated entry.
func WithdrawalReceipt(t testing.TB, w Withdrawal) map[string]any {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := abi.Arguments{{Type: bytesType}}.Pack(w.Message)
	if err != nil {
		t.Fatal(err)
	}

	var batch, txIdx any
	if !w.Pending {
		batch = hexutil.EncodeUint64(w.L1BatchNumber)
		txIdx = hexutil.EncodeUint64(w.L1BatchTxIndex)
	}
	sender := common.BytesToHash(w.Sender.Bytes())
	return map[string]any{
		"transactionHash": w.TxHash,
		"status":          "0x1",
		"l1BatchNumber":   batch,
		"l1BatchTxIndex":  txIdx,
		"logs": []map[string]any{
			{
				"address": l2EthToken,
				"topics":  []common.Hash{withdrawalTopic},
				"data":    "0x",
			},
			{
				"address":       l1Messenger,
				"topics":        []common.Hash{l1MessageSentTopic, sender, crypto.Keccak256Hash(w.Message)},
				"data":          hexutil.Bytes(data),
				"l1BatchNumber": batch,
			},
		},
		"l2ToL1Logs": []map[string]any{
			{"sender": bootloader, "key": common.Hash{}, "value": common.Hash{}},
			{"sender": l1Messenger, "key": sender, "value": crypto.Keccak256Hash(w.Message)},
		},
	}
}
