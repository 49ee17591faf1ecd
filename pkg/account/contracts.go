package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"golang.org/x/crypto/sha3"
)

// System contracts present at fixed addresses on every zkSync-compatible L2.
var (
	L1MessengerAddress = common.HexToAddress("0x0000000000000000000000000000000000008008")
	L2EthTokenAddress  = common.HexToAddress("0x000000000000000000000000000000000000800a")
)

var l1MessageSentTopic = eventID("L1MessageSent(address,bytes32,bytes)")

var (
	finalizeEthWithdrawalFunc    = w3.MustNewFunc("finalizeEthWithdrawal(uint256,uint256,uint16,bytes,bytes32[])", "")
	finalizeWithdrawalFunc       = w3.MustNewFunc("finalizeWithdrawal(uint256,uint256,uint16,bytes,bytes32[])", "")
	isEthWithdrawalFinalizedFunc = w3.MustNewFunc("isEthWithdrawalFinalized(uint256,uint256)", "bool")
	isWithdrawalFinalizedFunc    = w3.MustNewFunc("isWithdrawalFinalized(uint256,uint256)", "bool")
	l1BridgeFunc                 = w3.MustNewFunc("l1Bridge()", "address")
)

// Revert reasons the L1 contracts use when a withdrawal was already processed.
var alreadyFinalizedReasons = map[string]bool{
	"jj": true, // Mailbox: ETH withdrawal already finalized
	"pw": true, // L1ERC20Bridge: withdrawal already finalized
}

func eventID(signature string) common.Hash {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return common.BytesToHash(hash.Sum(nil))
}

func isETH(token common.Address) bool {
	return token == (common.Address{}) || token == L2EthTokenAddress
}
