package bridge_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/primev/withdraw-finalizer/pkg/bridge"
	"github.com/primev/withdraw-finalizer/pkg/connector"
	"github.com/primev/withdraw-finalizer/pkg/rpctest"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/stretchr/testify/require"
)

const (
	mainContract = "0x9A6DE0f62Aa270A8bCB1e2610078650D539B1Ef9"
	l1ERC20      = "0x927DdFcc55164a59E0F33918D13a2D559bC10ce7"
	l2ERC20      = "0x00ff932A6d70E2B8f1Eb4919e1e09C1923E7e57b"
	zeroAddress  = "0x0000000000000000000000000000000000000000"
)

func registry(t *testing.T) (*rpctest.Node, *connector.Connector) {
	t.Helper()
	node := rpctest.NewNode(t)
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)
	return node, c
}

func TestResolveDefault(t *testing.T) {
	node, c := registry(t)
	node.Result("zks_getMainContract", mainContract)
	node.Result("zks_getBridgeContracts", map[string]any{
		"l1Erc20DefaultBridge": l1ERC20,
		"l2Erc20DefaultBridge": l2ERC20,
		"l1WethBridge":         "0x3ccE3E3F8D2D7fbc0Fa1A7dA1bDBA1AF3Ab1E4d2",
		"l2WethBridge":         "0x0007Ed7EAd4e9eaBF0fA1Fd36eE5Fd97ADB59Ef7",
	})

	set, err := bridge.ResolveDefault(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(mainContract), set.MainContract)
	require.Equal(t, common.HexToAddress(l1ERC20), set.ERC20BridgeL1)
	require.Equal(t, common.HexToAddress(l2ERC20), set.ERC20BridgeL2)
	require.Equal(t, common.HexToAddress("0x3ccE3E3F8D2D7fbc0Fa1A7dA1bDBA1AF3Ab1E4d2"), set.WETHBridgeL1)
	require.Equal(t, common.HexToAddress("0x0007Ed7EAd4e9eaBF0fA1Fd36eE5Fd97ADB59Ef7"), set.WETHBridgeL2)
}

func TestResolveDefaultWithoutWETHBridge(t *testing.T) {
	node, c := registry(t)
	node.Result("zks_getMainContract", mainContract)
	node.Result("zks_getBridgeContracts", map[string]any{
		"l1Erc20DefaultBridge": l1ERC20,
		"l2Erc20DefaultBridge": l2ERC20,
		"l1WethBridge":         nil,
		"l2WethBridge":         zeroAddress,
	})

	set, err := bridge.ResolveDefault(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, set.WETHBridgeL1)
	require.Equal(t, common.Address{}, set.WETHBridgeL2)
}

func TestResolveDefaultZeroMainContract(t *testing.T) {
	node, c := registry(t)
	node.Result("zks_getMainContract", zeroAddress)

	_, err := bridge.ResolveDefault(context.Background(), c)
	require.ErrorIs(t, err, shared.ErrConfiguration)
	require.Equal(t, 0, node.Calls("zks_getBridgeContracts"))
}

func TestResolveDefaultZeroERC20Bridge(t *testing.T) {
	node, c := registry(t)
	node.Result("zks_getMainContract", mainContract)
	node.Result("zks_getBridgeContracts", map[string]any{
		"l1Erc20DefaultBridge": l1ERC20,
	})

	_, err := bridge.ResolveDefault(context.Background(), c)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestResolveDefaultRegistryError(t *testing.T) {
	node, c := registry(t)
	node.Fail("zks_getMainContract", &rpctest.Error{Code: -32000, Message: "internal error"})

	_, err := bridge.ResolveDefault(context.Background(), c)
	require.ErrorIs(t, err, shared.ErrRemoteCall)
	require.Contains(t, err.Error(), "internal error")
}

func TestResolveSecondary(t *testing.T) {
	set, err := bridge.ResolveSecondary(bridge.SecondaryConfig{
		MainContract:  mainContract,
		ERC20BridgeL1: l1ERC20,
		ERC20BridgeL2: l2ERC20,
	})
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(mainContract), set.MainContract)
	require.Equal(t, set.ERC20BridgeL1, set.WETHBridgeL1)
	require.Equal(t, set.ERC20BridgeL2, set.WETHBridgeL2)
}

func TestResolveSecondaryExplicitWETH(t *testing.T) {
	weth := "0x3ccE3E3F8D2D7fbc0Fa1A7dA1bDBA1AF3Ab1E4d2"
	set, err := bridge.ResolveSecondary(bridge.SecondaryConfig{
		MainContract:  mainContract,
		ERC20BridgeL1: l1ERC20,
		ERC20BridgeL2: l2ERC20,
		WETHBridgeL1:  weth,
	})
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(weth), set.WETHBridgeL1)
	require.Equal(t, set.ERC20BridgeL2, set.WETHBridgeL2)
}

func TestResolveSecondaryMissingAddresses(t *testing.T) {
	full := bridge.SecondaryConfig{MainContract: mainContract, ERC20BridgeL1: l1ERC20, ERC20BridgeL2: l2ERC20}
	cases := map[string]func(c *bridge.SecondaryConfig){
		"main":     func(c *bridge.SecondaryConfig) { c.MainContract = "" },
		"erc20 l1": func(c *bridge.SecondaryConfig) { c.ERC20BridgeL1 = "" },
		"erc20 l2": func(c *bridge.SecondaryConfig) { c.ERC20BridgeL2 = " " },
		"bad hex":  func(c *bridge.SecondaryConfig) { c.MainContract = "0x1234" },
		"bad weth": func(c *bridge.SecondaryConfig) { c.WETHBridgeL2 = "weth" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := full
			mutate(&cfg)
			_, err := bridge.ResolveSecondary(cfg)
			require.ErrorIs(t, err, shared.ErrConfiguration)
		})
	}
}

func TestResolveSelectsSource(t *testing.T) {
	node, c := registry(t)
	node.Result("zks_getMainContract", mainContract)
	node.Result("zks_getBridgeContracts", map[string]any{
		"l1Erc20DefaultBridge": l1ERC20,
		"l2Erc20DefaultBridge": l2ERC20,
	})
	secondaryMain := "0x5fD9F73286b7E8683Bab45019C94553b93e015Cf"
	cfg := bridge.SecondaryConfig{MainContract: secondaryMain, ERC20BridgeL1: l1ERC20, ERC20BridgeL2: l2ERC20}

	set, err := bridge.Resolve(context.Background(), true, cfg, c)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(secondaryMain), set.MainContract)
	require.Equal(t, 0, node.TotalCalls())

	set, err = bridge.Resolve(context.Background(), false, cfg, c)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(mainContract), set.MainContract)
	require.Equal(t, 1, node.Calls("zks_getMainContract"))
	require.Equal(t, 1, node.Calls("zks_getBridgeContracts"))
}

func TestL1Counterpart(t *testing.T) {
	set, err := bridge.ResolveSecondary(bridge.SecondaryConfig{MainContract: mainContract, ERC20BridgeL1: l1ERC20, ERC20BridgeL2: l2ERC20})
	require.NoError(t, err)

	got, ok := set.L1Counterpart(common.HexToAddress(l2ERC20))
	require.True(t, ok)
	require.Equal(t, common.HexToAddress(l1ERC20), got)

	_, ok = set.L1Counterpart(common.HexToAddress(mainContract))
	require.False(t, ok)
	_, ok = set.L1Counterpart(common.Address{})
	require.False(t, ok)
}
