package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AddressSet holds the main contract and the token bridges of a deployment.
type AddressSet struct {
	MainContract  common.Address `json:"mainContract"`
	ERC20BridgeL1 common.Address `json:"erc20BridgeL1"`
	ERC20BridgeL2 common.Address `json:"erc20BridgeL2"`
	WETHBridgeL1  common.Address `json:"wethBridgeL1"`
	WETHBridgeL2  common.Address `json:"wethBridgeL2"`
}

func (s AddressSet) MarshalZerologObject(e *zerolog.Event) {
	e.Str("main_contract", s.MainContract.Hex()).
		Str("erc20_bridge_l1", s.ERC20BridgeL1.Hex()).
		Str("erc20_bridge_l2", s.ERC20BridgeL2.Hex()).
		Str("weth_bridge_l1", s.WETHBridgeL1.Hex()).
		Str("weth_bridge_l2", s.WETHBridgeL2.Hex())
}

// L1Counterpart returns the L1 bridge paired with the given L2 bridge, if the
// set knows it.
func (s AddressSet) L1Counterpart(l2Bridge common.Address) (common.Address, bool) {
	switch {
	case l2Bridge == (common.Address{}):
		return common.Address{}, false
	case l2Bridge == s.ERC20BridgeL2:
		return s.ERC20BridgeL1, true
	case l2Bridge == s.WETHBridgeL2 && s.WETHBridgeL1 != (common.Address{}):
		return s.WETHBridgeL1, true
	}
	return common.Address{}, false
}

// SecondaryConfig carries the addresses of a deployment that the L2 registry
// does not describe. WETH bridges are optional.
type SecondaryConfig struct {
	MainContract  string `yaml:"main_contract_address"`
	ERC20BridgeL1 string `yaml:"l1_erc20_contract_address"`
	ERC20BridgeL2 string `yaml:"l2_erc20_contract_address"`
	WETHBridgeL1  string `yaml:"l1_weth_contract_address"`
	WETHBridgeL2  string `yaml:"l2_weth_contract_address"`
}

// Registry is the L2 node namespace exposing the canonical contract addresses.
type Registry interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

type bridgeContracts struct {
	L1ERC20DefaultBridge *common.Address `json:"l1Erc20DefaultBridge"`
	L2ERC20DefaultBridge *common.Address `json:"l2Erc20DefaultBridge"`
	L1WETHBridge         *common.Address `json:"l1WethBridge"`
	L2WETHBridge         *common.Address `json:"l2WethBridge"`
}

// Resolve picks the address source for the run: the configured secondary
// chain deployment, or the L2 registry.
func Resolve(ctx context.Context, onSecondaryChain bool, cfg SecondaryConfig, registry Registry) (AddressSet, error) {
	if onSecondaryChain {
		return ResolveSecondary(cfg)
	}
	return ResolveDefault(ctx, registry)
}

// ResolveDefault reads the deployment addresses from the L2 node registry.
func ResolveDefault(ctx context.Context, registry Registry) (AddressSet, error) {
	var main *common.Address
	if err := registry.CallContext(ctx, &main, "zks_getMainContract"); err != nil {
		return AddressSet{}, fmt.Errorf("failed to get main contract: %w", err)
	}
	if main == nil || *main == (common.Address{}) {
		return AddressSet{}, fmt.Errorf("%w: main contract is not deployed on this network", shared.ErrConfiguration)
	}

	var bridges bridgeContracts
	if err := registry.CallContext(ctx, &bridges, "zks_getBridgeContracts"); err != nil {
		return AddressSet{}, fmt.Errorf("failed to get bridge contracts: %w", err)
	}
	set := AddressSet{
		MainContract:  *main,
		ERC20BridgeL1: deref(bridges.L1ERC20DefaultBridge),
		ERC20BridgeL2: deref(bridges.L2ERC20DefaultBridge),
		WETHBridgeL1:  deref(bridges.L1WETHBridge),
		WETHBridgeL2:  deref(bridges.L2WETHBridge),
	}
	if set.ERC20BridgeL1 == (common.Address{}) || set.ERC20BridgeL2 == (common.Address{}) {
		return AddressSet{}, fmt.Errorf("%w: erc20 bridge is not deployed on this network", shared.ErrConfiguration)
	}
	if set.WETHBridgeL1 == (common.Address{}) || set.WETHBridgeL2 == (common.Address{}) {
		log.Warn().Msg("WETH bridge is not deployed on this network")
	}
	return set, nil
}

// ResolveSecondary builds the address set from configuration. A WETH bridge
// that is not supplied defaults to the ERC-20 bridge on the same layer, which
// only holds for deployments where one bridge serves both token classes.
func ResolveSecondary(cfg SecondaryConfig) (AddressSet, error) {
	main, err := parseAddress("main contract", cfg.MainContract, true)
	if err != nil {
		return AddressSet{}, err
	}
	erc20L1, err := parseAddress("L1 erc20 bridge", cfg.ERC20BridgeL1, true)
	if err != nil {
		return AddressSet{}, err
	}
	erc20L2, err := parseAddress("L2 erc20 bridge", cfg.ERC20BridgeL2, true)
	if err != nil {
		return AddressSet{}, err
	}
	wethL1, err := parseAddress("L1 weth bridge", cfg.WETHBridgeL1, false)
	if err != nil {
		return AddressSet{}, err
	}
	wethL2, err := parseAddress("L2 weth bridge", cfg.WETHBridgeL2, false)
	if err != nil {
		return AddressSet{}, err
	}
	if wethL1 == (common.Address{}) {
		wethL1 = erc20L1
	}
	if wethL2 == (common.Address{}) {
		wethL2 = erc20L2
	}
	return AddressSet{
		MainContract:  main,
		ERC20BridgeL1: erc20L1,
		ERC20BridgeL2: erc20L2,
		WETHBridgeL1:  wethL1,
		WETHBridgeL2:  wethL2,
	}, nil
}

func parseAddress(name, value string, required bool) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("%w: secondary chain %s address is required", shared.ErrConfiguration, name)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: secondary chain %s address %q is not a valid hex address", shared.ErrConfiguration, name, value)
	}
	return common.HexToAddress(value), nil
}

func deref(a *common.Address) common.Address {
	if a == nil {
		return common.Address{}
	}
	return *a
}
