package connector

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/primev/withdraw-finalizer/pkg/shared"
)

const DefaultTimeout = 30 * time.Second

// Connector is a JSON-RPC client for one side of the bridge. Every error it
// returns wraps one of shared.ErrNetwork or shared.ErrRemoteCall.
type Connector struct {
	endpoint  shared.ChainEndpoint
	rpcClient *rpc.Client
	client    *ethclient.Client
}

type options struct {
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*options)

// WithTimeout bounds every request made over the HTTP transport.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New validates the endpoint and prepares an HTTP JSON-RPC client. No request
// is sent until the first call.
func New(endpoint shared.ChainEndpoint, opts ...Option) (*Connector, error) {
	if endpoint.URL == "" {
		return nil, fmt.Errorf("%w: %s rpc endpoint is not set", shared.ErrConfiguration, endpoint.Role)
	}
	u, err := url.Parse(endpoint.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s rpc endpoint: %w", shared.ErrConfiguration, endpoint.Role, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s rpc endpoint %q is not an http(s) url", shared.ErrConfiguration, endpoint.Role, endpoint.URL)
	}

	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	rpcClient, err := rpc.DialOptions(context.Background(), endpoint.URL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s rpc client: %w", shared.ErrConfiguration, endpoint.Role, err)
	}
	return &Connector{
		endpoint:  endpoint,
		rpcClient: rpcClient,
		client:    ethclient.NewClient(rpcClient),
	}, nil
}

func (c *Connector) Endpoint() shared.ChainEndpoint {
	return c.endpoint
}

func (c *Connector) Close() {
	c.rpcClient.Close()
}

func (c *Connector) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, c.wrap("eth_chainId", err)
	}
	return id, nil
}

// Balance returns the native token balance of account at the latest block.
func (c *Connector) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, c.wrap("eth_getBalance", err)
	}
	return bal, nil
}

// Call performs a read-only call of fn on contract and returns the raw return
// data.
func (c *Connector) Call(ctx context.Context, contract common.Address, fn *w3.Func, args ...any) ([]byte, error) {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode call to %s: %w", shared.ErrRemoteCall, contract.Hex(), err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, c.wrap("eth_call", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s eth_call to %s returned no data", shared.ErrRemoteCall, c.endpoint.Role, contract.Hex())
	}
	return out, nil
}

// CallContext issues a raw JSON-RPC request, for namespaces ethclient does not
// cover.
func (c *Connector) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if err := c.rpcClient.CallContext(ctx, result, method, args...); err != nil {
		return c.wrap(method, err)
	}
	return nil
}

func (c *Connector) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, c.wrap("eth_getTransactionCount", err)
	}
	return nonce, nil
}

// NonceAt returns the nonce at blockNumber, or at the latest block when nil.
func (c *Connector) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	nonce, err := c.client.NonceAt(ctx, account, blockNumber)
	if err != nil {
		return 0, c.wrap("eth_getTransactionCount", err)
	}
	return nonce, nil
}

func (c *Connector) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, c.wrap("eth_maxPriorityFeePerGas", err)
	}
	return tip, nil
}

func (c *Connector) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, c.wrap("eth_gasPrice", err)
	}
	return price, nil
}

func (c *Connector) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, c.wrap("eth_estimateGas", err)
	}
	return gas, nil
}

func (c *Connector) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return c.wrap("eth_sendRawTransaction", err)
	}
	return nil
}

// TransactionReceipt returns ethereum.NotFound unwrapped while the transaction
// is pending.
func (c *Connector) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err == ethereum.NotFound {
		return nil, err
	}
	if err != nil {
		return nil, c.wrap("eth_getTransactionReceipt", err)
	}
	return receipt, nil
}

func (c *Connector) wrap(method string, err error) error {
	return Classify(fmt.Sprintf("%s %s", c.endpoint.Role, method), err)
}
