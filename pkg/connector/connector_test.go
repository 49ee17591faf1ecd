package connector_test

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"github.com/primev/withdraw-finalizer/pkg/connector"
	"github.com/primev/withdraw-finalizer/pkg/rpctest"
	"github.com/primev/withdraw-finalizer/pkg/shared"
	"github.com/stretchr/testify/require"
)

var (
	account  = common.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	contract = common.HexToAddress("0x1908e2BF4a88F91E4eF0DC72f02b8Ea36BEa2319")
	l1Bridge = w3.MustNewFunc("l1Bridge()", "address")
)

func TestNewRejectsInvalidEndpoints(t *testing.T) {
	for _, url := range []string{"", "://bad", "ws://localhost:8546", "localhost:8545", "https://"} {
		_, err := connector.New(shared.ChainEndpoint{URL: url, Role: shared.L1})
		require.ErrorIs(t, err, shared.ErrConfiguration, url)
	}
}

func TestNewIsLazy(t *testing.T) {
	node := rpctest.NewNode(t)
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, 0, node.TotalCalls())
	require.Equal(t, shared.L2, c.Endpoint().Role)
}

func TestBalance(t *testing.T) {
	node := rpctest.NewL1(t, 11155111)
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L1})
	require.NoError(t, err)

	bal, err := c.Balance(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Cmp(big.NewInt(1e18)))
	require.Equal(t, 1, node.Calls("eth_getBalance"))
}

func TestBalanceNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := connector.New(shared.ChainEndpoint{URL: url, Role: shared.L1}, connector.WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = c.Balance(context.Background(), account)
	require.ErrorIs(t, err, shared.ErrNetwork)
	require.NotErrorIs(t, err, shared.ErrRemoteCall)
}

func TestHTTPStatusIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := connector.New(shared.ChainEndpoint{URL: server.URL, Role: shared.L2})
	require.NoError(t, err)
	_, err = c.ChainID(context.Background())
	require.ErrorIs(t, err, shared.ErrNetwork)
}

func TestCall(t *testing.T) {
	node := rpctest.NewNode(t)
	want := common.HexToAddress("0x57891966931Eb4Bb6FB81430E6cE0A03AAbDe063")
	node.HandleCall(l1Bridge, func(to common.Address, input []byte) ([]byte, error) {
		require.Equal(t, contract, to)
		return common.LeftPadBytes(want.Bytes(), 32), nil
	})
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)

	out, err := c.Call(context.Background(), contract, l1Bridge)
	require.NoError(t, err)
	var got common.Address
	require.NoError(t, l1Bridge.DecodeReturns(out, &got))
	require.Equal(t, want, got)
}

func TestCallRevertCarriesReason(t *testing.T) {
	node := rpctest.NewNode(t)
	node.HandleCall(l1Bridge, func(common.Address, []byte) ([]byte, error) {
		return nil, rpctest.Revert("pw")
	})
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)

	_, err = c.Call(context.Background(), contract, l1Bridge)
	require.ErrorIs(t, err, shared.ErrRemoteCall)
	var remote *connector.RemoteError
	require.True(t, errors.As(err, &remote))
	require.Contains(t, remote.Message, "execution reverted")
	require.Contains(t, remote.Message, "pw")
}

func TestCallEmptyResult(t *testing.T) {
	node := rpctest.NewNode(t)
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)

	_, err = c.Call(context.Background(), contract, l1Bridge)
	require.ErrorIs(t, err, shared.ErrRemoteCall)
}

func TestCallContextUnknownMethod(t *testing.T) {
	node := rpctest.NewNode(t)
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)

	var out common.Address
	err = c.CallContext(context.Background(), &out, "zks_getMainContract")
	require.ErrorIs(t, err, shared.ErrRemoteCall)
	require.Contains(t, err.Error(), "zks_getMainContract")
}

func TestCallContextMalformedResult(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Result("zks_getMainContract", 42)
	c, err := connector.New(shared.ChainEndpoint{URL: node.URL(), Role: shared.L2})
	require.NoError(t, err)

	var out common.Address
	err = c.CallContext(context.Background(), &out, "zks_getMainContract")
	require.ErrorIs(t, err, shared.ErrRemoteCall)
}

func TestClassifyKeepsExistingSentinel(t *testing.T) {
	err := connector.Classify("op", shared.ErrNotReady)
	require.ErrorIs(t, err, shared.ErrNotReady)
	require.NotErrorIs(t, err, shared.ErrRemoteCall)
	require.NoError(t, connector.Classify("op", nil))
}
