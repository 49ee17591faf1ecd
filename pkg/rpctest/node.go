// Package rpctest provides an in-process JSON-RPC node for tests.
package rpctest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

// Handler answers one JSON-RPC method. Returning an *Error produces a
// JSON-RPC error object, any other error an internal error.
type Handler func(params []json.RawMessage) (any, error)

// CallHandler answers an eth_call or eth_estimateGas for one function
// selector.
type CallHandler func(to common.Address, input []byte) ([]byte, error)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Revert builds the error a node returns for a call reverted with reason.
func Revert(reason string) *Error {
	data, err := errorFunc.EncodeArgs(reason)
	if err != nil {
		panic(err)
	}
	return &Error{Code: 3, Message: "execution reverted", Data: hexutil.Encode(data)}
}

var errorFunc = w3.MustNewFunc("Error(string)", "")

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Node is a scripted JSON-RPC node served over httptest.
type Node struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[[4]byte]CallHandler
	counts   map[string]int
	sent     []*types.Transaction
}

// NewNode starts a node with no methods registered. It is closed when the
// test finishes.
func NewNode(t testing.TB) *Node {
	n := &Node{
		handlers: make(map[string]Handler),
		calls:    make(map[[4]byte]CallHandler),
		counts:   make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.server.Close)
	n.Handle("eth_call", n.dispatchCall)
	return n
}

// NewL1 starts a node preloaded with the methods needed to send a transaction.
func NewL1(t testing.TB, chainID int64) *Node {
	n := NewNode(t)
	n.Result("eth_chainId", hexutil.EncodeBig(big.NewInt(chainID)))
	n.Result("eth_getTransactionCount", "0x7")
	n.Result("eth_gasPrice", "0x3b9aca00")
	n.Result("eth_maxPriorityFeePerGas", "0x5f5e100")
	n.Result("eth_estimateGas", "0x30d40")
	n.Result("eth_getBalance", "0xde0b6b3a7640000")
	n.Handle("eth_sendRawTransaction", n.sendRawTransaction)
	return n
}

func (n *Node) URL() string {
	return n.server.URL
}

func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Result registers a method that always answers v.
func (n *Node) Result(method string, v any) {
	n.Handle(method, func([]json.RawMessage) (any, error) { return v, nil })
}

// Fail registers a method that always answers with err.
func (n *Node) Fail(method string, err *Error) {
	n.Handle(method, func([]json.RawMessage) (any, error) { return nil, err })
}

// HandleCall registers h for eth_call requests selecting fn.
func (n *Node) HandleCall(fn *w3.Func, h CallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[fn.Selector] = h
}

// Calls returns how many times method was requested.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[method]
}

// TotalCalls returns the number of requests of any method.
func (n *Node) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.counts {
		total += c
	}
	return total
}

// Sent returns the transactions received through eth_sendRawTransaction.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var reqs []request
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]response, 0, len(reqs))
		for _, req := range reqs {
			resps = append(resps, n.handle(req))
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(n.handle(req))
}

func (n *Node) handle(req request) response {
	n.mu.Lock()
	n.counts[req.Method]++
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &Error{Code: -32601, Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method)}
		return resp
	}
	result, err := h(req.Params)
	if err != nil {
		if rpcErr, ok := err.(*Error); ok {
			resp.Error = rpcErr
		} else {
			resp.Error = &Error{Code: -32603, Message: err.Error()}
		}
		return resp
	}
	if result == nil {
		resp.Result = json.RawMessage("null")
	} else {
		resp.Result = result
	}
	return resp
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (a callArgs) input() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

func (n *Node) dispatchCall(params []json.RawMessage) (any, error) {
	if len(params) == 0 {
		return nil, &Error{Code: -32602, Message: "missing call arguments"}
	}
	var args callArgs
	if err := json.Unmarshal(params[0], &args); err != nil {
		return nil, &Error{Code: -32602, Message: err.Error()}
	}
	input := args.input()
	if args.To == nil || len(input) < 4 {
		return hexutil.Bytes{}, nil
	}
	var sel [4]byte
	copy(sel[:], input[:4])

	n.mu.Lock()
	h, ok := n.calls[sel]
	n.mu.Unlock()
	if !ok {
		return hexutil.Bytes{}, nil
	}
	out, err := h(*args.To, input)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(out), nil
}

func (n *Node) sendRawTransaction(params []json.RawMessage) (any, error) {
	if len(params) != 1 {
		return nil, &Error{Code: -32602, Message: "expected one raw transaction"}
	}
	var raw hexutil.Bytes
	if err := json.Unmarshal(params[0], &raw); err != nil {
		return nil, &Error{Code: -32602, Message: err.Error()}
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &Error{Code: -32602, Message: err.Error()}
	}
	n.mu.Lock()
	n.sent = append(n.sent, tx)
	n.mu.Unlock()
	return tx.Hash(), nil
}
