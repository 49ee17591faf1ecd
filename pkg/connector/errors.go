package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/primev/withdraw-finalizer/pkg/shared"
)

// Classify wraps err from a request named op with shared.ErrNetwork or
// shared.ErrRemoteCall. Errors already carrying a taxonomy sentinel are only
// annotated.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if hasSentinel(err) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %w", shared.ErrRemoteCall, op, &RemoteError{Message: RemoteMessage(err), Err: err})
	}

	var httpErr rpc.HTTPError
	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr),
		errors.As(err, &urlErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %w", shared.ErrNetwork, op, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %s: malformed response: %w", shared.ErrRemoteCall, op, err)
	}
	return fmt.Errorf("%w: %s: %w", shared.ErrRemoteCall, op, err)
}

// RemoteMessage extracts the node's message from err, appending the decoded
// revert reason when the node returned revert data.
func RemoteMessage(err error) string {
	msg := err.Error()
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return msg
	}
	data, ok := dataErr.ErrorData().(string)
	if !ok || !strings.HasPrefix(data, "0x") {
		return msg
	}
	raw, decErr := hexutil.Decode(data)
	if decErr != nil {
		return msg
	}
	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil || reason == "" {
		return msg
	}
	if strings.Contains(msg, reason) {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, reason)
}

// RemoteError carries the message a node answered a request with.
type RemoteError struct {
	Message string
	Err     error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.Err }

func hasSentinel(err error) bool {
	for _, s := range []error{
		shared.ErrConfiguration,
		shared.ErrNetwork,
		shared.ErrRemoteCall,
		shared.ErrNotFound,
		shared.ErrNotReady,
		shared.ErrAlreadyFinalized,
		shared.ErrSignature,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
