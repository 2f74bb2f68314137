package ledger

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

const revertPrefix = "execution reverted"

// RevertReason extracts the contract revert reason from a node error.
// It prefers the ABI-encoded revert data and falls back to the message text.
// The second result is false when err is not a revert.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(s); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertPrefix)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[idx+len(revertPrefix):], ":")
	return strings.TrimSpace(reason), true
}

// TxError maps a failed submission to a structured error. Rejections by the
// signing agent keep their rejected classification; reverts carry the reason.
func TxError(method string, err error) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 4001 {
		return agroerr.WithCause(agroerr.ErrUserRejected, err)
	}

	if reason, ok := RevertReason(err); ok {
		return revertError(method, reason, err)
	}
	return agroerr.Wrap(err, "submitting %s", method)
}

func revertError(method, reason string, cause error) error {
	msg := method + " reverted"
	if reason != "" {
		msg += ": " + reason
	}
	return &agroerr.AgroError{
		Code:     agroerr.ErrTransactionFailed.Code,
		Message:  msg,
		Details:  map[string]string{"reason": reason},
		Cause:    cause,
		ExitCode: agroerr.ErrTransactionFailed.ExitCode,
	}
}
