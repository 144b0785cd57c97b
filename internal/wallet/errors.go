package wallet

import (
	"errors"

	"github.com/ethereum/go-ethereum/rpc"
)

// CodeUserRejected is the EIP-1193 error code for a request the wallet
// holder declined.
const CodeUserRejected = 4001

// RPCError is a wallet error carrying a JSON-RPC style code.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// Is matches any RPCError with the same code.
func (e *RPCError) Is(target error) bool {
	t, ok := target.(*RPCError)
	return ok && t.Code == e.Code
}

var _ rpc.Error = (*RPCError)(nil)

var (
	ErrUserRejected   = &RPCError{Code: CodeUserRejected, Message: "user rejected the request"}
	ErrNoAccounts     = errors.New("wallet has no accounts")
	ErrNotConnected   = errors.New("account is not connected")
	ErrUnknownAccount = errors.New("account not found in keystore")
)

// IsUserRejected reports whether err is a user rejection, either ours or a
// code 4001 error returned by a remote signer.
func IsUserRejected(err error) bool {
	var rerr rpc.Error
	return errors.As(err, &rerr) && rerr.ErrorCode() == CodeUserRejected
}
