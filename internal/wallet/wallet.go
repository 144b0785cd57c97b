// Package wallet is the boundary to the account holder's wallet: account
// access, network identity, change notifications and transaction signing.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	NetworkChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case NetworkChanged:
		return "networkChanged"
	default:
		return "unknown"
	}
}

// Event is pushed to subscribers whenever the wallet's account selection or
// network changes. Accounts is empty when the wallet disconnected.
type Event struct {
	Kind      EventKind
	Accounts  []common.Address
	NetworkID string
}

// Provider is what the session manager and the action gateway need from a
// wallet.
type Provider interface {
	// RequestAccounts asks the holder for account access. The first
	// returned account is the selected one.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	NetworkID(ctx context.Context) (string, error)
	SubscribeEvents(ch chan<- Event) event.Subscription
	// Transactor returns signing options for from. Signing asks the holder
	// for approval; label names the action in the prompt.
	Transactor(ctx context.Context, from common.Address, label string) (*bind.TransactOpts, error)
	SelectAccount(ctx context.Context, account common.Address) error
	Disconnect() error
}

type RequestKind string

const (
	RequestConnect     RequestKind = "connect"
	RequestTransaction RequestKind = "transaction"
)

// Request describes something the holder has to approve.
type Request struct {
	Kind    RequestKind
	Account common.Address
	Label   string
	To      *common.Address
	Value   *big.Int
}

func (r Request) String() string {
	switch r.Kind {
	case RequestConnect:
		return fmt.Sprintf("connect account %s", r.Account.Hex())
	case RequestTransaction:
		to := "contract creation"
		if r.To != nil {
			to = r.To.Hex()
		}
		s := fmt.Sprintf("sign %s from %s to %s", r.Label, r.Account.Hex(), to)
		if r.Value != nil && r.Value.Sign() > 0 {
			s += fmt.Sprintf(" (value %s wei)", r.Value)
		}
		return s
	default:
		return string(r.Kind)
	}
}

// Approver stands in for the wallet's confirmation dialog.
type Approver interface {
	// Approve returns ErrUserRejected when the holder declines.
	Approve(ctx context.Context, req Request) error
	Passphrase(ctx context.Context, account common.Address) (string, error)
}

// StaticApprover approves everything with a fixed passphrase. Meant for
// unattended development setups.
type StaticApprover struct {
	Secret string
}

func (a StaticApprover) Approve(context.Context, Request) error { return nil }

func (a StaticApprover) Passphrase(context.Context, common.Address) (string, error) {
	return a.Secret, nil
}
