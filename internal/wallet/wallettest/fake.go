// Package wallettest provides an in-memory wallet.Provider for tests.
package wallettest

import (
	"context"
	"sync"

	"roamlotto/internal/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Fake is a scriptable wallet. Zero value has no accounts.
type Fake struct {
	mu sync.Mutex

	Accounts   []common.Address
	Network    string
	RequestErr error
	// SignErr is returned from the transactor's signer, e.g.
	// wallet.ErrUserRejected to model a declined confirmation.
	SignErr error

	Requests    int
	Labels      []string
	feed        event.Feed
	disconnects int
}

func (f *Fake) RequestAccounts(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests++
	if f.RequestErr != nil {
		return nil, f.RequestErr
	}
	return append([]common.Address(nil), f.Accounts...), nil
}

func (f *Fake) NetworkID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Network, nil
}

func (f *Fake) SubscribeEvents(ch chan<- wallet.Event) event.Subscription {
	return f.feed.Subscribe(ch)
}

// Emit pushes a notification to subscribers and reports how many got it.
func (f *Fake) Emit(ev wallet.Event) int {
	return f.feed.Send(ev)
}

func (f *Fake) Transactor(ctx context.Context, from common.Address, label string) (*bind.TransactOpts, error) {
	f.mu.Lock()
	f.Labels = append(f.Labels, label)
	f.mu.Unlock()
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(_ common.Address, tx *types.Transaction) (*types.Transaction, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.SignErr != nil {
				return nil, f.SignErr
			}
			return tx, nil
		},
	}, nil
}

func (f *Fake) SelectAccount(_ context.Context, account common.Address) error {
	f.mu.Lock()
	f.Accounts = append([]common.Address{account}, f.Accounts...)
	f.mu.Unlock()
	f.feed.Send(wallet.Event{Kind: wallet.AccountsChanged, Accounts: []common.Address{account}})
	return nil
}

func (f *Fake) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *Fake) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

var _ wallet.Provider = (*Fake)(nil)
