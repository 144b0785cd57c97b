package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// ChainReader is the part of ethclient.Client the keystore wallet uses.
type ChainReader interface {
	NetworkID(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type KeystoreOptions struct {
	// Preferred is offered first on connect when present in the keystore.
	Preferred    common.Address
	PollInterval time.Duration
}

// Keystore is a Provider backed by an encrypted key directory.
type Keystore struct {
	ks           *keystore.KeyStore
	chain        ChainReader
	approver     Approver
	preferred    common.Address
	pollInterval time.Duration

	feed event.Feed

	mu      sync.Mutex
	active  common.Address
	network string
}

// OpenKeystore opens (or creates) a key directory with standard scrypt
// parameters.
func OpenKeystore(dir string) *keystore.KeyStore {
	return keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
}

func NewKeystore(ks *keystore.KeyStore, chain ChainReader, approver Approver, opts KeystoreOptions) *Keystore {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Keystore{
		ks:           ks,
		chain:        chain,
		approver:     approver,
		preferred:    opts.Preferred,
		pollInterval: opts.PollInterval,
	}
}

func (k *Keystore) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	accs := k.ks.Accounts()
	if len(accs) == 0 {
		return nil, ErrNoAccounts
	}

	k.mu.Lock()
	active := k.active
	k.mu.Unlock()
	if active != (common.Address{}) {
		return orderAccounts(accs, active), nil
	}

	selected := accs[0].Address
	for _, a := range accs {
		if a.Address == k.preferred {
			selected = a.Address
			break
		}
	}
	if err := k.unlock(ctx, selected); err != nil {
		return nil, err
	}
	return orderAccounts(accs, selected), nil
}

func (k *Keystore) NetworkID(ctx context.Context) (string, error) {
	id, err := k.chain.NetworkID(ctx)
	if err != nil {
		return "", fmt.Errorf("network id: %w", err)
	}
	return id.String(), nil
}

func (k *Keystore) SubscribeEvents(ch chan<- Event) event.Subscription {
	return k.feed.Subscribe(ch)
}

// SelectAccount switches the connected account, asking for approval and
// the key's passphrase, and notifies subscribers.
func (k *Keystore) SelectAccount(ctx context.Context, account common.Address) error {
	if !k.ks.HasAddress(account) {
		return ErrUnknownAccount
	}
	k.mu.Lock()
	prev := k.active
	k.mu.Unlock()
	if prev == account {
		return nil
	}
	if err := k.unlock(ctx, account); err != nil {
		return err
	}
	if prev != (common.Address{}) {
		_ = k.ks.Lock(prev)
	}
	k.feed.Send(Event{Kind: AccountsChanged, Accounts: orderAccounts(k.ks.Accounts(), account)})
	return nil
}

// Disconnect locks the active key and tells subscribers no account is
// available any more.
func (k *Keystore) Disconnect() error {
	k.mu.Lock()
	prev := k.active
	k.active = common.Address{}
	k.mu.Unlock()
	if prev == (common.Address{}) {
		return nil
	}
	if err := k.ks.Lock(prev); err != nil {
		return fmt.Errorf("lock %s: %w", prev.Hex(), err)
	}
	k.feed.Send(Event{Kind: AccountsChanged})
	return nil
}

func (k *Keystore) Transactor(ctx context.Context, from common.Address, label string) (*bind.TransactOpts, error) {
	k.mu.Lock()
	active := k.active
	k.mu.Unlock()
	if from != active || from == (common.Address{}) {
		return nil, ErrNotConnected
	}
	chainID, err := k.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(k.ks, accounts.Account{Address: from}, chainID)
	if err != nil {
		return nil, err
	}
	sign := opts.Signer
	opts.Signer = func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		req := Request{Kind: RequestTransaction, Account: addr, Label: label, To: tx.To(), Value: tx.Value()}
		if err := k.approver.Approve(ctx, req); err != nil {
			return nil, err
		}
		return sign(addr, tx)
	}
	opts.Context = ctx
	return opts, nil
}

func (k *Keystore) unlock(ctx context.Context, account common.Address) error {
	if err := k.approver.Approve(ctx, Request{Kind: RequestConnect, Account: account}); err != nil {
		return err
	}
	pass, err := k.approver.Passphrase(ctx, account)
	if err != nil {
		return err
	}
	if err := k.ks.Unlock(accounts.Account{Address: account}, pass); err != nil {
		return fmt.Errorf("unlock %s: %w", account.Hex(), err)
	}
	k.mu.Lock()
	k.active = account
	k.mu.Unlock()
	return nil
}

// Run turns keystore wallet events and network id changes into
// notifications until ctx ends.
func (k *Keystore) Run(ctx context.Context) error {
	walletEvents := make(chan accounts.WalletEvent, 16)
	sub := k.ks.Subscribe(walletEvents)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(k.pollInterval)
	defer ticker.Stop()

	k.pollNetwork(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case ev := <-walletEvents:
			k.walletEvent(ev)
		case <-ticker.C:
			k.pollNetwork(ctx)
		}
	}
}

func (k *Keystore) walletEvent(ev accounts.WalletEvent) {
	if ev.Kind != accounts.WalletDropped {
		return
	}
	k.mu.Lock()
	dropped := false
	for _, a := range ev.Wallet.Accounts() {
		if a.Address == k.active && a.Address != (common.Address{}) {
			k.active = common.Address{}
			dropped = true
		}
	}
	k.mu.Unlock()
	if dropped {
		slog.Info("wallet.account_dropped")
		k.feed.Send(Event{Kind: AccountsChanged})
	}
}

func (k *Keystore) pollNetwork(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	id, err := k.NetworkID(pctx)
	if err != nil {
		slog.Debug("wallet.network_poll", "err", err)
		return
	}
	k.mu.Lock()
	prev := k.network
	k.network = id
	k.mu.Unlock()
	if prev != "" && prev != id {
		slog.Info("wallet.network_changed", "from", prev, "to", id)
		k.feed.Send(Event{Kind: NetworkChanged, NetworkID: id})
	}
}

func orderAccounts(accs []accounts.Account, first common.Address) []common.Address {
	out := make([]common.Address, 0, len(accs))
	out = append(out, first)
	for _, a := range accs {
		if a.Address != first {
			out = append(out, a.Address)
		}
	}
	return out
}
