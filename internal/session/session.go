// Package session tracks the wallet connection: which account is connected,
// on which network, and how wallet notifications change that.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"roamlotto/internal/logging"
	"roamlotto/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNetworkMismatch = errors.New("wallet is connected to the wrong network")
	ErrUserRejected    = wallet.ErrUserRejected
)

// State is a snapshot of the session.
type State struct {
	Address      common.Address `json:"-"`
	Connected    bool           `json:"connected"`
	NetworkID    string         `json:"network_id,omitempty"`
	NetworkError string         `json:"network_error,omitempty"`
}

// AddressHex is "" while no account is connected.
func (s State) AddressHex() string {
	if s.Address == (common.Address{}) {
		return ""
	}
	return s.Address.Hex()
}

// Listener is called after every state change, outside the manager lock.
type Listener func(ctx context.Context, s State)

type Options struct {
	ExpectedNetworkID string
	// NetworkName is shown in the mismatch message, e.g. "Localhost:8545".
	NetworkName string
}

// Manager owns the single wallet session of the daemon.
type Manager struct {
	provider wallet.Provider
	opts     Options

	mu        sync.Mutex
	state     State
	listening bool
	listeners []Listener
}

func NewManager(p wallet.Provider, opts Options) *Manager {
	if opts.NetworkName == "" {
		opts.NetworkName = "network " + opts.ExpectedNetworkID
	}
	return &Manager{provider: p, opts: opts}
}

func (m *Manager) OnChange(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect asks the wallet for account access and validates its network.
// A declined request returns ErrUserRejected and changes nothing.
func (m *Manager) Connect(ctx context.Context) error {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		if wallet.IsUserRejected(err) {
			logging.From(ctx).Info("session.connect_rejected")
			return ErrUserRejected
		}
		return fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return wallet.ErrNoAccounts
	}

	networkID, err := m.provider.NetworkID(ctx)
	if err != nil {
		return err
	}
	if networkID != m.opts.ExpectedNetworkID {
		msg := "Please connect your wallet to " + m.opts.NetworkName
		m.update(ctx, func(s *State) {
			*s = State{NetworkID: networkID, NetworkError: msg}
		})
		logging.From(ctx).Warn("session.network_mismatch", "want", m.opts.ExpectedNetworkID, "got", networkID)
		return fmt.Errorf("%w: got %s, want %s", ErrNetworkMismatch, networkID, m.opts.ExpectedNetworkID)
	}

	m.mu.Lock()
	m.listening = true
	m.mu.Unlock()
	m.update(ctx, func(s *State) {
		*s = State{Address: accounts[0], Connected: true, NetworkID: networkID}
	})
	logging.From(ctx).Info("session.connected", "address", accounts[0].Hex(), "network", networkID)
	return nil
}

// Disconnect drops the account at the wallet and resets the session.
func (m *Manager) Disconnect(ctx context.Context) error {
	if err := m.provider.Disconnect(); err != nil {
		return err
	}
	m.Reset(ctx)
	return nil
}

// SelectAccount asks the wallet to switch accounts. The session follows
// through the resulting notification.
func (m *Manager) SelectAccount(ctx context.Context, account common.Address) error {
	if !m.State().Connected {
		return wallet.ErrNotConnected
	}
	err := m.provider.SelectAccount(ctx, account)
	if wallet.IsUserRejected(err) {
		return ErrUserRejected
	}
	return err
}

func (m *Manager) DismissNetworkError(ctx context.Context) {
	m.update(ctx, func(s *State) { s.NetworkError = "" })
}

// Reset returns the session to disconnected.
func (m *Manager) Reset(ctx context.Context) {
	m.update(ctx, func(s *State) { *s = State{} })
}

// Handle applies one wallet notification. Notifications are ignored until
// the first successful connect, and an account change does not revive a
// reset session.
func (m *Manager) Handle(ctx context.Context, ev wallet.Event) {
	m.mu.Lock()
	listening, connected := m.listening, m.state.Connected
	m.mu.Unlock()
	if !listening {
		return
	}

	switch ev.Kind {
	case wallet.AccountsChanged:
		if len(ev.Accounts) == 0 {
			logging.From(ctx).Info("session.accounts_cleared")
			m.Reset(ctx)
			return
		}
		if !connected {
			// a reset session only comes back through Connect, which checks the network
			logging.From(ctx).Debug("session.account_changed.ignored", "address", ev.Accounts[0].Hex())
			return
		}
		logging.From(ctx).Info("session.account_changed", "address", ev.Accounts[0].Hex())
		m.update(ctx, func(s *State) {
			s.Address = ev.Accounts[0]
			s.Connected = true
		})
	case wallet.NetworkChanged:
		logging.From(ctx).Info("session.network_changed", "network", ev.NetworkID)
		m.Reset(ctx)
	}
}

// Run feeds wallet notifications into Handle until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	events := make(chan wallet.Event, 16)
	sub := m.provider.SubscribeEvents(events)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case ev := <-events:
			m.Handle(ctx, ev)
		}
	}
}

func (m *Manager) update(ctx context.Context, fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	s := m.state
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l(ctx, s)
	}
}
