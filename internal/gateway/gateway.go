// Package gateway runs the lottery's state-changing actions through one
// lifecycle: submit, await the receipt, classify the outcome, refresh the
// balance.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"roamlotto/internal/ether"
	"roamlotto/internal/journal"
	"roamlotto/internal/logging"
	"roamlotto/internal/notify"
	"roamlotto/internal/session"
	"roamlotto/internal/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

var (
	ErrNotConnected      = errors.New("no wallet session")
	ErrBusy              = errors.New("another transaction is still pending")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrSubmission        = errors.New("transaction could not be submitted")
	ErrReadFailure       = errors.New("could not read winnings")
	ErrUnknownAction     = errors.New("unknown action")
)

type Kind string

const (
	KindEnter   Kind = "enter"
	KindDraw    Kind = "draw"
	KindGetPaid Kind = "getPaid"
)

var kindOrder = map[Kind]int{KindEnter: 0, KindDraw: 1, KindGetPaid: 2}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindOrder[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return k, nil
}

type Phase string

const (
	PhaseSubmitting Phase = "submitting"
	PhaseConfirming Phase = "confirming"
	PhaseSettled    Phase = "settled"
	PhaseFailed     Phase = "failed"
	PhaseRejected   Phase = "rejected"
)

// PendingAction is an action between submission and its outcome. TxHash is
// set once the wallet accepted the transaction.
type PendingAction struct {
	ID        string       `json:"id"`
	Kind      Kind         `json:"kind"`
	Phase     Phase        `json:"phase"`
	TxHash    *common.Hash `json:"tx_hash,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// Outcome is how an action ended. Err is nil for PhaseSettled.
type Outcome struct {
	ID      string
	Kind    Kind
	Phase   Phase
	TxHash  common.Hash
	Receipt *types.Receipt
	Err     error
}

// Lottery is the contract surface the gateway drives.
type Lottery interface {
	Enter(opts *bind.TransactOpts) (*types.Transaction, error)
	Draw(opts *bind.TransactOpts) (*types.Transaction, error)
	GetPaid(opts *bind.TransactOpts) (*types.Transaction, error)
	ViewWinnings(opts *bind.CallOpts) (*big.Int, error)
}

// ReceiptWaiter blocks until tx is mined.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// BackendWaiter waits through bind.WaitMined.
type BackendWaiter struct {
	Backend bind.DeployBackend
}

func (w BackendWaiter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, w.Backend, tx)
}

type Session interface {
	State() session.State
}

type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

type Options struct {
	TicketPrice *big.Int
	// ReceiptTimeout bounds the wait for a receipt. Zero waits until ctx ends.
	ReceiptTimeout time.Duration
	ExplorerURL    string
}

type Gateway struct {
	session  Session
	wallet   wallet.Provider
	lotto    Lottery
	waiter   ReceiptWaiter
	journal  Recorder
	notifier notify.Notifier
	opts     Options

	mu         sync.Mutex
	pending    map[Kind]*PendingAction
	inFlight   bool
	txErr      string
	balance    string
	generation uint64
}

func New(s Session, w wallet.Provider, l Lottery, waiter ReceiptWaiter, opts Options) *Gateway {
	if opts.TicketPrice == nil {
		opts.TicketPrice = ether.MustParse("1")
	}
	return &Gateway{
		session:  s,
		wallet:   w,
		lotto:    l,
		waiter:   waiter,
		journal:  journal.Noop{},
		notifier: notify.Noop{},
		opts:     opts,
		pending:  make(map[Kind]*PendingAction),
		balance:  "0.0",
	}
}

func (g *Gateway) WithJournal(r Recorder) *Gateway {
	if r != nil {
		g.journal = r
	}
	return g
}

func (g *Gateway) WithNotifier(n notify.Notifier) *Gateway {
	if n != nil {
		g.notifier = n
	}
	return g
}

// Enter buys a ticket at the configured price.
func (g *Gateway) Enter(ctx context.Context) (Outcome, error) {
	return g.Do(ctx, KindEnter)
}

func (g *Gateway) Draw(ctx context.Context) (Outcome, error) {
	return g.Do(ctx, KindDraw)
}

func (g *Gateway) GetPaid(ctx context.Context) (Outcome, error) {
	return g.Do(ctx, KindGetPaid)
}

// Do runs one action to its outcome. Errors are only returned when the
// action could not start; how it ended is in Outcome.
func (g *Gateway) Do(ctx context.Context, kind Kind) (Outcome, error) {
	a, err := g.reserve(kind)
	if err != nil {
		return Outcome{}, err
	}
	return g.complete(ctx, a), nil
}

// Start reserves the gateway for kind and finishes the action in the
// background. The channel yields the outcome once.
func (g *Gateway) Start(ctx context.Context, kind Kind) (<-chan Outcome, error) {
	a, err := g.reserve(kind)
	if err != nil {
		return nil, err
	}
	done := make(chan Outcome, 1)
	go func() {
		done <- g.complete(ctx, a)
	}()
	return done, nil
}

// Begin checks that an action may start now without reserving anything.
func (g *Gateway) Begin(kind Kind) error {
	if _, ok := kindOrder[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
	if !g.session.State().Connected {
		return ErrNotConnected
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return ErrBusy
	}
	return nil
}

type attempt struct {
	st  session.State
	act *PendingAction
	gen uint64
}

func (g *Gateway) submitter(kind Kind) func(*bind.TransactOpts) (*types.Transaction, error) {
	switch kind {
	case KindEnter:
		return g.lotto.Enter
	case KindDraw:
		return g.lotto.Draw
	default:
		return g.lotto.GetPaid
	}
}

func (g *Gateway) reserve(kind Kind) (attempt, error) {
	if _, ok := kindOrder[kind]; !ok {
		return attempt{}, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
	st := g.session.State()
	if !st.Connected {
		return attempt{}, ErrNotConnected
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return attempt{}, ErrBusy
	}
	g.inFlight = true
	g.txErr = ""
	act := &PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Phase:     PhaseSubmitting,
		StartedAt: time.Now().UTC(),
	}
	g.pending[kind] = act
	return attempt{st: st, act: act, gen: g.generation}, nil
}

func (g *Gateway) complete(ctx context.Context, a attempt) Outcome {
	st, act, kind := a.st, a.act, a.act.Kind
	log := logging.From(ctx).With("action", string(kind), "action_id", act.ID, "account", st.Address.Hex())
	log.Info("gateway.submitting")

	tx, receipt, err := g.execute(ctx, st.Address, act, g.submitter(kind))
	out := Outcome{ID: act.ID, Kind: kind, Receipt: receipt}
	if tx != nil {
		out.TxHash = tx.Hash()
	}
	switch {
	case err == nil:
		out.Phase = PhaseSettled
	case wallet.IsUserRejected(err):
		out.Phase = PhaseRejected
		out.Err = wallet.ErrUserRejected
	default:
		out.Phase = PhaseFailed
		out.Err = err
	}

	g.mu.Lock()
	if cur, ok := g.pending[kind]; ok && cur.ID == act.ID {
		delete(g.pending, kind)
	}
	g.inFlight = false
	if out.Phase == PhaseFailed && a.gen == g.generation {
		g.txErr = out.Err.Error()
	}
	g.mu.Unlock()

	switch out.Phase {
	case PhaseRejected:
		log.Info("gateway.rejected")
		return out
	case PhaseFailed:
		log.Error("gateway.failed", "tx", out.TxHash.Hex(), "err", out.Err)
		g.notifier.NotifyAdmins(ctx, fmt.Sprintf("%s from %s failed: %v", kind, ether.ShortAddress(st.Address.Hex()), out.Err))
	case PhaseSettled:
		log.Info("gateway.settled", "tx", out.TxHash.Hex(), "block", receipt.BlockNumber)
		g.announce(ctx, st, out)
	}

	g.record(ctx, st, act, out)

	if kind == KindDraw || kind == KindGetPaid {
		g.ViewWinnings(ctx)
	}
	return out
}

func (g *Gateway) execute(ctx context.Context, from common.Address, act *PendingAction, submit func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, *types.Receipt, error) {
	opts, err := g.wallet.Transactor(ctx, from, string(act.Kind))
	if err != nil {
		return nil, nil, submissionError(err)
	}
	if act.Kind == KindEnter {
		opts.Value = new(big.Int).Set(g.opts.TicketPrice)
	}
	tx, err := submit(opts)
	if err != nil {
		return nil, nil, submissionError(err)
	}

	hash := tx.Hash()
	g.mu.Lock()
	act.Phase = PhaseConfirming
	act.TxHash = &hash
	g.mu.Unlock()

	wctx := ctx
	if g.opts.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, g.opts.ReceiptTimeout)
		defer cancel()
	}
	receipt, err := g.waiter.WaitMined(wctx, tx)
	if err != nil {
		return tx, nil, fmt.Errorf("%w: await receipt: %w", ErrSubmission, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return tx, receipt, ErrTransactionFailed
	}
	return tx, receipt, nil
}

func submissionError(err error) error {
	if wallet.IsUserRejected(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSubmission, err)
}

func (g *Gateway) announce(ctx context.Context, st session.State, out Outcome) {
	who := ether.ShortAddress(st.Address.Hex())
	link := TxLink(g.opts.ExplorerURL, out.TxHash)
	switch out.Kind {
	case KindDraw:
		g.notifier.NotifyGroup(ctx, fmt.Sprintf("The lottery was drawn by %s.\n%s", who, link))
	case KindGetPaid:
		g.notifier.NotifyGroup(ctx, fmt.Sprintf("%s claimed their winnings.\n%s", who, link))
	}
}

func (g *Gateway) record(ctx context.Context, st session.State, act *PendingAction, out Outcome) {
	e := journal.Entry{
		ID:         act.ID,
		Kind:       string(out.Kind),
		Account:    st.Address.Hex(),
		NetworkID:  st.NetworkID,
		Outcome:    string(out.Phase),
		StartedAt:  act.StartedAt,
		FinishedAt: time.Now().UTC(),
	}
	if out.TxHash != (common.Hash{}) {
		e.TxHash = out.TxHash.Hex()
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if out.Receipt != nil {
		if out.Receipt.BlockNumber != nil {
			e.BlockNumber = out.Receipt.BlockNumber.Uint64()
		}
		e.GasUsed = out.Receipt.GasUsed
	}
	if g.opts.TicketPrice != nil && out.Kind == KindEnter {
		e.ValueWei = g.opts.TicketPrice.String()
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.journal.Record(rctx, e); err != nil {
		logging.From(ctx).Warn("gateway.journal", "action_id", act.ID, "err", err)
	}
}

// ViewWinnings refreshes the balance snapshot for the session account. A
// failed read clears the snapshot to "" and is not reported.
func (g *Gateway) ViewWinnings(ctx context.Context) string {
	st := g.session.State()
	if !st.Connected {
		return g.Balance()
	}
	g.mu.Lock()
	gen := g.generation
	g.mu.Unlock()

	v, err := g.lotto.ViewWinnings(&bind.CallOpts{Context: ctx, From: st.Address})

	cur := g.session.State()
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation || !cur.Connected || cur.Address != st.Address {
		// the session moved on while reading; the result belongs to another account
		logging.From(ctx).Debug("gateway.view_winnings.stale", "account", st.Address.Hex())
		return g.balance
	}
	if err != nil {
		logging.From(ctx).Debug("gateway.view_winnings", "err", fmt.Errorf("%w: %w", ErrReadFailure, err))
		g.balance = ""
		return g.balance
	}
	g.balance = ether.Format(v)
	return g.balance
}

// SessionChanged keeps the balance in step with the session. Register it
// with session.Manager.OnChange.
func (g *Gateway) SessionChanged(ctx context.Context, s session.State) {
	if !s.Connected {
		g.Reset()
		return
	}
	g.ViewWinnings(ctx)
}

// Reset forgets pending actions, the displayed error and the balance. An
// action still in flight finishes but no longer updates the display.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = make(map[Kind]*PendingAction)
	g.txErr = ""
	g.balance = "0.0"
	g.generation++
}

func (g *Gateway) DismissError() {
	g.mu.Lock()
	g.txErr = ""
	g.mu.Unlock()
}

func (g *Gateway) Balance() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	Pending          []PendingAction `json:"pending"`
	TransactionError string          `json:"transaction_error,omitempty"`
	Balance          string          `json:"balance"`
	Busy             bool            `json:"busy"`
}

func (g *Gateway) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := Snapshot{
		Pending:          make([]PendingAction, 0, len(g.pending)),
		TransactionError: g.txErr,
		Balance:          g.balance,
		Busy:             g.inFlight,
	}
	for _, a := range g.pending {
		cp := *a
		if a.TxHash != nil {
			h := *a.TxHash
			cp.TxHash = &h
		}
		snap.Pending = append(snap.Pending, cp)
	}
	sort.Slice(snap.Pending, func(i, j int) bool {
		return kindOrder[snap.Pending[i].Kind] < kindOrder[snap.Pending[j].Kind]
	})
	return snap
}
