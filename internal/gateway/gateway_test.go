package gateway

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"roamlotto/internal/ether"
	"roamlotto/internal/journal"
	"roamlotto/internal/notify"
	"roamlotto/internal/session"
	"roamlotto/internal/wallet"
	"roamlotto/internal/wallet/wallettest"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var player = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type stubSession struct {
	mu sync.Mutex
	st session.State
}

func (s *stubSession) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *stubSession) set(st session.State) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

func connected() *stubSession {
	return &stubSession{st: session.State{Address: player, Connected: true, NetworkID: "31337"}}
}

type fakeLottery struct {
	mu        sync.Mutex
	nonce     uint64
	values    []*big.Int
	submitErr error
	winnings  *big.Int
	readErr   error
	views     int
	// when readGate is set, ViewWinnings signals reading and blocks until
	// readGate is closed.
	readGate chan struct{}
	reading  chan struct{}
}

func (l *fakeLottery) send(opts *bind.TransactOpts) (*types.Transaction, error) {
	l.mu.Lock()
	if l.submitErr != nil {
		l.mu.Unlock()
		return nil, l.submitErr
	}
	l.nonce++
	tx := types.NewTx(&types.LegacyTx{Nonce: l.nonce, Value: opts.Value, Gas: 21000, GasPrice: big.NewInt(1)})
	l.values = append(l.values, opts.Value)
	l.mu.Unlock()
	return opts.Signer(opts.From, tx)
}

func (l *fakeLottery) Enter(opts *bind.TransactOpts) (*types.Transaction, error)   { return l.send(opts) }
func (l *fakeLottery) Draw(opts *bind.TransactOpts) (*types.Transaction, error)    { return l.send(opts) }
func (l *fakeLottery) GetPaid(opts *bind.TransactOpts) (*types.Transaction, error) { return l.send(opts) }

func (l *fakeLottery) ViewWinnings(*bind.CallOpts) (*big.Int, error) {
	if l.readGate != nil {
		l.reading <- struct{}{}
		<-l.readGate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views++
	if l.readErr != nil {
		return nil, l.readErr
	}
	if l.winnings == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(l.winnings), nil
}

func (l *fakeLottery) viewCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.views
}

// fakeWaiter mines every transaction with the configured status. When gate
// is set, WaitMined blocks until it is closed.
type fakeWaiter struct {
	status uint64
	err    error
	gate   chan struct{}
	seen   chan common.Hash
}

func (w *fakeWaiter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if w.seen != nil {
		w.seen <- tx.Hash()
	}
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	return &types.Receipt{Status: w.status, TxHash: tx.Hash(), BlockNumber: big.NewInt(7), GasUsed: 21000}, nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
	return nil
}

func (j *memJournal) all() []journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Entry(nil), j.entries...)
}

func newGateway(t *testing.T, s Session, lotto *fakeLottery, w *fakeWaiter) (*Gateway, *wallettest.Fake, *memJournal, *notify.Recorder) {
	t.Helper()
	fw := &wallettest.Fake{Accounts: []common.Address{player}, Network: "31337"}
	j := &memJournal{}
	n := &notify.Recorder{}
	g := New(s, fw, lotto, w, Options{ExplorerURL: "https://explorer.example"}).
		WithJournal(j).
		WithNotifier(n)
	return g, fw, j, n
}

func TestEnterPaysTicketPriceAndClearsPending(t *testing.T) {
	lotto := &fakeLottery{}
	g, fw, j, _ := newGateway(t, connected(), lotto, &fakeWaiter{status: types.ReceiptStatusSuccessful})

	out, err := g.Enter(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseSettled, out.Phase)
	require.NoError(t, out.Err)
	require.NotEqual(t, common.Hash{}, out.TxHash)

	require.Len(t, lotto.values, 1)
	require.Equal(t, 0, lotto.values[0].Cmp(ether.MustParse("1")))
	require.Equal(t, []string{"enter"}, fw.Labels)

	snap := g.Snapshot()
	require.Empty(t, snap.Pending)
	require.Empty(t, snap.TransactionError)
	require.False(t, snap.Busy)
	require.Zero(t, lotto.viewCount(), "enter does not refresh winnings")

	entries := j.all()
	require.Len(t, entries, 1)
	require.Equal(t, "enter", entries[0].Kind)
	require.Equal(t, "settled", entries[0].Outcome)
	require.Equal(t, "1000000000000000000", entries[0].ValueWei)
	require.Equal(t, uint64(7), entries[0].BlockNumber)
}

func TestDrawAndGetPaidRefreshBalanceOnce(t *testing.T) {
	for _, kind := range []Kind{KindDraw, KindGetPaid} {
		t.Run(string(kind), func(t *testing.T) {
			lotto := &fakeLottery{winnings: ether.MustParse("2.5")}
			g, _, _, n := newGateway(t, connected(), lotto, &fakeWaiter{status: types.ReceiptStatusSuccessful})

			out, err := g.Do(context.Background(), kind)
			require.NoError(t, err)
			require.Equal(t, PhaseSettled, out.Phase)
			require.Equal(t, 1, lotto.viewCount())
			require.Equal(t, "2.5", g.Balance())
			require.Nil(t, lotto.values[0])

			group := n.Group()
			require.Len(t, group, 1)
			require.Contains(t, group[0], "https://explorer.example/tx/"+out.TxHash.Hex())
		})
	}
}

func TestFailedReceiptSetsTransactionError(t *testing.T) {
	lotto := &fakeLottery{winnings: big.NewInt(0)}
	g, _, j, n := newGateway(t, connected(), lotto, &fakeWaiter{status: types.ReceiptStatusFailed})

	out, err := g.Draw(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, out.Phase)
	require.ErrorIs(t, out.Err, ErrTransactionFailed)

	snap := g.Snapshot()
	require.Empty(t, snap.Pending)
	require.Equal(t, ErrTransactionFailed.Error(), snap.TransactionError)
	require.Equal(t, 1, lotto.viewCount(), "a failed draw still refreshes")
	require.Len(t, n.Admins(), 1)
	require.Empty(t, n.Group())
	require.Equal(t, "failed", j.all()[0].Outcome)
}

func TestSubmissionErrorIsReported(t *testing.T) {
	lotto := &fakeLottery{submitErr: errors.New("insufficient funds for gas * price + value")}
	g, _, _, _ := newGateway(t, connected(), lotto, &fakeWaiter{})

	out, err := g.GetPaid(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, out.Phase)
	require.ErrorIs(t, out.Err, ErrSubmission)
	require.Contains(t, g.Snapshot().TransactionError, "insufficient funds")
	require.Equal(t, 1, lotto.viewCount())
}

func TestRejectionIsSilent(t *testing.T) {
	lotto := &fakeLottery{}
	g, fw, j, n := newGateway(t, connected(), lotto, &fakeWaiter{status: types.ReceiptStatusSuccessful})
	fw.SignErr = wallet.ErrUserRejected

	for _, kind := range []Kind{KindEnter, KindDraw, KindGetPaid} {
		out, err := g.Do(context.Background(), kind)
		require.NoError(t, err)
		require.Equal(t, PhaseRejected, out.Phase)
		require.ErrorIs(t, out.Err, wallet.ErrUserRejected)
	}

	snap := g.Snapshot()
	require.Empty(t, snap.TransactionError)
	require.Empty(t, snap.Pending)
	require.Zero(t, lotto.viewCount())
	require.Empty(t, j.all())
	require.Empty(t, n.Admins())
}

func TestNewActionClearsEarlierError(t *testing.T) {
	lotto := &fakeLottery{}
	w := &fakeWaiter{status: types.ReceiptStatusFailed}
	g, fw, _, _ := newGateway(t, connected(), lotto, w)

	_, err := g.Enter(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, g.Snapshot().TransactionError)

	fw.SignErr = wallet.ErrUserRejected
	_, err = g.Enter(context.Background())
	require.NoError(t, err)
	require.Empty(t, g.Snapshot().TransactionError, "a new action clears the previous error")
}

func TestNotConnected(t *testing.T) {
	lotto := &fakeLottery{}
	g, _, _, _ := newGateway(t, &stubSession{}, lotto, &fakeWaiter{})

	_, err := g.Enter(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, g.Begin(KindDraw), ErrNotConnected)
	require.Empty(t, lotto.values)
	require.Equal(t, "0.0", g.ViewWinnings(context.Background()))
	require.Zero(t, lotto.viewCount())
}

func TestBusyWhileInFlight(t *testing.T) {
	lotto := &fakeLottery{}
	w := &fakeWaiter{status: types.ReceiptStatusSuccessful, gate: make(chan struct{}), seen: make(chan common.Hash, 1)}
	g, _, _, _ := newGateway(t, connected(), lotto, w)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := g.Enter(context.Background())
		done <- out
	}()

	hash := <-w.seen
	snap := g.Snapshot()
	require.True(t, snap.Busy)
	require.Len(t, snap.Pending, 1)
	require.Equal(t, KindEnter, snap.Pending[0].Kind)
	require.Equal(t, PhaseConfirming, snap.Pending[0].Phase)
	require.Equal(t, hash, *snap.Pending[0].TxHash)

	_, err := g.Draw(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, g.Begin(KindGetPaid), ErrBusy)

	close(w.gate)
	select {
	case out := <-done:
		require.Equal(t, PhaseSettled, out.Phase)
	case <-time.After(5 * time.Second):
		t.Fatal("enter did not finish")
	}
	require.NoError(t, g.Begin(KindGetPaid))
	require.Empty(t, g.Snapshot().Pending)
}

func TestResetDuringFlightDropsLateFailure(t *testing.T) {
	lotto := &fakeLottery{}
	w := &fakeWaiter{status: types.ReceiptStatusFailed, gate: make(chan struct{}), seen: make(chan common.Hash, 1)}
	sess := connected()
	g, _, _, _ := newGateway(t, sess, lotto, w)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Enter(context.Background())
	}()
	<-w.seen

	sess.set(session.State{})
	g.SessionChanged(context.Background(), sess.State())
	require.Empty(t, g.Snapshot().Pending)
	require.Equal(t, "0.0", g.Balance())

	close(w.gate)
	<-done
	snap := g.Snapshot()
	require.Empty(t, snap.TransactionError)
	require.Empty(t, snap.Pending)
}

func TestViewWinningsFailureClearsBalance(t *testing.T) {
	lotto := &fakeLottery{winnings: ether.MustParse("0.25")}
	g, _, _, _ := newGateway(t, connected(), lotto, &fakeWaiter{})

	require.Equal(t, "0.25", g.ViewWinnings(context.Background()))

	lotto.mu.Lock()
	lotto.readErr = errors.New("execution reverted")
	lotto.mu.Unlock()
	require.Equal(t, "", g.ViewWinnings(context.Background()))
	require.Empty(t, g.Snapshot().TransactionError, "read failures are not surfaced")
}

func TestSessionChangedRefreshesOrResets(t *testing.T) {
	lotto := &fakeLottery{winnings: ether.MustParse("3")}
	sess := connected()
	g, _, _, _ := newGateway(t, sess, lotto, &fakeWaiter{})

	g.SessionChanged(context.Background(), sess.State())
	require.Equal(t, "3.0", g.Balance())

	g.SessionChanged(context.Background(), session.State{})
	require.Equal(t, "0.0", g.Balance())
}

func TestLateBalanceReadAfterResetIsDropped(t *testing.T) {
	lotto := &fakeLottery{
		winnings: ether.MustParse("2.5"),
		readGate: make(chan struct{}),
		reading:  make(chan struct{}, 1),
	}
	sess := connected()
	g, _, _, _ := newGateway(t, sess, lotto, &fakeWaiter{})

	done := make(chan string, 1)
	go func() { done <- g.ViewWinnings(context.Background()) }()
	<-lotto.reading

	sess.set(session.State{})
	g.SessionChanged(context.Background(), session.State{})
	require.Equal(t, "0.0", g.Balance())

	close(lotto.readGate)
	require.Equal(t, "0.0", <-done)
	require.Equal(t, "0.0", g.Balance())
}

func TestLateBalanceReadForPreviousAccountIsDropped(t *testing.T) {
	lotto := &fakeLottery{
		winnings: ether.MustParse("2.5"),
		readGate: make(chan struct{}),
		reading:  make(chan struct{}, 1),
	}
	sess := connected()
	g, _, _, _ := newGateway(t, sess, lotto, &fakeWaiter{})

	done := make(chan string, 1)
	go func() { done <- g.ViewWinnings(context.Background()) }()
	<-lotto.reading

	other := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	sess.set(session.State{Address: other, Connected: true, NetworkID: "31337"})

	close(lotto.readGate)
	<-done
	require.NotEqual(t, "2.5", g.Balance())

	lotto.readGate = nil
	require.Equal(t, "2.5", g.ViewWinnings(context.Background()))
}

func TestReceiptWaitErrorIsSubmissionFailure(t *testing.T) {
	lotto := &fakeLottery{}
	g, _, _, _ := newGateway(t, connected(), lotto, &fakeWaiter{err: errors.New("connection refused")})

	out, err := g.Enter(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, out.Phase)
	require.ErrorIs(t, out.Err, ErrSubmission)
	require.NotEqual(t, common.Hash{}, out.TxHash)
}

func TestDismissError(t *testing.T) {
	g, _, _, _ := newGateway(t, connected(), &fakeLottery{}, &fakeWaiter{status: types.ReceiptStatusFailed})
	_, err := g.Enter(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, g.Snapshot().TransactionError)
	g.DismissError()
	require.Empty(t, g.Snapshot().TransactionError)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("getPaid")
	require.NoError(t, err)
	require.Equal(t, KindGetPaid, k)

	_, err = ParseKind("withdraw")
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = New(connected(), &wallettest.Fake{}, &fakeLottery{}, &fakeWaiter{}, Options{}).Do(context.Background(), "withdraw")
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestTxLink(t *testing.T) {
	h := common.HexToHash("0x01")
	require.Equal(t, h.Hex(), TxLink("", h))
	require.Equal(t, "https://etherscan.io/tx/"+h.Hex(), TxLink("https://etherscan.io/", h))
}

func TestStartReservesSynchronously(t *testing.T) {
	lotto := &fakeLottery{}
	w := &fakeWaiter{status: types.ReceiptStatusSuccessful, gate: make(chan struct{})}
	g, _, _, _ := newGateway(t, connected(), lotto, w)

	done, err := g.Start(context.Background(), KindEnter)
	require.NoError(t, err)

	_, err = g.Start(context.Background(), KindDraw)
	require.ErrorIs(t, err, ErrBusy)
	require.True(t, g.Snapshot().Busy)

	close(w.gate)
	select {
	case out := <-done:
		require.Equal(t, PhaseSettled, out.Phase)
	case <-time.After(5 * time.Second):
		t.Fatal("enter did not finish")
	}
	require.False(t, g.Snapshot().Busy)
}
