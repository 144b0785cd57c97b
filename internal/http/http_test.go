package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"roamlotto/internal/auth"
	"roamlotto/internal/gateway"
	"roamlotto/internal/http/middleware"
	"roamlotto/internal/logging"
	"roamlotto/internal/lottery"
	"roamlotto/internal/session"
	"roamlotto/internal/wallet"
	"roamlotto/internal/web"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var player = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type fakeSession struct {
	mu         sync.Mutex
	st         session.State
	connectErr error
	dismissed  int
}

func (s *fakeSession) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *fakeSession) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		if errors.Is(s.connectErr, session.ErrNetworkMismatch) {
			s.st = session.State{NetworkID: "1", NetworkError: "Please connect your wallet to Localhost:8545"}
		}
		return s.connectErr
	}
	s.st = session.State{Address: player, Connected: true, NetworkID: "31337"}
	return nil
}

func (s *fakeSession) Disconnect(context.Context) error {
	s.mu.Lock()
	s.st = session.State{}
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) DismissNetworkError(context.Context) {
	s.mu.Lock()
	s.st.NetworkError = ""
	s.dismissed++
	s.mu.Unlock()
}

type fakeGateway struct {
	mu        sync.Mutex
	startErr  error
	started   []gateway.Kind
	snap      gateway.Snapshot
	dismissed int
	views     int
	startCtx  context.Context
}

func (g *fakeGateway) Start(ctx context.Context, kind gateway.Kind) (<-chan gateway.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startErr != nil {
		return nil, g.startErr
	}
	g.startCtx = ctx
	g.started = append(g.started, kind)
	done := make(chan gateway.Outcome, 1)
	done <- gateway.Outcome{Kind: kind, Phase: gateway.PhaseSettled}
	return done, nil
}

func (g *fakeGateway) Snapshot() gateway.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.snap
	if s.Pending == nil {
		s.Pending = []gateway.PendingAction{}
	}
	return s
}

func (g *fakeGateway) ViewWinnings(context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.views++
	return g.snap.Balance
}

func (g *fakeGateway) DismissError() {
	g.mu.Lock()
	g.snap.TransactionError = ""
	g.dismissed++
	g.mu.Unlock()
}

type fakeLottery struct{ err error }

func (l fakeLottery) Info(context.Context, common.Address) (lottery.Info, error) {
	if l.err != nil {
		return lottery.Info{}, l.err
	}
	return lottery.Info{CurrentLottery: big.NewInt(2), TotalPot: big.NewInt(0), WinChance: big.NewInt(4)}, nil
}

type fixture struct {
	srv     *httptest.Server
	handler http.Handler
	sess *fakeSession
	gw   *fakeGateway
	deps *Deps
}

func newFixture(t *testing.T, a *auth.Authenticator) *fixture {
	t.Helper()
	rend, err := web.NewRenderer("")
	require.NoError(t, err)
	f := &fixture{sess: &fakeSession{}, gw: &fakeGateway{snap: gateway.Snapshot{Balance: "0.0"}}}
	f.deps = &Deps{
		Session:      f.sess,
		Gateway:      f.gw,
		Lottery:      fakeLottery{},
		Auth:         a,
		TPL:          rend,
		NetworkName:  "Localhost:8545",
		TicketPrice:  "1.0",
		LoginLimiter: middleware.NewRateLimiter(3, time.Minute),
	}
	mux, err := NewMux(f.deps)
	require.NoError(t, err)
	f.handler = WithStandardMiddleware(f.deps.Auth, mux)
	f.srv = httptest.NewServer(f.handler)
	t.Cleanup(f.srv.Close)
	return f
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := noRedirect().Post(f.srv.URL+path, "application/x-www-form-urlencoded", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := noRedirect().Get(f.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStateDisconnected(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/api/v1/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[stateResp](t, resp)
	require.False(t, st.Connected)
	require.Empty(t, st.Address)
	require.Equal(t, "0.0", st.Balance)
	require.NotNil(t, st.Pending)
}

func TestConnectAPI(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post(t, "/api/v1/connect", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[stateResp](t, resp)
	require.True(t, st.Connected)
	require.Equal(t, player.Hex(), st.Address)
	require.Equal(t, "0x7099...79C8", st.ShortAddress)
}

func TestConnectAPIErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{wallet.ErrUserRejected, http.StatusNoContent},
		{fmt.Errorf("%w: got 1", session.ErrNetworkMismatch), http.StatusConflict},
		{wallet.ErrNoAccounts, http.StatusUnprocessableEntity},
		{errors.New("dial tcp 127.0.0.1:8545: connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.sess.connectErr = tc.err
			resp := f.post(t, "/api/v1/connect", "")
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestConnectFormMismatchShowsNetworkError(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.connectErr = session.ErrNetworkMismatch

	resp := f.post(t, "/connect", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	page := f.get(t, "/")
	body := readAll(t, page)
	require.Contains(t, body, "Please connect your wallet to Localhost:8545")

	f.post(t, "/dismiss", "what=network")
	require.Empty(t, f.sess.State().NetworkError)
}

func TestActionAPI(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.st = session.State{Address: player, Connected: true, NetworkID: "31337"}

	resp := f.post(t, "/api/v1/actions/getPaid", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, actionResp{Kind: gateway.KindGetPaid, Status: "submitted"}, decode[actionResp](t, resp))
	f.deps.Wait()
	require.Equal(t, []gateway.Kind{gateway.KindGetPaid}, f.gw.started)

	resp = f.post(t, "/api/v1/actions/withdraw", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.gw.startErr = gateway.ErrBusy
	resp = f.post(t, "/api/v1/actions/draw", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, gateway.ErrBusy.Error(), decode[errorResp](t, resp).Error)
}

func TestRequestLogAttributesFollowTheAction(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.st = session.State{Address: player, Connected: true, NetworkID: "31337"}

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/enter", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), l))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	f.deps.Wait()

	require.Equal(t, http.StatusAccepted, rec.Code)
	id := rec.Header().Get("X-Request-Id")
	require.NotEmpty(t, id)
	require.Contains(t, buf.String(), `"msg":"http.request"`)
	require.Contains(t, buf.String(), `"request_id":"`+id+`"`)

	f.gw.mu.Lock()
	actionCtx := f.gw.startCtx
	f.gw.mu.Unlock()
	require.NotNil(t, actionCtx)
	require.NoError(t, actionCtx.Err())

	buf.Reset()
	logging.From(actionCtx).Info("gateway.submitting")
	require.Contains(t, buf.String(), `"request_id":"`+id+`"`)
}

func TestActionFormRedirectsWithNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.startErr = gateway.ErrNotConnected

	resp := f.post(t, "/actions/enter", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "connect", loc.Query().Get("notice"))

	body := readAll(t, f.get(t, loc.String()))
	require.Contains(t, body, "Connect your wallet first.")
}

func TestWinningsRequiresConnection(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusConflict, f.get(t, "/api/v1/winnings").StatusCode)

	f.sess.st = session.State{Address: player, Connected: true}
	f.gw.snap.Balance = "4.2"
	resp := f.get(t, "/api/v1/winnings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]string{"balance": "4.2"}, decode[map[string]string](t, resp))
	require.Equal(t, 1, f.gw.views)
}

func TestLotteryInfo(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/api/v1/lottery")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[lottery.Info](t, resp)
	require.Equal(t, int64(2), info.CurrentLottery.Int64())
	require.Equal(t, "1/4", info.Odds())
}

func TestReadyzReportsChain(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.get(t, "/readyz").StatusCode)
	f.deps.Lottery = fakeLottery{err: errors.New("no route to host")}
	require.Equal(t, http.StatusServiceUnavailable, f.get(t, "/readyz").StatusCode)
	require.Equal(t, http.StatusOK, f.get(t, "/healthz").StatusCode)
}

func TestDismissAPI(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.snap.TransactionError = "transaction failed"
	resp := f.post(t, "/api/v1/errors/dismiss", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1, f.gw.dismissed)
	require.Equal(t, 1, f.sess.dismissed)
}

func TestCrossOriginPostRefused(t *testing.T) {
	f := newFixture(t, nil)
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/v1/actions/enter", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, f.gw.started)
}

func TestPasswordProtectedDashboard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, auth.New("s3cret", string(hash)))

	require.Equal(t, http.StatusUnauthorized, f.get(t, "/api/v1/state").StatusCode)
	require.Equal(t, http.StatusUnauthorized, f.post(t, "/api/v1/connect", "").StatusCode)
	require.Contains(t, readAll(t, f.get(t, "/")), "Unlock dashboard")

	resp := f.post(t, "/login", "password=nope")
	require.Equal(t, "/?login=bad", resp.Header.Get("Location"))

	resp = f.post(t, "/login", "password=pw")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/state", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	require.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestLoginRateLimited(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, auth.New("s3cret", string(hash)))

	for i := 0; i < 3; i++ {
		resp, err := http.Post(f.srv.URL+"/api/v1/auth/login", "application/json", strings.NewReader(`{"password":"nope"}`))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, err := http.Post(f.srv.URL+"/api/v1/auth/login", "application/json", strings.NewReader(`{"password":"pw"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	_, err := io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	return sb.String()
}
