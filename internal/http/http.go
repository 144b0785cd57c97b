package http

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"roamlotto/internal/auth"
	"roamlotto/internal/gateway"
	"roamlotto/internal/http/middleware"
	"roamlotto/internal/journal"
	"roamlotto/internal/logging"
	"roamlotto/internal/lottery"
	"roamlotto/internal/session"
	"roamlotto/internal/web"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Session is the wallet session surface the handlers drive.
type Session interface {
	State() session.State
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	DismissNetworkError(ctx context.Context)
}

// Gateway is the action surface the handlers drive.
type Gateway interface {
	Start(ctx context.Context, kind gateway.Kind) (<-chan gateway.Outcome, error)
	Snapshot() gateway.Snapshot
	ViewWinnings(ctx context.Context) string
	DismissError()
}

type LotteryReader interface {
	Info(ctx context.Context, from common.Address) (lottery.Info, error)
}

type History interface {
	Recent(ctx context.Context, account string, limit int) ([]journal.Entry, error)
}

// Deps is shared by every handler.
type Deps struct {
	Session Session
	Gateway Gateway
	Lottery LotteryReader
	History History
	Auth    *auth.Authenticator
	TPL     *web.Renderer

	// BaseCtx outlives requests; submitted actions run on it.
	BaseCtx     context.Context
	NetworkName string
	TicketPrice string

	LoginLimiter  *middleware.RateLimiter
	ActionLimiter *middleware.RateLimiter

	actions sync.WaitGroup
}

// Wait blocks until background actions have finished.
func (d *Deps) Wait() { d.actions.Wait() }

func NewMux(d *Deps) (*http.ServeMux, error) {
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
	if d.History == nil {
		d.History = journal.Noop{}
	}
	if d.Auth == nil {
		d.Auth = auth.New("", "")
	}
	mux := http.NewServeMux()

	dash := &DashboardHandler{Deps: d}
	mux.Handle("GET /{$}", dash)

	wh := &WalletHandler{Deps: d}
	mux.Handle("POST /connect", middleware.RequireAuth(http.HandlerFunc(wh.ConnectForm)))
	mux.Handle("POST /disconnect", middleware.RequireAuth(http.HandlerFunc(wh.DisconnectForm)))
	mux.Handle("POST /dismiss", middleware.RequireAuth(http.HandlerFunc(wh.DismissForm)))
	mux.Handle("POST /api/v1/connect", middleware.RequireAuth(http.HandlerFunc(wh.Connect)))
	mux.Handle("POST /api/v1/disconnect", middleware.RequireAuth(http.HandlerFunc(wh.Disconnect)))
	mux.Handle("POST /api/v1/errors/dismiss", middleware.RequireAuth(http.HandlerFunc(wh.Dismiss)))

	ah := &ActionHandler{Deps: d}
	mux.Handle("POST /actions/{kind}", middleware.RequireAuth(middleware.Limit(d.ActionLimiter, http.HandlerFunc(ah.Form))))
	mux.Handle("POST /api/v1/actions/{kind}", middleware.RequireAuth(middleware.Limit(d.ActionLimiter, http.HandlerFunc(ah.API))))

	api := &StateHandler{Deps: d}
	mux.Handle("GET /api/v1/state", middleware.RequireAuth(http.HandlerFunc(api.State)))
	mux.Handle("GET /api/v1/winnings", middleware.RequireAuth(http.HandlerFunc(api.Winnings)))
	mux.Handle("GET /api/v1/lottery", middleware.RequireAuth(http.HandlerFunc(api.LotteryInfo)))
	mux.Handle("GET /api/v1/history", middleware.RequireAuth(http.HandlerFunc(api.ActionHistory)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if d.Lottery != nil {
			if _, err := d.Lottery.Info(ctx, common.Address{}); err != nil {
				http.Error(w, "chain unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	authH := &AuthHandler{Deps: d}
	authH.Routes(mux)

	return mux, nil
}

func WithStandardMiddleware(a *auth.Authenticator, next http.Handler) http.Handler {
	return requestLogger(securityHeaders(sameOrigin(middleware.WithAuth(a)(next))))
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// sameOrigin refuses cross-site POSTs, which would otherwise reach the
// wallet through a browser pointed at this daemon.
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if origin := r.Header.Get("Origin"); origin != "" {
				u, err := url.Parse(origin)
				if err != nil || u.Host != r.Host {
					http.Error(w, "cross-origin request refused", http.StatusForbidden)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		ctx, log := logging.With(r.Context(), "request_id", id)
		w.Header().Set("X-Request-Id", id)
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r.WithContext(ctx))
		log.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
