package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"roamlotto/internal/auth"
	"roamlotto/internal/config"
	"roamlotto/internal/db"
	"roamlotto/internal/ether"
	"roamlotto/internal/gateway"
	apphttp "roamlotto/internal/http"
	"roamlotto/internal/http/middleware"
	"roamlotto/internal/journal"
	"roamlotto/internal/logging"
	"roamlotto/internal/lottery"
	"roamlotto/internal/session"
	"roamlotto/internal/telegram"
	"roamlotto/internal/wallet"
	"roamlotto/internal/web"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil && cfg == nil {
		panic(err)
	}

	l := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(l)

	if err != nil {
		slog.Warn("config.missing", "path", *cfgPath, "err", err)
		slog.Warn("Running with default values. The JWT secret is a default value, which is a security risk outside local development.")
	}
	warnExposure(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, l)

	contract, err := cfg.Chain.ResolveContractAddress()
	if err != nil {
		fatal("chain.contract", err)
	}
	price, err := cfg.Chain.TicketPriceWei()
	if err != nil {
		fatal("chain.ticket_price", err)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	client, err := ethclient.DialContext(dialCtx, cfg.Chain.RPCURL)
	cancelDial()
	if err != nil {
		fatal("chain.dial", err)
	}
	defer client.Close()

	secret, err := readPassphraseFile(cfg.Wallet.PassphraseFile)
	if err != nil {
		fatal("wallet.passphrase_file", err)
	}
	provider := wallet.NewKeystore(
		wallet.OpenKeystore(cfg.Wallet.KeystoreDir),
		client,
		newApprover(cfg.Wallet, secret),
		wallet.KeystoreOptions{Preferred: preferredAccount(cfg.Wallet), PollInterval: cfg.Chain.PollInterval},
	)

	sess := session.NewManager(provider, session.Options{
		ExpectedNetworkID: cfg.Chain.ExpectedNetworkID,
		NetworkName:       cfg.Chain.NetworkName,
	})
	lotto := lottery.New(contract, client)

	var store interface {
		gateway.Recorder
		apphttp.History
	} = journal.Noop{}
	if cfg.Database.Enabled {
		dbCtx, cancelDB := context.WithTimeout(ctx, 3*time.Minute)
		pool, err := db.Open(dbCtx, cfg.Database)
		cancelDB()
		if err != nil {
			fatal("db.open", err)
		}
		defer pool.Close()
		store = journal.NewStore(pool)
		slog.Info("db.ready", "database", cfg.Database.DBName())
	}

	tg := telegram.NewClient(cfg.Telegram.BotToken)
	gw := gateway.New(sess, provider, lotto, gateway.BackendWaiter{Backend: client}, gateway.Options{
		TicketPrice:    price,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
		ExplorerURL:    cfg.Chain.ExplorerURL,
	}).
		WithJournal(store).
		WithNotifier(telegram.New(tg, cfg.Telegram.GroupChatID, cfg.Telegram.AdminChatIDs))
	sess.OnChange(gw.SessionChanged)

	var workers sync.WaitGroup
	runWorker := func(name string, run func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := run(ctx); err != nil {
				slog.Error(name+".stopped", "err", err)
				stop()
			}
		}()
	}
	runWorker("wallet", provider.Run)
	runWorker("session", sess.Run)
	if poller := telegram.NewPoller(tg, lotto); poller != nil {
		runWorker("telegram", func(ctx context.Context) error { poller.Run(ctx); return nil })
	}

	rend, err := web.NewRenderer(cfg.Chain.ExplorerURL)
	if err != nil {
		fatal("web.templates", err)
	}
	authenticator := auth.New(cfg.Security.JWTSecret, cfg.Security.PasswordHash)
	deps := &apphttp.Deps{
		Session:       sess,
		Gateway:       gw,
		Lottery:       lotto,
		History:       store,
		Auth:          authenticator,
		TPL:           rend,
		BaseCtx:       ctx,
		NetworkName:   cfg.Chain.NetworkName,
		TicketPrice:   ether.Format(price),
		LoginLimiter:  middleware.NewRateLimiter(5, time.Minute),
		ActionLimiter: middleware.NewRateLimiter(30, time.Minute),
	}
	mux, err := apphttp.NewMux(deps)
	if err != nil {
		fatal("http.mux", err)
	}
	srv := &http.Server{
		Addr:        cfg.HTTP.Address,
		Handler:     apphttp.WithStandardMiddleware(authenticator, mux),
		BaseContext: func(net.Listener) context.Context { return ctx },
		ReadTimeout: 10 * time.Second,
		// connecting waits on the terminal approval prompt
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http.starting", "addr", cfg.HTTP.Address, "contract", contract.Hex(), "network", cfg.Chain.NetworkName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http.listen", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http.shutting_down")
	_ = srv.Shutdown(shutdownCtx)
	deps.Wait()
	workers.Wait()
	_ = provider.Disconnect()
	slog.Info("http.stopped")
}

func fatal(event string, err error) {
	slog.Error(event, "err", err)
	os.Exit(1)
}

func preferredAccount(w config.WalletConfig) common.Address {
	if w.Account == "" {
		return common.Address{}
	}
	return common.HexToAddress(w.Account)
}

func readPassphraseFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func newApprover(w config.WalletConfig, secret string) wallet.Approver {
	if w.AutoApprove {
		slog.Warn("wallet.auto_approve", "msg", "transactions are signed without confirmation")
		return wallet.StaticApprover{Secret: secret}
	}
	a := wallet.NewTerminalApprover()
	a.Secret = secret
	return a
}

func warnExposure(cfg *config.Config) {
	host, _, err := net.SplitHostPort(cfg.HTTP.Address)
	if err != nil {
		return
	}
	ip := net.ParseIP(host)
	loopback := host == "localhost" || (ip != nil && ip.IsLoopback())
	if !loopback && cfg.Security.PasswordHash == "" {
		slog.Warn("http.exposed", "addr", cfg.HTTP.Address, "msg", "dashboard listens beyond loopback without a password")
	}
	if cfg.Security.PasswordHash != "" && cfg.Security.JWTSecret == "change-me" {
		slog.Warn("security.jwt_secret", "msg", "default JWT secret in use")
	}
}
