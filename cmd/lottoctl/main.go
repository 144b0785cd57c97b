package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"roamlotto/internal/auth"
	"roamlotto/internal/config"
	"roamlotto/internal/db"
	"roamlotto/internal/ether"
	"roamlotto/internal/faucet"
	"roamlotto/internal/journal"
	"roamlotto/internal/lottery"
	"roamlotto/internal/wallet"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/term"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "hash-password":
		hashPasswordCmd(os.Args[2:])
	case "faucet":
		faucetCmd(os.Args[2:])
	case "info":
		infoCmd(os.Args[2:])
	case "history":
		historyCmd(os.Args[2:])
	case "account":
		accountCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`lottoctl - roamlotto admin CLI

Usage:
  lottoctl hash-password
  lottoctl faucet <receiver> [-count 100] [-amount 1] [-from 0x...] [-config config.yaml]
  lottoctl info [-account 0x...] [-json] [-config config.yaml]
  lottoctl history [-account 0x...] [-limit 20] [-config config.yaml] [-db postgres://...]
  lottoctl account new [-config config.yaml]

Examples:
  lottoctl hash-password
  lottoctl faucet 0x70997970C51812dc3A010C7d01b50e0d17dc79C8
  lottoctl faucet 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 -count 5 -amount 0.5
  lottoctl info -json
  lottoctl history -limit 50`)
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func hashPasswordCmd(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	_ = fs.Parse(args)

	pw := promptPassword("Dashboard password: ")
	pw2 := promptPassword("Confirm password: ")
	if pw != pw2 {
		fmt.Println("passwords do not match")
		os.Exit(1)
	}
	if len(pw) < 8 {
		fmt.Println("password too short (min 8 chars)")
		os.Exit(1)
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println("Put this in config.yaml under security.password_hash:")
	fmt.Println(hash)
}

func faucetCmd(args []string) {
	fs := flag.NewFlagSet("faucet", flag.ExitOnError)
	var (
		cfgPath = fs.String("config", "config.yaml", "path to config file")
		count   = fs.Int("count", 100, "number of transfers")
		amount  = fs.String("amount", "1", "ether per transfer")
		from    = fs.String("from", "", "funding account (default: wallet.account or the first keystore account)")
	)
	_ = fs.Parse(reorderArgs(args))

	rest := fs.Args()
	if len(rest) != 1 || !common.IsHexAddress(rest[0]) {
		fmt.Println("missing or invalid <receiver>")
		fmt.Println()
		usage()
		os.Exit(2)
	}
	receiver := common.HexToAddress(rest[0])
	wei, err := ether.Parse(*amount)
	if err != nil {
		log.Fatalf("amount: %v", err)
	}

	cfg := loadConfig(*cfgPath)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("dial %s: %v", cfg.Chain.RPCURL, err)
	}
	defer client.Close()

	dev, err := faucet.IsDevChain(ctx, client)
	if err != nil {
		log.Fatalf("chain id: %v", err)
	}
	if !dev {
		fmt.Fprintln(os.Stderr, "warning: the faucet is meant for the local development network; this chain is not it")
	}

	opts, err := keystoreSigner(ctx, cfg, client, *from)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}
	res, err := faucet.Drip(ctx, client, opts, receiver, *count, wei)
	if err != nil {
		log.Fatalf("faucet: %v (%s so far)", err, res)
	}
	fmt.Printf("%s to %s\n", res, receiver.Hex())
}

// keystoreSigner unlocks the funding account with a passphrase prompt.
func keystoreSigner(ctx context.Context, cfg *config.Config, client *ethclient.Client, from string) (*bind.TransactOpts, error) {
	ks := wallet.OpenKeystore(cfg.Wallet.KeystoreDir)
	accs := ks.Accounts()
	if len(accs) == 0 {
		return nil, wallet.ErrNoAccounts
	}
	if from == "" {
		from = cfg.Wallet.Account
	}
	acc := accs[0]
	if from != "" {
		var err error
		if acc, err = ks.Find(accounts.Account{Address: common.HexToAddress(from)}); err != nil {
			return nil, fmt.Errorf("%w: %s", wallet.ErrUnknownAccount, from)
		}
	}
	pass := promptPassword(fmt.Sprintf("Passphrase for %s: ", acc.Address.Hex()))
	if err := ks.Unlock(acc, pass); err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return bind.NewKeyStoreTransactorWithChainID(ks, acc, chainID)
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	var (
		cfgPath = fs.String("config", "config.yaml", "path to config file")
		account = fs.String("account", "", "also list this account's tickets and winnings")
		asJSON  = fs.Bool("json", false, "print JSON")
	)
	_ = fs.Parse(reorderArgs(args))

	cfg := loadConfig(*cfgPath)
	addr, err := cfg.Chain.ResolveContractAddress()
	if err != nil {
		log.Fatalf("contract: %v", err)
	}
	var from common.Address
	if *account != "" {
		if !common.IsHexAddress(*account) {
			log.Fatalf("invalid account %q", *account)
		}
		from = common.HexToAddress(*account)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("dial %s: %v", cfg.Chain.RPCURL, err)
	}
	defer client.Close()

	lotto := lottery.NewCaller(addr, client)
	info, err := lotto.Info(ctx, from)
	if err != nil {
		log.Fatalf("read lottery: %v", err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(info)
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "contract\t%s\n", info.Address.Hex())
	fmt.Fprintf(tw, "lottery\t#%s\n", info.CurrentLottery)
	fmt.Fprintf(tw, "ticket price\t%s ETH\n", ether.Format(info.TicketPrice))
	fmt.Fprintf(tw, "pot\t%s ETH\n", ether.Format(info.TotalPot))
	fmt.Fprintf(tw, "odds\t%s\n", info.Odds())
	fmt.Fprintf(tw, "draw frequency\t%ss\n", info.DrawFrequency)
	fmt.Fprintf(tw, "started\t%s\n", info.StartTime.Format(time.RFC3339))
	fmt.Fprintf(tw, "ready to draw\t%t\n", info.ReadyToDraw)
	if from != (common.Address{}) {
		fmt.Fprintf(tw, "tickets\t%d\n", len(info.MyTickets))
		if w, err := lotto.ViewWinnings(&bind.CallOpts{Context: ctx, From: from}); err == nil {
			fmt.Fprintf(tw, "winnings\t%s ETH\n", ether.Format(w))
		}
	}
	_ = tw.Flush()
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var (
		cfgPath    = fs.String("config", "config.yaml", "path to config file")
		dbOverride = fs.String("db", "", "override database connection URL")
		account    = fs.String("account", "", "only this account")
		limit      = fs.Int("limit", 20, "max rows")
	)
	_ = fs.Parse(reorderArgs(args))

	cfg := loadConfig(*cfgPath)
	appURL, err := resolveDBURL(cfg, *dbOverride)
	if err != nil {
		log.Fatalf("db url: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, appURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	entries, err := journal.NewStore(pool).Recent(ctx, *account, *limit)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tACTION\tACCOUNT\tOUTCOME\tTX")
	for _, e := range entries {
		outcome := e.Outcome
		if e.Error != "" {
			outcome += " (" + e.Error + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Format(time.RFC3339), e.Kind, ether.ShortAddress(e.Account), outcome, e.TxHash)
	}
	_ = tw.Flush()
}

func accountCmd(args []string) {
	if len(args) < 1 || args[0] != "new" {
		usage()
		os.Exit(2)
	}
	fs := flag.NewFlagSet("account new", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	_ = fs.Parse(reorderArgs(args[1:]))

	cfg := loadConfig(*cfgPath)
	pw := promptPassword("Passphrase: ")
	pw2 := promptPassword("Confirm passphrase: ")
	if pw != pw2 {
		fmt.Println("passphrases do not match")
		os.Exit(1)
	}
	if pw == "" {
		fmt.Println("passphrase cannot be empty")
		os.Exit(1)
	}
	acc, err := wallet.OpenKeystore(cfg.Wallet.KeystoreDir).NewAccount(pw)
	if err != nil {
		log.Fatalf("new account: %v", err)
	}
	fmt.Printf("Created %s\nKey file: %s\n", acc.Address.Hex(), acc.URL.Path)
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after input
	if err != nil {
		log.Fatalf("read password: %v", err)
	}
	return strings.TrimSpace(string(b))
}

func resolveDBURL(cfg *config.Config, override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return override, nil
	}
	return cfg.Database.AppURL()
}

// reorderArgs moves flags ahead of positionals so flag.Parse sees
// "faucet 0xabc -count 5" the same as "faucet -count 5 0xabc".
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) > 0 && arg != "-" && arg != "--" && arg[0] == '-' {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && !isBoolFlag(arg) && i+1 < len(args) && (len(args[i+1]) == 0 || args[i+1][0] != '-') {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

func isBoolFlag(arg string) bool {
	return strings.TrimLeft(arg, "-") == "json"
}
