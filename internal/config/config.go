package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roamlotto/internal/ether"
	"roamlotto/internal/lottery"

	"github.com/ethereum/go-ethereum/common"
)

// HardhatNetworkID is the network id reported by a local Hardhat node.
const HardhatNetworkID = "31337"

type Config struct {
	BaseURL string `yaml:"base_url"`

	HTTP struct {
		Address string `yaml:"address"`
	} `yaml:"http"`

	Chain ChainConfig `yaml:"chain"`

	Wallet WalletConfig `yaml:"wallet"`

	Database DatabaseConfig `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
		Format string `yaml:"format"` // "text" | "json"
	} `yaml:"logging"`

	Security struct {
		JWTSecret string `yaml:"jwt_secret"`
		// PasswordHash is a bcrypt hash guarding the dashboard. Empty leaves it open.
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"security"`

	Telegram TelegramConfig `yaml:"telegram"`
}

type ChainConfig struct {
	RPCURL              string        `yaml:"rpc_url"`
	ExpectedNetworkID   string        `yaml:"expected_network_id"`
	NetworkName         string        `yaml:"network_name"`
	ContractAddress     string        `yaml:"contract_address"`
	ContractAddressFile string        `yaml:"contract_address_file"`
	TicketPrice         string        `yaml:"ticket_price"` // in ether, e.g. "1"
	PollInterval        time.Duration `yaml:"poll_interval"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout"`
	ExplorerURL         string        `yaml:"explorer_url"`
}

type WalletConfig struct {
	KeystoreDir string `yaml:"keystore_dir"`
	Account     string `yaml:"account"`
	// AutoApprove skips the terminal confirmation. Only meant for local dev chains.
	AutoApprove    bool   `yaml:"auto_approve"`
	PassphraseFile string `yaml:"passphrase_file"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"` // e.g. "disable" | "require"
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	GroupChatID  int64   `yaml:"group_chat_id"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
}

func (t TelegramConfig) Enabled() bool { return t.BotToken != "" }

func (c *Config) Defaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = "127.0.0.1:8080"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://" + c.HTTP.Address
	}
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = "http://127.0.0.1:8545"
	}
	if c.Chain.ExpectedNetworkID == "" {
		c.Chain.ExpectedNetworkID = HardhatNetworkID
	}
	if c.Chain.NetworkName == "" {
		c.Chain.NetworkName = "Localhost:8545"
	}
	if c.Chain.TicketPrice == "" {
		c.Chain.TicketPrice = "1"
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 2 * time.Second
	}
	if c.Wallet.KeystoreDir == "" {
		c.Wallet.KeystoreDir = "keystore"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Database.Host == "" {
		c.Database.Host = "db"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "roamlotto"
	}
	if c.Database.Name == "" {
		c.Database.Name = "roamlotto"
	}
	if c.Database.Password == "" {
		c.Database.Password = "password"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Security.JWTSecret == "" {
		c.Security.JWTSecret = "change-me"
	}
}

func (c *Config) Validate() error {
	var errs []string
	if c.Chain.ContractAddress == "" && c.Chain.ContractAddressFile == "" {
		errs = append(errs, "chain.contract_address or chain.contract_address_file must be set")
	}
	if c.Chain.ContractAddress != "" && !common.IsHexAddress(c.Chain.ContractAddress) {
		errs = append(errs, "chain.contract_address is not a hex address")
	}
	if _, err := c.Chain.TicketPriceWei(); err != nil {
		errs = append(errs, "chain.ticket_price: "+err.Error())
	}
	if c.Chain.PollInterval < 0 || c.Chain.ReceiptTimeout < 0 {
		errs = append(errs, "chain durations must not be negative")
	}
	if c.Wallet.Account != "" && !common.IsHexAddress(c.Wallet.Account) {
		errs = append(errs, "wallet.account is not a hex address")
	}
	// DB must have either URL or (Host, User, Name)
	if c.Database.Enabled && c.Database.URL == "" {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			errs = append(errs, "database.url or database.{host,user,name} must be set")
		}
	}
	if c.Security.PasswordHash != "" && !strings.HasPrefix(c.Security.PasswordHash, "$2") {
		errs = append(errs, "security.password_hash must be a bcrypt hash (see lottoctl hash-password)")
	}
	if c.Telegram.Enabled() && c.Telegram.GroupChatID == 0 && len(c.Telegram.AdminChatIDs) == 0 {
		errs = append(errs, "telegram.bot_token is set but no chat ids are configured")
	}
	if len(errs) > 0 {
		return errors.New(joinErrs(errs))
	}
	return nil
}

func joinErrs(es []string) string {
	if len(es) == 1 {
		return es[0]
	}
	out := es[0]
	for i := 1; i < len(es); i++ {
		out += "; " + es[i]
	}
	return out
}

// TicketPriceWei is the configured ticket price in wei.
func (c *ChainConfig) TicketPriceWei() (*big.Int, error) {
	wei, err := ether.Parse(c.TicketPrice)
	if err != nil {
		return nil, err
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("must be positive, got %s", c.TicketPrice)
	}
	return wei, nil
}

// ResolveContractAddress prefers the explicit address over the deploy output file.
func (c *ChainConfig) ResolveContractAddress() (common.Address, error) {
	if c.ContractAddress != "" {
		return lottery.ParseAddress(c.ContractAddress)
	}
	if c.ContractAddressFile == "" {
		return common.Address{}, errors.New("no contract address configured")
	}
	return lottery.LoadAddressFile(c.ContractAddressFile)
}

// AppURL returns a postgres connection URL for the application DB.
func (d *DatabaseConfig) AppURL() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return "", errors.New("database config incomplete: need host, user, name or set url")
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AdminURL is AppURL pointed at the maintenance "postgres" database, used
// to create the application database on first start.
func (d *DatabaseConfig) AdminURL() (string, error) {
	app, err := d.AppURL()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(app)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	u.Path = "/postgres"
	return u.String(), nil
}

// DBName is the application database name.
func (d *DatabaseConfig) DBName() string {
	if d.URL == "" {
		return d.Name
	}
	u, err := url.Parse(d.URL)
	if err != nil || strings.Trim(u.Path, "/") == "" {
		return d.Name
	}
	return strings.Trim(u.Path, "/")
}
