// Package lottery binds the deployed FantomLottery contract.
package lottery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		panic(fmt.Sprintf("lottery abi: %v", err))
	}
	return parsed
}

// Contract is a typed wrapper around the lottery's methods.
type Contract struct {
	address  common.Address
	contract *bind.BoundContract
}

// New binds the contract for both reads and transactions.
func New(address common.Address, backend bind.ContractBackend) *Contract {
	return &Contract{
		address:  address,
		contract: bind.NewBoundContract(address, parsedABI, backend, backend, backend),
	}
}

// NewCaller binds the contract for view calls only. Transacting through
// the returned value panics.
func NewCaller(address common.Address, caller bind.ContractCaller) *Contract {
	return &Contract{
		address:  address,
		contract: bind.NewBoundContract(address, parsedABI, caller, nil, nil),
	}
}

func (c *Contract) Address() common.Address { return c.address }

// Enter buys a ticket. The ticket price travels in opts.Value.
func (c *Contract) Enter(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.contract.Transact(opts, "enter")
}

func (c *Contract) Draw(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.contract.Transact(opts, "draw")
}

func (c *Contract) GetPaid(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.contract.Transact(opts, "getPaid")
}

// ViewWinnings returns the payable balance of opts.From.
func (c *Contract) ViewWinnings(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "viewWinnings")
}

func (c *Contract) ViewDrawFrequency(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "viewDrawFrequency")
}

func (c *Contract) ViewTicketPrice(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "viewTicketPrice")
}

func (c *Contract) ViewWinChance(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "viewWinChance")
}

func (c *Contract) ViewCurrentLottery(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "viewCurrentLottery")
}

func (c *Contract) ViewTicketHolders(opts *bind.CallOpts, ticketID [32]byte) ([]common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "viewTicketHolders", ticketID); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (c *Contract) ViewTicketNumber(opts *bind.CallOpts, ticketID [32]byte) (*big.Int, error) {
	return c.callBig(opts, "viewTicketNumber", ticketID)
}

func (c *Contract) ViewStartTime(opts *bind.CallOpts, lottoNumber *big.Int) (*big.Int, error) {
	return c.callBig(opts, "viewStartTime", lottoNumber)
}

func (c *Contract) ViewLastDrawTime(opts *bind.CallOpts, lottoNumber *big.Int) (*big.Int, error) {
	return c.callBig(opts, "viewLastDrawTime", lottoNumber)
}

func (c *Contract) ViewTotalPot(opts *bind.CallOpts, lottoNumber *big.Int) (*big.Int, error) {
	return c.callBig(opts, "viewTotalPot", lottoNumber)
}

func (c *Contract) ViewWinningTicket(opts *bind.CallOpts, lottoNumber *big.Int) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "viewWinningTicket", lottoNumber); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

func (c *Contract) ViewUserTicketList(opts *bind.CallOpts, lottoNumber *big.Int) ([][32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "viewUserTicketList", lottoNumber); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([][32]byte)).(*[][32]byte), nil
}

func (c *Contract) ReadyToDraw(opts *bind.CallOpts) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "readyToDraw"); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contract) callBig(opts *bind.CallOpts, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, method, args...); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Info is a read-only summary of the running lottery.
type Info struct {
	Address        common.Address `json:"address"`
	CurrentLottery *big.Int       `json:"current_lottery"`
	TicketPrice    *big.Int       `json:"ticket_price"`
	DrawFrequency  *big.Int       `json:"draw_frequency"`
	WinChance      *big.Int       `json:"win_chance"`
	TotalPot       *big.Int       `json:"total_pot"`
	StartTime      time.Time      `json:"start_time"`
	LastDrawTime   time.Time      `json:"last_draw_time"`
	ReadyToDraw    bool           `json:"ready_to_draw"`
	// Tickets held by the caller in the current lottery; empty without a From.
	MyTickets []common.Hash `json:"my_tickets,omitempty"`
}

// Odds renders the win chance the way the dashboard shows it, "1/<n>".
func (i Info) Odds() string {
	if i.WinChance == nil || i.WinChance.Sign() == 0 {
		return ""
	}
	return "1/" + i.WinChance.String()
}

// Info gathers the contract views into one snapshot. from may be the zero
// address, in which case per-user views are skipped.
func (c *Contract) Info(ctx context.Context, from common.Address) (Info, error) {
	opts := &bind.CallOpts{Context: ctx, From: from}
	info := Info{Address: c.address}

	var err error
	if info.CurrentLottery, err = c.ViewCurrentLottery(opts); err != nil {
		return info, fmt.Errorf("viewCurrentLottery: %w", err)
	}
	if info.TicketPrice, err = c.ViewTicketPrice(opts); err != nil {
		return info, fmt.Errorf("viewTicketPrice: %w", err)
	}
	if info.DrawFrequency, err = c.ViewDrawFrequency(opts); err != nil {
		return info, fmt.Errorf("viewDrawFrequency: %w", err)
	}
	if info.WinChance, err = c.ViewWinChance(opts); err != nil {
		return info, fmt.Errorf("viewWinChance: %w", err)
	}
	if info.TotalPot, err = c.ViewTotalPot(opts, info.CurrentLottery); err != nil {
		return info, fmt.Errorf("viewTotalPot: %w", err)
	}
	start, err := c.ViewStartTime(opts, info.CurrentLottery)
	if err != nil {
		return info, fmt.Errorf("viewStartTime: %w", err)
	}
	info.StartTime = unixTime(start)
	last, err := c.ViewLastDrawTime(opts, info.CurrentLottery)
	if err != nil {
		return info, fmt.Errorf("viewLastDrawTime: %w", err)
	}
	info.LastDrawTime = unixTime(last)
	if info.ReadyToDraw, err = c.ReadyToDraw(opts); err != nil {
		return info, fmt.Errorf("readyToDraw: %w", err)
	}
	if from != (common.Address{}) {
		tickets, err := c.ViewUserTicketList(opts, info.CurrentLottery)
		if err != nil {
			return info, fmt.Errorf("viewUserTicketList: %w", err)
		}
		for _, t := range tickets {
			info.MyTickets = append(info.MyTickets, common.Hash(t))
		}
	}
	return info, nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// LoadAddressFile reads the deploy output, {"Lotto": "0x..."}.
func LoadAddressFile(path string) (common.Address, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return common.Address{}, err
	}
	var f struct {
		Lotto string `json:"Lotto"`
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return common.Address{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return ParseAddress(f.Lotto)
}

// ParseAddress validates a hex contract address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("invalid contract address: " + s)
	}
	return common.HexToAddress(s), nil
}
