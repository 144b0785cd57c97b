package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roamlotto/internal/ether"
	"roamlotto/internal/lottery"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const helpText = `Commands:
/winnings <address> - payable winnings of an address
/lottery - the running lottery
/help - this message`

// Lottery is the read-only contract surface the bot answers from.
type Lottery interface {
	ViewWinnings(opts *bind.CallOpts) (*big.Int, error)
	Info(ctx context.Context, from common.Address) (lottery.Info, error)
}

// Poller long-polls getUpdates and answers read-only commands.
type Poller struct {
	client *Client
	lotto  Lottery
	// RetryDelay is the pause after a failed fetch.
	RetryDelay time.Duration
}

type update struct {
	UpdateID int              `json:"update_id"`
	Message  *incomingMessage `json:"message"`
}

type incomingMessage struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	} `json:"chat"`
	Date int64 `json:"date"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

func NewPoller(client *Client, lotto Lottery) *Poller {
	if client == nil || client.Token == "" {
		return nil
	}
	return &Poller{client: client, lotto: lotto, RetryDelay: 5 * time.Second}
}

func (p *Poller) Run(ctx context.Context) {
	if p == nil {
		return
	}
	slog.Info("telegram.poller.start")
	defer slog.Info("telegram.poller.stop")
	var offset int
	for ctx.Err() == nil {
		updates, err := p.fetchUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("telegram.poller.fetch", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.RetryDelay):
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			p.handleUpdate(ctx, upd)
		}
	}
}

func (p *Poller) fetchUpdates(ctx context.Context, offset int) ([]update, error) {
	data := url.Values{}
	if offset > 0 {
		data.Set("offset", strconv.Itoa(offset))
	}
	data.Set("timeout", "30")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.client.endpoint("getUpdates"), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.client.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var res updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("telegram api returned not ok")
	}
	return res.Result, nil
}

func (p *Poller) handleUpdate(ctx context.Context, upd update) {
	if upd.Message == nil || upd.Message.Text == "" {
		return
	}
	fields := strings.Fields(upd.Message.Text)
	if len(fields) == 0 {
		return
	}
	// "/lottery@SomeBot" in groups
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	slog.Debug("telegram.poller.command", "cmd", cmd, "chat_id", upd.Message.Chat.ID)

	var answer string
	switch cmd {
	case "/winnings":
		answer = p.winnings(ctx, fields[1:])
	case "/lottery":
		answer = p.lotteryInfo(ctx)
	case "/help", "/start":
		answer = helpText
	default:
		return
	}
	p.client.SendMessage(ctx, upd.Message.Chat.ID, answer)
}

func (p *Poller) winnings(ctx context.Context, args []string) string {
	if len(args) != 1 || !common.IsHexAddress(args[0]) {
		return "Usage: /winnings <address>"
	}
	addr := common.HexToAddress(args[0])
	v, err := p.lotto.ViewWinnings(&bind.CallOpts{Context: ctx, From: addr})
	if err != nil {
		slog.Warn("telegram.poller.winnings", "account", addr.Hex(), "err", err)
		return "Could not read winnings right now."
	}
	return fmt.Sprintf("%s can claim %s ETH.", ether.ShortAddress(addr.Hex()), ether.Format(v))
}

func (p *Poller) lotteryInfo(ctx context.Context) string {
	info, err := p.lotto.Info(ctx, common.Address{})
	if err != nil {
		slog.Warn("telegram.poller.lottery", "err", err)
		return "Could not read the lottery right now."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Lottery #%s\n", info.CurrentLottery)
	fmt.Fprintf(&b, "Ticket price: %s ETH\n", ether.Format(info.TicketPrice))
	fmt.Fprintf(&b, "Pot: %s ETH\n", ether.Format(info.TotalPot))
	if odds := info.Odds(); odds != "" {
		fmt.Fprintf(&b, "Odds: %s\n", odds)
	}
	if info.ReadyToDraw {
		b.WriteString("Ready to draw.")
	} else {
		b.WriteString("Not ready to draw yet.")
	}
	return b.String()
}
