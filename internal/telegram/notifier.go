package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roamlotto/internal/notify"
)

const defaultAPIBase = "https://api.telegram.org"

// Client talks to the Bot API.
type Client struct {
	// APIBase is overridable for tests.
	APIBase string
	Token   string
	HTTP    *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		APIBase: defaultAPIBase,
		Token:   strings.TrimSpace(token),
		HTTP:    &http.Client{Timeout: 35 * time.Second},
	}
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.APIBase, "/"), c.Token, method)
}

// SendMessage posts msg to chatID. Failures are logged, never returned.
func (c *Client) SendMessage(ctx context.Context, chatID int64, msg string) {
	if c == nil || c.Token == "" || chatID == 0 {
		return
	}
	body, err := json.Marshal(map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
		"text":    msg,
	})
	if err != nil {
		slog.Warn("telegram.marshal", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		slog.Warn("telegram.request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		slog.Warn("telegram.send", "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Warn("telegram.send.status", "status", resp.Status, "chat_id", chatID)
	}
}

type Notifier struct {
	client      *Client
	groupChatID int64
	adminChats  []int64
}

// New returns notify.Noop when no bot token is configured.
func New(client *Client, groupChatID int64, adminChatIDs []int64) notify.Notifier {
	if client == nil || client.Token == "" {
		return notify.Noop{}
	}
	return &Notifier{
		client:      client,
		groupChatID: groupChatID,
		adminChats:  append([]int64(nil), adminChatIDs...),
	}
}

func (n *Notifier) NotifyAdmins(ctx context.Context, msg string) {
	for _, id := range n.adminChats {
		n.client.SendMessage(ctx, id, msg)
	}
}

func (n *Notifier) NotifyGroup(ctx context.Context, msg string) {
	n.client.SendMessage(ctx, n.groupChatID, msg)
}
