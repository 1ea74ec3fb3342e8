package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
)

// Telegram 通过 Bot API 推送。用户绑定了 chat id 时发给用户,告警额外发给运营群。
type Telegram struct {
	token          string
	operatorChatID string
	baseURL        string
	client         *http.Client
}

func NewTelegram(token, operatorChatID string) *Telegram {
	return &Telegram{
		token:          token,
		operatorChatID: operatorChatID,
		baseURL:        "https://api.telegram.org",
		client:         &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, to Recipient, n *model.Notification) error {
	if t.token == "" {
		return fmt.Errorf("telegram 未配置 token")
	}
	var chats []string
	if to.User != nil && to.User.TelegramChatID != "" {
		chats = append(chats, to.User.TelegramChatID)
	}
	if to.Operator && t.operatorChatID != "" {
		chats = append(chats, t.operatorChatID)
	}
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
	for _, chat := range chats {
		if err := t.send(ctx, chat, text); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
