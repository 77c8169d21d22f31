package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramHTTPTimeout = 10 * time.Second

// TelegramSink 通过Telegram Bot发送到固定chat
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink 创建Telegram通道（会调用getMe校验token）
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	return NewTelegramSinkWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewTelegramSinkWithEndpoint 指定API地址，endpoint格式同tgbotapi.APIEndpoint
func NewTelegramSinkWithEndpoint(token string, chatID int64, endpoint string) (*TelegramSink, error) {
	return newTelegramSink(token, chatID, endpoint, telegramHTTPTimeout)
}

func newTelegramSink(token string, chatID int64, endpoint string, timeout time.Duration) (*TelegramSink, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id required")
	}
	// 默认http.Client没有超时，单个卡住的请求会拖住整个通知worker
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	bot.Debug = false
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

// Send 发送文本消息。tgbotapi不接受ctx，ctx先结束时直接返回，
// 后台请求由HTTP客户端超时兜底
func (s *TelegramSink) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
