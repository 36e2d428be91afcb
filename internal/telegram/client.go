// Package telegram provides the notification dispatcher and the bot command
// interface.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/polydictions/polydictions/internal/logger"
)

// Client handles Telegram sends to users and the broadcast channel.
type Client struct {
	bot            *tgbotapi.BotAPI
	channelID      int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client. channelID 0 disables broadcasts.
func NewClient(botToken string, channelID int64) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Client{
		bot:            bot,
		channelID:      channelID,
		maxRetries:     3,
		retryDelayBase: time.Second,
	}, nil
}

// SendToUser delivers an HTML message to a single user. Returns false on
// failure; delivery errors are logged, never propagated.
func (c *Client) SendToUser(userID int64, text string) bool {
	if err := c.sendHTML(userID, text); err != nil {
		logger.Error("Failed to send message to user %d: %v", userID, err)
		return false
	}
	return true
}

// SendToChannel delivers an HTML message to the broadcast channel. A missing
// channel is a no-op returning false, not an error.
func (c *Client) SendToChannel(text string) bool {
	if c.channelID == 0 {
		return false
	}
	if err := c.sendHTML(c.channelID, text); err != nil {
		logger.Error("Failed to send message to channel %d: %v", c.channelID, err)
		return false
	}
	return true
}

// sendHTML sends an HTML message with linear-backoff retry.
func (c *Client) sendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// routes bot commands through the handler. It returns immediately; the
// goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, h *Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				for _, reply := range h.Handle(ctx, update.Message) {
					if reply == "" {
						continue
					}
					if err := c.sendHTML(update.Message.Chat.ID, reply); err != nil {
						logger.Error("Failed to reply to chat %d: %v", update.Message.Chat.ID, err)
					}
				}
			}
		}
	}()
}
