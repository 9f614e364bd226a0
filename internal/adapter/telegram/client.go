package telegram

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	DefaultAPIBase = "https://api.telegram.org"

	// WebhookPath is where Telegram posts updates.
	WebhookPath = "/telegram/events"

	// SecretHeader carries the secret_token registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// AllowedUpdates are the update kinds the webhook subscribes to.
var AllowedUpdates = []string{"message", "edited_message", "channel_post", "edited_channel_post"}

// WebhookSecret derives the webhook secret_token from the bot token, so the
// service and livectl agree on it without sharing another setting.
func WebhookSecret(token string) string {
	sum := sha256.Sum256([]byte("live-service telegram webhook:" + token))
	return hex.EncodeToString(sum[:])
}

// Client wraps the Bot API calls the adapter and livectl need.
type Client struct {
	bot  *tgbotapi.BotAPI
	base string
}

// NewClient builds a client for token against base. Unlike
// tgbotapi.NewBotAPI it does not call getMe.
func NewClient(base, token string, hc *http.Client) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	base = strings.TrimSuffix(base, "/")
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	bot := &tgbotapi.BotAPI{Token: token, Client: hc, Buffer: 100}
	bot.SetAPIEndpoint(base + "/bot%s/%s")
	return &Client{bot: bot, base: base}
}

// redact strips the token from transport errors, whose URLs embed it.
func (c *Client) redact(method string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("telegram %s: %d %s", method, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), c.bot.Token, "<token>"))
}

// FilePath resolves a file id to the path used for downloading it.
func (c *Client) FilePath(fileID string) (string, error) {
	f, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", c.redact("getFile", err)
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}
	return f.FilePath, nil
}

func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.base, c.bot.Token, filePath)
}

func (c *Client) SendMessage(chatID int64, text string) error {
	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return c.redact("sendMessage", err)
	}
	return nil
}

// SetWebhook points the bot's updates at webhookURL. Telegram echoes secret
// in SecretHeader on every delivery.
func (c *Client) SetWebhook(webhookURL, secret string) error {
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	params := tgbotapi.Params{"url": wh.URL.String()}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return err
	}
	if _, err := c.bot.MakeRequest("setWebhook", params); err != nil {
		return c.redact("setWebhook", err)
	}
	return nil
}

// WebhookURL returns the URL currently registered for the bot.
func (c *Client) WebhookURL() (string, error) {
	info, err := c.bot.GetWebhookInfo()
	if err != nil {
		return "", c.redact("getWebhookInfo", err)
	}
	return info.URL, nil
}
