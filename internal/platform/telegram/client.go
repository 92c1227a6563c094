// Package telegram sends notification messages through the Telegram Bot
// API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/redact"
)

// ErrNotConfigured is returned by NewClient when no bot token is set.
var ErrNotConfigured = errors.New("telegram bot token not configured")

// APIError is a response from the Bot API with ok=false.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error %d (http %d): %s", e.ErrorCode, e.StatusCode, e.Description)
}

// Client calls the Bot API on behalf of one bot and posts to one chat.
type Client struct {
	httpClient *http.Client
	baseURL    string
	chatID     string
	logger     *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.TelegramConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, ErrNotConfigured
	}
	if cfg.ChatID == "" {
		return nil, errors.New("telegram chat id not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.APIURL, "/") + "/bot" + cfg.BotToken,
		chatID:     cfg.ChatID,
		logger:     logger.With(slog.String("component", "telegram_client")),
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send posts an HTML-formatted message to the configured chat.
func (c *Client) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if err := c.call(ctx, http.MethodPost, "sendMessage", body); err != nil {
		c.logger.Error("failed to send telegram message",
			slog.String("chat_id", c.chatID),
			slog.String("error", err.Error()))
		return err
	}

	c.logger.Debug("telegram message sent", slog.String("chat_id", c.chatID))
	return nil
}

// CheckHealth verifies the bot token with getMe.
func (c *Client) CheckHealth(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "getMe", nil)
}

func (c *Client) call(ctx context.Context, method, endpoint string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token.
		return fmt.Errorf("telegram %s request failed: %s", endpoint, redact.Error(err))
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode telegram %s response (http %d): %w", endpoint, resp.StatusCode, err)
	}
	if !result.OK {
		return &APIError{StatusCode: resp.StatusCode, ErrorCode: result.ErrorCode, Description: result.Description}
	}
	return nil
}
