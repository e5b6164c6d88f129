package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/sirupsen/logrus"
)

// DefaultTelegramURL is the Bot API root
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramConfig configures a TelegramSender.
type TelegramConfig struct {
	BotToken string
	ChatIDs  []string

	// BaseURL overrides DefaultTelegramURL
	BaseURL string

	// RetryAttempts is the number of extra attempts after a failed send
	RetryAttempts int
	// RetryDelay is the first backoff, doubled after every failed attempt
	RetryDelay time.Duration
	// Timeout bounds one request when the caller's context has no deadline
	Timeout time.Duration

	Clock  clock.Clock
	Logger *logrus.Logger
}

// Validate checks the required credentials.
func (c *TelegramConfig) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if len(c.ChatIDs) == 0 {
		return fmt.Errorf("at least one telegram chat id is required")
	}
	return nil
}

// TelegramOption allows for customization of the sender
type TelegramOption func(*TelegramSender)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(s *TelegramSender) {
		s.httpClient = client
	}
}

// TelegramSender posts messages through the Telegram Bot API sendMessage
// method to every configured chat.
type TelegramSender struct {
	config     TelegramConfig
	httpClient *http.Client
	clock      clock.Clock
	logger     *logrus.Logger
}

// NewTelegramSender creates a sender after validating config.
func NewTelegramSender(config TelegramConfig, opts ...TelegramOption) (*TelegramSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultTelegramURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	sender := &TelegramSender{
		config:     config,
		httpClient: &http.Client{},
		clock:      config.Clock,
		logger:     config.Logger,
	}

	for _, opt := range opts {
		opt(sender)
	}

	return sender, nil
}

type sendMessageRequest struct {
	ChatID             string `json:"chat_id"`
	Text               string `json:"text"`
	DisablePagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send delivers text to every chat. A chat that still fails after the
// retries is reported in the returned error; the others are still tried.
func (s *TelegramSender) Send(ctx context.Context, text string) error {
	var failed []string
	for _, chatID := range s.config.ChatIDs {
		if err := s.sendWithRetry(ctx, chatID, text); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", chatID, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("telegram send failed for %s", strings.Join(failed, "; "))
	}
	return nil
}

func (s *TelegramSender) sendWithRetry(ctx context.Context, chatID, text string) error {
	delay := s.config.RetryDelay

	var err error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if err = s.sendMessage(ctx, chatID, text); err == nil {
			return nil
		}

		if attempt < s.config.RetryAttempts {
			s.logger.WithFields(logrus.Fields{
				"chat_id": chatID,
				"attempt": attempt + 1,
				"error":   err,
			}).Debug("Retrying telegram message")

			if sleepErr := s.clock.Sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			delay *= 2
		}
	}
	return err
}

func (s *TelegramSender) sendMessage(ctx context.Context, chatID, text string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:             chatID,
		Text:               text,
		DisablePagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.config.BaseURL, s.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The request URL embeds the bot token; keep it out of logs.
		return fmt.Errorf("failed to make request: %s", strings.ReplaceAll(err.Error(), s.config.BotToken, "***"))
	}
	defer resp.Body.Close()

	return s.handleResponse(resp)
}

// handleResponse checks for Bot API errors in the response
func (s *TelegramSender) handleResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("telegram api error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.OK {
		return nil
	}

	return fmt.Errorf("telegram api error: code=%d description=%s", parsed.ErrorCode, parsed.Description)
}
