package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/images"
)

const (
	DefaultTelegramAPI = "https://api.telegram.org"

	// Bot API limits, in characters.
	maxMessageLength = 4096
	maxCaptionLength = 1024
)

// Telegram sends diagnostics to a debug chat and alerts to a notification
// chat through the Bot API.
type Telegram struct {
	APIURL             string
	Token              string
	DebugChatID        int64
	NotificationChatID int64
	HTTPClient         *http.Client
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token string, debugChatID, notificationChatID int64) *Telegram {
	return &Telegram{
		APIURL:             DefaultTelegramAPI,
		Token:              token,
		DebugChatID:        debugChatID,
		NotificationChatID: notificationChatID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) SendDiagnosticText(ctx context.Context, text string) error {
	return t.sendMessage(ctx, t.DebugChatID, text)
}

func (t *Telegram) SendDiagnosticImage(ctx context.Context, img *images.Capture, caption string) error {
	return t.sendPhoto(ctx, t.DebugChatID, img, caption)
}

func (t *Telegram) SendAlert(ctx context.Context, img *images.Capture, caption string) error {
	return t.sendPhoto(ctx, t.NotificationChatID, img, caption)
}

func (t *Telegram) endpoint(method string) string {
	base := t.APIURL
	if base == "" {
		base = DefaultTelegramAPI
	}
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(base, "/"), t.Token, method)
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    truncate(text, maxMessageLength),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.endpoint("sendMessage"), bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req, "sendMessage", chatID)
}

func (t *Telegram) sendPhoto(ctx context.Context, chatID int64, img *images.Capture, caption string) error {
	if img == nil {
		return fmt.Errorf("no image to send")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("failed to write form field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", truncate(caption, maxCaptionLength)); err != nil {
			return fmt.Errorf("failed to write form field: %w", err)
		}
	}
	filename := img.Source + ".png"
	part, err := writer.CreateFormFile("photo", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img.PNG); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.endpoint("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return t.do(req, "sendPhoto", chatID)
}

func (t *Telegram) do(req *http.Request, method string, chatID int64) error {
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs and errors.
		return fmt.Errorf("failed to send %s request", method)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var result telegramResponse
	_ = json.Unmarshal(data, &result)

	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("telegram %s returned status %d: %s", method, resp.StatusCode, result.Description)
	}

	slog.Debug("Telegram message delivered", "method", method, "chat_id", chatID)
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
