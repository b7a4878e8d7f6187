package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/logging"
)

// Notification carries everything a delivery channel needs to render one
// low-balance alert.
type Notification struct {
	Address        string
	Chain          string
	Balance        decimal.Decimal
	Threshold      decimal.Decimal
	SuggestedTopUp decimal.Decimal
	DeepLink       string
	ObservedAt     time.Time
	Channels       []string
	Label          string

	// QRPNG, when set, is a rendered QR image of the deep link attached to
	// the message.
	QRPNG []byte
}

// Notifier delivers alert notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram delivery channel.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logging.Component(logger, "alert_telegram"),
	}
}

// Notify renders the alert text and pushes it via sendMessage. When a QR
// image is attached it is sent via sendPhoto with the text as caption
// instead, so the deep link stays scannable on the receiving device.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	text := RenderMessage(note)

	var err error
	if len(note.QRPNG) > 0 {
		err = n.sendPhoto(ctx, text, note.QRPNG)
	} else {
		err = n.sendMessage(ctx, text)
	}
	if err != nil {
		return err
	}

	n.logger.Info().
		Str("chain", note.Chain).
		Str("address", logging.MaskAddress(note.Address)).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert delivered")
	return nil
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return n.do(req)
}

func (n *TelegramNotifier) sendPhoto(ctx context.Context, caption string, png []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("chat_id", n.chatID); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("write caption field: %w", err)
	}
	part, err := writer.CreateFormFile("photo", "topup-qr.png")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalise multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return n.do(req)
}

func (n *TelegramNotifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}
	return nil
}

// RenderMessage produces the deterministic human-readable alert text. The
// wallet address appears in full here: the recipient needs it to act, and
// the delivery channel is the user's own. Log output goes through masking
// instead.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Gas Top-Up Alert]\n")
	if note.Label != "" {
		builder.WriteString(fmt.Sprintf("Label: %s\n", note.Label))
	}
	builder.WriteString(fmt.Sprintf("Wallet: %s\n", note.Address))
	builder.WriteString(fmt.Sprintf("Chain: %s\n", note.Chain))
	builder.WriteString(fmt.Sprintf("Balance: %s (threshold %s)\n", note.Balance.String(), note.Threshold.String()))
	builder.WriteString(fmt.Sprintf("Suggested top-up: %s\n", note.SuggestedTopUp.String()))
	builder.WriteString(fmt.Sprintf("Top up: %s\n", note.DeepLink))
	builder.WriteString(fmt.Sprintf("Observed: %s UTC\n", note.ObservedAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
