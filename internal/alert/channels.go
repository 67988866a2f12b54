package alert

import (
	"context"
	"fmt"
	"net/smtp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-resty/resty/v2"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/security"
)

// ChannelConfig holds the per-channel destination settings the multi
// deliverer needs; a zero destination disables that channel (Deliver returns
// a "not configured" error for it).
type ChannelConfig struct {
	SMTPAddr     string
	SMTPFrom     string
	SMTPTo       []string
	SMTPAuth     smtp.Auth
	TelegramChat int64
	SlackWebhook string
	SMSWebhook   string
}

// MultiDeliverer fans an alert out to its channel's concrete transport:
// SMTP for email, a Telegram bot for telegram, and webhook POSTs (via
// resty, the same HTTP client the social/macro collectors use) for SMS and
// Slack providers that expose a webhook integration.
type MultiDeliverer struct {
	cfg      ChannelConfig
	telegram *tgbotapi.BotAPI
	http     *resty.Client
}

func NewMultiDeliverer(cfg ChannelConfig, telegramToken string) (*MultiDeliverer, error) {
	d := &MultiDeliverer{cfg: cfg, http: resty.New()}
	if telegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(telegramToken)
		if err != nil {
			return nil, fmt.Errorf("alert: telegram bot init: %w", err)
		}
		d.telegram = bot
	}
	return d, nil
}

func (d *MultiDeliverer) Deliver(ctx context.Context, ch domain.Channel, a domain.Alert) error {
	switch ch {
	case domain.ChannelLog:
		logger.WithFields(map[string]any{"alert_id": a.ID, "severity": a.Severity}).Infof("%s: %s", a.Title, a.Message)
		return nil
	case domain.ChannelEmail:
		return d.deliverEmail(a)
	case domain.ChannelTelegram:
		return d.deliverTelegram(a)
	case domain.ChannelSlack:
		return d.deliverWebhook(ctx, d.cfg.SlackWebhook, a)
	case domain.ChannelSMS:
		return d.deliverWebhook(ctx, d.cfg.SMSWebhook, a)
	default:
		return fmt.Errorf("alert: unknown channel %s", ch)
	}
}

func (d *MultiDeliverer) deliverEmail(a domain.Alert) error {
	if d.cfg.SMTPAddr == "" {
		return fmt.Errorf("alert: email channel not configured")
	}
	body := fmt.Sprintf("Subject: [%s] %s\r\n\r\n%s\r\n", a.Severity, a.Title, a.Message)
	return smtp.SendMail(d.cfg.SMTPAddr, d.cfg.SMTPAuth, d.cfg.SMTPFrom, d.cfg.SMTPTo, []byte(body))
}

func (d *MultiDeliverer) deliverTelegram(a domain.Alert) error {
	if d.telegram == nil || d.cfg.TelegramChat == 0 {
		return fmt.Errorf("alert: telegram channel not configured")
	}
	msg := tgbotapi.NewMessage(d.cfg.TelegramChat, fmt.Sprintf("[%s] %s\n%s", a.Severity, a.Title, a.Message))
	_, err := d.telegram.Send(msg)
	return err
}

func (d *MultiDeliverer) deliverWebhook(ctx context.Context, url string, a domain.Alert) error {
	if url == "" {
		return fmt.Errorf("alert: webhook not configured")
	}
	if err := security.ValidateURL(url); err != nil {
		return fmt.Errorf("alert: webhook URL rejected: %w", err)
	}
	resp, err := d.http.R().SetContext(ctx).SetBody(map[string]string{
		"severity": string(a.Severity),
		"title":    a.Title,
		"message":  a.Message,
	}).Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("alert: webhook %s returned status %d", url, resp.StatusCode())
	}
	return nil
}
