package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lp-hedge-bot/internal/config"

	"go.uber.org/zap"
)

const pushoverMessagesURL = "https://api.pushover.net/1/messages.json"

type Pushover struct {
	enabled bool
	token   string
	userKey string
	apiURL  string
	client  *http.Client
	log     *zap.Logger
}

func NewPushover(cfg config.PushoverConfig, log *zap.Logger) *Pushover {
	return newPushover(cfg, log, pushoverMessagesURL, &http.Client{Timeout: 10 * time.Second})
}

func newPushover(cfg config.PushoverConfig, log *zap.Logger, apiURL string, client *http.Client) *Pushover {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Pushover{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		userKey: strings.TrimSpace(cfg.UserKey),
		apiURL:  apiURL,
		client:  client,
		log:     log,
	}
}

func (p *Pushover) Send(ctx context.Context, msg Message) error {
	if !p.enabled {
		return nil
	}
	if p.token == "" || p.userKey == "" {
		return errors.New("pushover token and user_key are required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("pushover message is empty")
	}
	form := url.Values{
		"token":   {p.token},
		"user":    {p.userKey},
		"message": {msg.Body},
	}
	if msg.Title != "" {
		form.Set("title", msg.Title)
	}
	if msg.Priority != 0 {
		form.Set("priority", strconv.Itoa(msg.Priority))
	}
	if msg.Sound != "" {
		form.Set("sound", msg.Sound)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("pushover send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
