// Package push предоставляет клиент шлюза realtime-уведомлений.
// Шлюз доставляет подключённым клиентам сигнал о новых уведомлениях;
// сама доставка находится вне зоны ответственности сервиса.
package push

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

// Client инкапсулирует HTTP-взаимодействие со шлюзом push-уведомлений.
type Client struct {
	baseURL string
	http    *resty.Client
}

// Nudge описывает сигнал шлюзу о появлении нового уведомления у пользователя.
type Nudge struct {
	UserID int64  `json:"user_id"`
	Type   string `json:"type"`
}

// NewClient создаёт клиент шлюза push-уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		http:    resty.New().SetTimeout(5 * time.Second),
	}
}

// Notify отправляет шлюзу сигнал о новом уведомлении пользователя.
// Запрос повторяется с экспоненциальной задержкой до трёх попыток.
func (c *Client) Notify(ctx context.Context, userID int64, notificationType string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("push client not configured")
	}

	url := fmt.Sprintf("%s/api/push", c.baseURL)

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(Nudge{UserID: userID, Type: notificationType}).
			Post(url)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("push request: %w", err))
		}

		switch {
		case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusAccepted:
			return nil
		case resp.StatusCode() >= http.StatusInternalServerError:
			return retry.RetryableError(fmt.Errorf("push gateway status: %d", resp.StatusCode()))
		default:
			return fmt.Errorf("push gateway status: %d", resp.StatusCode())
		}
	})
}
