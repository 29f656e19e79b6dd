// Package events доставляет доменные события во внешний обработчик (webhook).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/association-finance/internal/model"
)

// Client отправляет события на адрес webhook.
type Client struct {
	endpoint   string
	httpClient *retryablehttp.Client
}

// NewClient создаёт HTTP-клиент для отправки событий на указанный адрес.
func NewClient(endpoint string) *Client {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		endpoint:   endpoint,
		httpClient: rc,
	}
}

// checkRetry повторяет запрос при сетевых ошибках и 5xx. Ответ 429 возвращается
// вызывающему, чтобы тот выдержал паузу из Retry-After.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Send отправляет событие. Для ответа 429 возвращает паузу из заголовка Retry-After
// без ошибки.
func (c *Client) Send(ctx context.Context, e model.Event) (int, time.Duration, error) {
	if c == nil || c.endpoint == "" {
		return 0, 0, fmt.Errorf("events client not configured")
	}

	body, err := json.Marshal(e)
	if err != nil {
		return 0, 0, fmt.Errorf("encode event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(e.Type))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return resp.StatusCode, 0, nil
}
