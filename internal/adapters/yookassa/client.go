// Package yookassa выполняет автосписания по сохранённому способу оплаты
// через YooKassa API.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Config настраивает клиента YooKassa.
type Config struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	Timeout   time.Duration
}

// Client выполняет запросы к /v3/payments.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.PaymentProvider = (*Client)(nil)

// NewClient создаёт клиента YooKassa.
func NewClient(cfg Config) *Client {
	client := &Client{cfg: cfg}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.httpClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.yookassa.ru"
	}
	return client
}

// SetHTTPClient подменяет транспорт. Используется в тестах.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type amountPayload struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type createPaymentRequest struct {
	Amount          amountPayload  `json:"amount"`
	Capture         bool           `json:"capture"`
	PaymentMethodID string         `json:"payment_method_id"`
	Description     string         `json:"description,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ChargeSaved реализует domain.PaymentProvider: автосписание без участия
// пользователя. Ключ идемпотентности обязателен, его несёт заголовок.
func (c *Client) ChargeSaved(ctx context.Context, charge domain.PaymentCharge) (domain.PaymentResult, error) {
	if charge.IdempotenceKey == "" {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: idempotence key is required")
	}
	currency := charge.Currency
	if currency == "" {
		currency = "RUB"
	}
	body, err := json.Marshal(createPaymentRequest{
		Amount:          amountPayload{Value: formatMinor(charge.AmountMinor), Currency: currency},
		Capture:         true,
		PaymentMethodID: charge.PaymentMethodID,
		Description:     charge.Description,
		Metadata:        map[string]any{"user_id": charge.UserID},
	})
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v3/payments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", charge.IdempotenceKey)
	req.SetBasicAuth(c.cfg.ShopID, c.cfg.SecretKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("yookassa", "payment_create", "payments", start, err)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: unexpected status %d: %s", resp.StatusCode, clipBody(respBody))
	}
	var payment paymentResponse
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("yookassa: decode response: %w", err)
	}
	return domain.PaymentResult{PaymentID: payment.ID, Status: payment.Status}, nil
}

// formatMinor переводит сумму в копейках в строку вида "990.00".
func formatMinor(minor int64) string {
	return strconv.FormatInt(minor/100, 10) + "." + fmt.Sprintf("%02d", minor%100)
}

func clipBody(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}
