// Package payment предоставляет клиент внешнего шлюза выплат.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDeclined возвращается, когда шлюз явно отказал в выплате.
var (
	ErrDeclined = errors.New("payment declined by gateway")
	// ErrUnknown возвращается, когда исход вызова неизвестен: сетевая ошибка,
	// таймаут или нечитаемый ответ. Выплата могла пройти на стороне шлюза,
	// поэтому вызывающий код не должен делать компенсирующих действий.
	ErrUnknown = errors.New("payment outcome unknown")
)

// Client инкапсулирует HTTP-взаимодействие со шлюзом выплат.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type payRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Token   string `json:"token"`
}

type payResponse struct {
	Success      bool   `json:"success"`
	TxHash       string `json:"txHash"`
	ExplorerLink string `json:"explorerLink"`
	Error        string `json:"error"`
}

// Result описывает подтверждённую шлюзом выплату.
type Result struct {
	TxHash       string
	ExplorerLink string
}

// NewClient создаёт HTTP-клиент для обращения к шлюзу выплат по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Pay выполняет выплату токенов на указанный кошелёк. Определённый отказ
// шлюза различим от неизвестного исхода через ErrDeclined и ErrUnknown.
func (c *Client) Pay(ctx context.Context, wallet string, amount decimal.Decimal) (*Result, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	body, err := json.Marshal(payRequest{
		Address: wallet,
		Amount:  amount.String(),
		Token:   "WKC",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/pay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: gateway status %d", ErrUnknown, resp.StatusCode)
	}

	var result payResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", ErrUnknown, err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		reason := result.Error
		if reason == "" {
			reason = fmt.Sprintf("gateway status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrDeclined, reason)
	}

	return &Result{
		TxHash:       result.TxHash,
		ExplorerLink: result.ExplorerLink,
	}, nil
}
