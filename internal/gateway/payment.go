package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

var ErrGatewayNotConfigured = errors.New("payment gateway credentials are not configured")

type PaymentConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// PaymentClient talks to a Razorpay-compatible orders API.
type PaymentClient struct {
	config  PaymentConfig
	client  *fasthttp.Client
	metrics *UpstreamMetrics
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PaymentClient{
		config:  cfg,
		client:  newFastClient("kryos-payments", cfg.Timeout),
		metrics: NewUpstreamMetrics(),
	}
}

// KeyID is the public key handed to the browser checkout.
func (c *PaymentClient) KeyID() string {
	return c.config.KeyID
}

func (c *PaymentClient) Stats() UpstreamStats {
	return c.metrics.Snapshot("payment_gateway")
}

// ToMinorUnits converts a major-unit amount to the integer the gateway
// expects (paise for INR).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type OrderParams struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

type createOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder posts a new order. Non-2xx answers come back as *APIError.
// There is no retry.
func (c *PaymentClient) CreateOrder(ctx context.Context, p OrderParams) (*model.Order, error) {
	if c.config.KeyID == "" || c.config.KeySecret == "" {
		return nil, ErrGatewayNotConfigured
	}
	notes := p.Notes
	if notes == nil {
		notes = map[string]string{}
	}
	body, err := json.Marshal(createOrderBody{
		Amount:   ToMinorUnits(p.Amount),
		Currency: p.Currency,
		Receipt:  p.Receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + "/v1/orders")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", basicAuth(c.config.KeyID, c.config.KeySecret))
	req.SetBody(body)

	start := time.Now()
	if err := doRequest(ctx, c.client, c.config.Timeout, c.metrics, req, resp); err != nil {
		return nil, err
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status, Description: strings.TrimSpace(string(resp.Body()))}
		var env errorEnvelope
		if json.Unmarshal(resp.Body(), &env) == nil && env.Error.Description != "" {
			apiErr.Code = env.Error.Code
			apiErr.Description = env.Error.Description
		}
		logger.Warn("[gateway] create order rejected", "status", status, "code", apiErr.Code, "description", apiErr.Description)
		return nil, apiErr
	}

	var order model.Order
	if err := json.Unmarshal(copyBody(resp), &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	logger.Debug("[gateway] order created", "order_id", order.ID, "amount", order.Amount, "latency_ms", time.Since(start).Milliseconds())
	return &order, nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
