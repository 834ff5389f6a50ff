package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kryos/kryos-api/internal/config"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/signature"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	OrderCreated   = "created"
	OrderAttempted = "attempted"
	OrderPaid      = "paid"
)

// CreateOrderRequest mirrors the gateway's order body. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount" binding:"required"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

// CheckoutResult is what the browser widget hands back to the merchant page.
type CheckoutResult struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id,omitempty"`
	Signature string `json:"razorpay_signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// MockGateway keeps orders in memory and signs successful checkouts with the
// merchant secret.
type MockGateway struct {
	keyID       string
	secret      string
	successRate float64
	maxDelay    time.Duration

	mu     sync.Mutex
	orders map[string]*model.Order
	rng    *rand.Rand
}

func NewMockGateway(keyID, secret string, successRate float64, maxDelay time.Duration) *MockGateway {
	return &MockGateway{
		keyID:       keyID,
		secret:      secret,
		successRate: successRate,
		maxDelay:    maxDelay,
		orders:      make(map[string]*model.Order),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func (m *MockGateway) delay() {
	if m.maxDelay <= 0 {
		return
	}
	m.mu.Lock()
	d := time.Duration(m.rng.Int63n(int64(m.maxDelay)))
	m.mu.Unlock()
	time.Sleep(d)
}

func (m *MockGateway) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successRate
}

func (m *MockGateway) SetSuccessRate(rate float64) {
	m.mu.Lock()
	m.successRate = rate
	m.mu.Unlock()
}

func (m *MockGateway) shouldSucceed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.successRate
}

func (m *MockGateway) createOrder(req CreateOrderRequest) *model.Order {
	currency := req.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}
	notes := req.Notes
	if notes == nil {
		notes = map[string]string{}
	}
	order := &model.Order{
		ID:        newID("order_"),
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  currency,
		Receipt:   req.Receipt,
		Status:    OrderCreated,
		Notes:     notes,
		CreatedAt: time.Now().Unix(),
	}
	m.mu.Lock()
	m.orders[order.ID] = order
	m.mu.Unlock()
	return order
}

func (m *MockGateway) order(id string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// checkout simulates the widget. A paid order cannot be paid again.
func (m *MockGateway) checkout(orderID string) (*CheckoutResult, error) {
	m.delay()
	succeed := m.shouldSucceed()

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, errNoSuchOrder
	}
	if o.Status == OrderPaid {
		return nil, errAlreadyPaid
	}
	o.Attempts++
	if !succeed {
		o.Status = OrderAttempted
		return &CheckoutResult{OrderID: orderID, Error: "Payment declined by issuing bank"}, nil
	}
	paymentID := newID("pay_")
	o.Status = OrderPaid
	o.AmountPaid = o.Amount
	o.AmountDue = 0
	return &CheckoutResult{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: signature.Sign(orderID, paymentID, m.secret),
	}, nil
}

var (
	errNoSuchOrder = errors.New("order does not exist")
	errAlreadyPaid = errors.New("order is already paid")
)

type Handler struct {
	gw *MockGateway
}

func NewHandler(gw *MockGateway) *Handler {
	return &Handler{gw: gw}
}

func badRequest(c *gin.Context, code int, description string) {
	c.JSON(code, gin.H{"error": errorBody{Code: "BAD_REQUEST_ERROR", Description: description}})
}

// BasicAuth checks the merchant key pair on the order API.
func (h *Handler) BasicAuth(c *gin.Context) {
	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != h.gw.keyID || pass != h.gw.secret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": errorBody{Code: "BAD_REQUEST_ERROR", Description: "Authentication failed"},
		})
		return
	}
	c.Next()
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, http.StatusBadRequest, "The amount must be an integer.")
		return
	}
	if req.Amount < 100 {
		badRequest(c, http.StatusBadRequest, "The amount must be atleast INR 1.00")
		return
	}

	order := h.gw.createOrder(req)
	log.Info().
		Str("order_id", order.ID).
		Int64("amount", order.Amount).
		Str("currency", order.Currency).
		Str("receipt", order.Receipt).
		Msg("Order created")
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, ok := h.gw.order(c.Param("order_id"))
	if !ok {
		badRequest(c, http.StatusNotFound, "The id provided does not exist")
		return
	}
	c.JSON(http.StatusOK, order)
}

// Checkout stands in for the browser widget and returns the callback fields
// the merchant page would post to /payments/verify or /payments/failed.
func (h *Handler) Checkout(c *gin.Context) {
	orderID := c.Param("order_id")
	res, err := h.gw.checkout(orderID)
	switch {
	case errors.Is(err, errNoSuchOrder):
		badRequest(c, http.StatusNotFound, "The id provided does not exist")
		return
	case errors.Is(err, errAlreadyPaid):
		badRequest(c, http.StatusConflict, "Order is already paid")
		return
	}

	if res.Error != "" {
		log.Warn().Str("order_id", orderID).Str("reason", res.Error).Msg("Checkout failed")
		c.JSON(http.StatusPaymentRequired, res)
		return
	}
	log.Info().Str("order_id", orderID).Str("payment_id", res.PaymentID).Msg("Checkout captured")
	c.JSON(http.StatusOK, res)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"timestamp":    time.Now(),
		"success_rate": h.gw.SuccessRate(),
	})
}

// UpdateConfig changes the checkout success rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var body struct {
		SuccessRate *float64 `json:"success_rate"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if body.SuccessRate != nil && *body.SuccessRate >= 0 && *body.SuccessRate <= 1 {
		h.gw.SetSuccessRate(*body.SuccessRate)
		log.Info().Float64("rate", *body.SuccessRate).Msg("Updated success rate")
	}
	c.JSON(http.StatusOK, gin.H{"success_rate": h.gw.SuccessRate()})
}

func SetupRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v1 := router.Group("/v1")
	{
		orders := v1.Group("/orders", h.BasicAuth)
		orders.POST("", h.CreateOrder)
		orders.GET("/:order_id", h.GetOrder)

		v1.POST("/checkout/:order_id", h.Checkout)
		v1.PUT("/config", h.UpdateConfig)
	}
	router.GET("/health", h.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.Load(argContainsEnvPath()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg := config.Get()
	if cfg.GatewayKeyID == "" || cfg.GatewayKeySecret == "" {
		log.Fatal().Msg("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}

	log.Info().
		Str("addr", cfg.GatewayMockAddr).
		Float64("success_rate", cfg.GatewayMockSuccessRate).
		Dur("max_delay", cfg.GatewayMockMaxDelay).
		Msg("Starting mock payment gateway")

	gw := NewMockGateway(cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayMockSuccessRate, cfg.GatewayMockMaxDelay)
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:         cfg.GatewayMockAddr,
		Handler:      SetupRouter(NewHandler(gw)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to open the passed env file")
				return ""
			}
			return path
		}
	}
	return ""
}
