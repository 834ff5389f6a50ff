package handlers

import (
	"context"

	"github.com/kryos/kryos-api/internal/model"
	xhttp "github.com/kryos/kryos-api/pkg/http"
)

type PaymentService interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.CreateOrderResult, error)
	VerifyPayment(ctx context.Context, req model.VerifyPaymentRequest) (*model.VerifyPaymentResult, error)
	RecordFailedPayment(ctx context.Context, req model.FailedPaymentRequest) (*model.FailedPaymentResult, error)
	ListTransactions(ctx context.Context, userID string) (*model.TransactionList, error)
}

// PaymentSubmitter records dashboard payments in the approval ledger.
type PaymentSubmitter interface {
	Submit(ctx context.Context, req model.SubmitPaymentRequest) (*model.Transaction, error)
}

type PaymentHandler struct {
	svc    PaymentService
	ledger PaymentSubmitter
}

func RegisterPaymentRoutes(g *xhttp.Group, h *PaymentHandler) {
	g.POST("/payments/create-order", h.CreateOrder)
	g.POST("/payments/verify", h.Verify)
	g.POST("/payments/failed", h.RecordFailed)
	g.GET("/payments/transactions", h.ListTransactions)
	if h.ledger != nil {
		g.POST("/payments/submit", h.Submit)
	}
}

func NewPaymentHandler(svc PaymentService, ledger PaymentSubmitter) *PaymentHandler {
	return &PaymentHandler{
		svc:    svc,
		ledger: ledger,
	}
}

type createOrderResponse struct {
	Success bool `json:"success"`
	*model.CreateOrderResult
}

type verifyResponse struct {
	Success bool `json:"success"`
	*model.VerifyPaymentResult
}

type failedResponse struct {
	Success bool `json:"success"`
	*model.FailedPaymentResult
}

type transactionsResponse struct {
	Success bool `json:"success"`
	*model.TransactionList
}

type submitResponse struct {
	Success     bool               `json:"success"`
	Transaction *model.Transaction `json:"transaction"`
}

func (h *PaymentHandler) CreateOrder(ctx *xhttp.RequestCtx) {
	var req model.CreateOrderRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "Valid amount is required")
		return
	}
	res, err := h.svc.CreateOrder(ctx, req)
	if err != nil {
		writeServiceError(ctx, err, "Failed to create payment order")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, createOrderResponse{Success: true, CreateOrderResult: res})
}

func (h *PaymentHandler) Verify(ctx *xhttp.RequestCtx) {
	var req model.VerifyPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.VerifyPayment(ctx, req)
	if err != nil {
		writeServiceError(ctx, err, "Payment verification failed")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, verifyResponse{Success: true, VerifyPaymentResult: res})
}

func (h *PaymentHandler) RecordFailed(ctx *xhttp.RequestCtx) {
	var req model.FailedPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.RecordFailedPayment(ctx, req)
	if err != nil {
		writeServiceError(ctx, err, "Failed to record failed payment")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, failedResponse{Success: true, FailedPaymentResult: res})
}

func (h *PaymentHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	userID := query(ctx, "userId")
	if userID == "" {
		writeError(ctx, xhttp.StatusBadRequest, "User ID is required")
		return
	}
	list, err := h.svc.ListTransactions(ctx, userID)
	if err != nil {
		writeServiceError(ctx, err, "Failed to fetch transaction history")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, transactionsResponse{Success: true, TransactionList: list})
}

func (h *PaymentHandler) Submit(ctx *xhttp.RequestCtx) {
	var req model.SubmitPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	txn, err := h.ledger.Submit(ctx, req)
	if err != nil {
		writeServiceError(ctx, err, "Failed to submit payment")
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, submitResponse{Success: true, Transaction: txn})
}
