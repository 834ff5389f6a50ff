package handlers

import (
	"context"

	"github.com/kryos/kryos-api/internal/model"
	xhttp "github.com/kryos/kryos-api/pkg/http"
)

type ApprovalService interface {
	Approve(ctx context.Context, actorID, id string) (*model.Transaction, error)
	Reject(ctx context.Context, actorID, id, reason string) (*model.Transaction, error)
	BulkApprove(ctx context.Context, actorID string) (int, error)
	Overview(ctx context.Context, actorID string) (*model.Overview, error)
}

// AdminHandler serves the approval panel. The acting admin is named by the
// X-User-Id header.
type AdminHandler struct {
	svc ApprovalService
}

func RegisterAdminRoutes(g *xhttp.Group, h *AdminHandler) {
	g.GET("/admin/overview", h.Overview)
	g.POST("/admin/transactions/bulk-approve", h.BulkApprove)
	g.POST("/admin/transactions/{id}/approve", h.Approve)
	g.POST("/admin/transactions/{id}/reject", h.Reject)
}

func NewAdminHandler(svc ApprovalService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type transitionResponse struct {
	Success     bool               `json:"success"`
	Transaction *model.Transaction `json:"transaction"`
}

type bulkApproveResponse struct {
	Success  bool `json:"success"`
	Approved int  `json:"approved"`
}

type overviewResponse struct {
	Success bool `json:"success"`
	*model.Overview
}

func (h *AdminHandler) Overview(ctx *xhttp.RequestCtx) {
	ov, err := h.svc.Overview(ctx, actorID(ctx))
	if err != nil {
		writeServiceError(ctx, err, "Failed to load admin overview")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, overviewResponse{Success: true, Overview: ov})
}

func (h *AdminHandler) Approve(ctx *xhttp.RequestCtx) {
	txn, err := h.svc.Approve(ctx, actorID(ctx), pathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err, "Failed to approve transaction")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, transitionResponse{Success: true, Transaction: txn})
}

func (h *AdminHandler) Reject(ctx *xhttp.RequestCtx) {
	var req rejectRequest
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	txn, err := h.svc.Reject(ctx, actorID(ctx), pathParam(ctx, "id"), req.Reason)
	if err != nil {
		writeServiceError(ctx, err, "Failed to reject transaction")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, transitionResponse{Success: true, Transaction: txn})
}

func (h *AdminHandler) BulkApprove(ctx *xhttp.RequestCtx) {
	n, err := h.svc.BulkApprove(ctx, actorID(ctx))
	if err != nil {
		writeServiceError(ctx, err, "Failed to approve transactions")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, bulkApproveResponse{Success: true, Approved: n})
}
