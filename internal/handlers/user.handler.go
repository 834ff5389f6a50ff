package handlers

import (
	"context"

	"github.com/kryos/kryos-api/internal/model"
	xhttp "github.com/kryos/kryos-api/pkg/http"
)

type UserService interface {
	Upsert(ctx context.Context, req model.UserUpsertRequest) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, req model.ProfileUpdateRequest) (*model.User, error)
}

type UserHandler struct {
	svc UserService
}

func RegisterUserRoutes(g *xhttp.Group, h *UserHandler) {
	g.POST("/users", h.Upsert)
	g.GET("/users/{id}", h.Get)
	g.PUT("/users/{id}/profile", h.UpdateProfile)
}

func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type userResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

func (h *UserHandler) Upsert(ctx *xhttp.RequestCtx) {
	var req model.UserUpsertRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	user, err := h.svc.Upsert(ctx, req)
	if err != nil {
		writeServiceError(ctx, err, "Failed to save user")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, userResponse{Success: true, User: user})
}

func (h *UserHandler) Get(ctx *xhttp.RequestCtx) {
	user, err := h.svc.Get(ctx, pathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err, "Failed to load user")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, userResponse{Success: true, User: user})
}

func (h *UserHandler) UpdateProfile(ctx *xhttp.RequestCtx) {
	var req model.ProfileUpdateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	user, err := h.svc.UpdateProfile(ctx, pathParam(ctx, "id"), req)
	if err != nil {
		writeServiceError(ctx, err, "Failed to update profile")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, userResponse{Success: true, User: user})
}
