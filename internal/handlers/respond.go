package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kryos/kryos-api/internal/services"
	xhttp "github.com/kryos/kryos-api/pkg/http"
	"github.com/kryos/kryos-api/pkg/logger"
)

// ActorHeader carries the caller's user id for admin routes.
const ActorHeader = "X-User-Id"

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("[http] encode response failed", "error", err)
		status = xhttp.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

// writeServiceError maps service error classes to a status. Client errors
// carry the service message; upstream failures get the generic message with
// the cause in details.
func writeServiceError(ctx *xhttp.RequestCtx, err error, generic string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSON(ctx, xhttp.StatusBadRequest, errorResponse{Error: clientMessage(err)})
	case errors.Is(err, services.ErrForbidden):
		writeJSON(ctx, xhttp.StatusForbidden, errorResponse{Error: clientMessage(err)})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(ctx, xhttp.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrInvalidTransition):
		writeJSON(ctx, xhttp.StatusConflict, errorResponse{Error: err.Error()})
	default:
		logger.Error("[http] request failed", "route", xhttp.MatchedRoute(ctx), "error", err)
		writeJSON(ctx, xhttp.StatusInternalServerError, errorResponse{Error: generic, Details: err.Error()})
	}
}

// clientMessage drops the class prefix ("invalid request: ", "forbidden: ").
func clientMessage(err error) string {
	msg := err.Error()
	for _, class := range []error{services.ErrValidation, services.ErrForbidden} {
		if rest, ok := strings.CutPrefix(msg, class.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func actorID(ctx *xhttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(ActorHeader)))
}
