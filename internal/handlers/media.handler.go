package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/services"
	xhttp "github.com/kryos/kryos-api/pkg/http"
	"github.com/valyala/fasthttp"
)

type MediaService interface {
	Upload(ctx context.Context, up model.MediaUpload) (*model.Media, error)
	List(ctx context.Context, userID string) (*model.MediaList, error)
	Delete(ctx context.Context, req model.MediaDeleteRequest) (string, error)
}

type MediaHandler struct {
	svc MediaService
}

func RegisterMediaRoutes(g *xhttp.Group, h *MediaHandler) {
	g.POST("/media/upload", h.Upload)
	g.GET("/media/list", h.List)
	g.DELETE("/media/delete", h.Delete)
}

func NewMediaHandler(svc MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

type uploadResponse struct {
	Success bool         `json:"success"`
	URL     string       `json:"url"`
	File    *model.Media `json:"file"`
}

type mediaListResponse struct {
	Success bool `json:"success"`
	*model.MediaList
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func (h *MediaHandler) Upload(ctx *xhttp.RequestCtx) {
	form, err := ctx.MultipartForm()
	if err != nil {
		if errors.Is(err, fasthttp.ErrNoMultipartForm) {
			writeError(ctx, xhttp.StatusBadRequest, "Missing required fields")
			return
		}
		writeError(ctx, xhttp.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer ctx.Request.RemoveMultipartFormFiles()

	up := model.MediaUpload{
		UserID:   formValue(form, "userId"),
		FileID:   formValue(form, "fileId"),
		FileName: formValue(form, "fileName"),
	}
	if files := form.File["file"]; len(files) > 0 {
		up.ContentType = files[0].Header.Get("Content-Type")
		if up.Content, err = readFormFile(files[0]); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "unreadable file: "+err.Error())
			return
		}
	}

	media, err := h.svc.Upload(ctx, up)
	if err != nil {
		h.writeMediaError(ctx, err, "Upload failed")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, uploadResponse{Success: true, URL: media.URL, File: media})
}

func (h *MediaHandler) List(ctx *xhttp.RequestCtx) {
	userID := query(ctx, "userId")
	if userID == "" {
		writeError(ctx, xhttp.StatusBadRequest, "User ID is required")
		return
	}
	list, err := h.svc.List(ctx, userID)
	if err != nil {
		h.writeMediaError(ctx, err, "Failed to list media files")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, mediaListResponse{Success: true, MediaList: list})
}

func (h *MediaHandler) Delete(ctx *xhttp.RequestCtx) {
	var req model.MediaDeleteRequest
	if err := readJSON(ctx, &req); err != nil || req.PublicID == "" {
		writeError(ctx, xhttp.StatusBadRequest, "Public ID is required")
		return
	}
	result, err := h.svc.Delete(ctx, req)
	if err != nil {
		h.writeMediaError(ctx, err, "Failed to delete file")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, deleteResponse{Success: true, Message: "File deleted successfully", Result: result})
}

func (h *MediaHandler) writeMediaError(ctx *xhttp.RequestCtx, err error, generic string) {
	if errors.Is(err, services.ErrMediaNotConfigured) {
		writeError(ctx, xhttp.StatusInternalServerError, "Media storage not configured properly")
		return
	}
	writeServiceError(ctx, err, generic)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
