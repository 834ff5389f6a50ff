package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/prom"
)

type MediaGateway interface {
	Configured() bool
	Upload(ctx context.Context, p gateway.UploadParams) (*gateway.Resource, error)
	Destroy(ctx context.Context, publicID, resourceType string) (string, error)
	Search(ctx context.Context, expression string, maxResults int) ([]gateway.Resource, error)
}

const mediaSearchLimit = 100

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

type MediaService struct {
	store MediaGateway
	now   func() time.Time
}

func NewMediaService(store MediaGateway) *MediaService {
	return &MediaService{store: store, now: time.Now}
}

// MediaFolder is where a user's uploads live in the object store.
func MediaFolder(userID string) string {
	return fmt.Sprintf("kryos/users/%s/media", userID)
}

// MediaPublicID derives the stored asset id from the client file id and name.
func MediaPublicID(fileID, fileName string) string {
	return fileID + "-" + unsafeFileChars.ReplaceAllString(fileName, "_")
}

func (s *MediaService) Upload(ctx context.Context, up model.MediaUpload) (*model.Media, error) {
	if err := up.Validate(); err != nil {
		return nil, validationError(err)
	}
	if !s.store.Configured() {
		return nil, ErrMediaNotConfigured
	}

	resourceType := "auto"
	if strings.HasPrefix(up.ContentType, "video/") {
		resourceType = string(model.MediaVideo)
	}

	res, err := s.store.Upload(ctx, gateway.UploadParams{
		Folder:       MediaFolder(up.UserID),
		PublicID:     MediaPublicID(up.FileID, up.FileName),
		ResourceType: resourceType,
		Overwrite:    true,
		FileName:     up.FileName,
		ContentType:  up.ContentType,
		Content:      up.Content,
	})
	if err != nil {
		prom.IncMediaOperation("upload", "error")
		logger.Error("[media] upload failed", "user_id", up.UserID, "file", up.FileName, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrMediaUpload, err)
	}
	prom.IncMediaOperation("upload", "ok")

	mediaType := model.MediaVideo
	if strings.HasPrefix(up.ContentType, "image/") {
		mediaType = model.MediaImage
	}
	return &model.Media{
		ID:         res.PublicID,
		PublicID:   res.PublicID,
		Name:       up.FileName,
		Type:       mediaType,
		Size:       res.Bytes,
		URL:        res.SecureURL,
		Format:     res.Format,
		Width:      res.Width,
		Height:     res.Height,
		UserID:     up.UserID,
		UploadedAt: s.now().UTC(),
	}, nil
}

// List returns the user's images and videos newest first. A failed folder
// search counts as empty; when both come back empty a broad search filtered
// by the user's path is tried instead.
func (s *MediaService) List(ctx context.Context, userID string) (*model.MediaList, error) {
	if userID == "" {
		return nil, validationError(errors.New("user id is required"))
	}
	if !s.store.Configured() {
		return nil, ErrMediaNotConfigured
	}

	folder := MediaFolder(userID)
	var resources []gateway.Resource
	kinds := []model.MediaType{model.MediaImage, model.MediaVideo}
	failed := 0
	for _, kind := range kinds {
		expr := fmt.Sprintf("folder:%s AND resource_type:%s", folder, kind)
		found, err := s.store.Search(ctx, expr, mediaSearchLimit)
		if err != nil {
			failed++
			logger.Warn("[media] folder search failed", "user_id", userID, "type", string(kind), "error", err)
			continue
		}
		resources = append(resources, found...)
	}

	if len(resources) == 0 {
		found, err := s.store.Search(ctx, "*", mediaSearchLimit)
		if err != nil {
			logger.Warn("[media] broad search failed", "user_id", userID, "error", err)
			// every search failed; an empty list would hide the outage
			if failed == len(kinds) {
				return nil, fmt.Errorf("%w: %w", ErrMediaList, err)
			}
		}
		marker := "users/" + userID
		for _, r := range found {
			if strings.Contains(r.PublicID, marker) {
				resources = append(resources, r)
			}
		}
	}

	seen := make(map[string]struct{}, len(resources))
	files := make([]*model.Media, 0, len(resources))
	for _, r := range resources {
		if _, dup := seen[r.PublicID]; dup {
			continue
		}
		seen[r.PublicID] = struct{}{}
		files = append(files, toMedia(r, userID))
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})

	prom.IncMediaOperation("list", "ok")
	return &model.MediaList{Media: files, Total: len(files)}, nil
}

func toMedia(r gateway.Resource, userID string) *model.Media {
	name := r.Filename
	if name == "" {
		name = path.Base(r.PublicID)
	}
	kind := model.MediaImage
	if r.ResourceType == string(model.MediaVideo) {
		kind = model.MediaVideo
	}
	return &model.Media{
		ID:         r.PublicID,
		PublicID:   r.PublicID,
		Name:       name,
		Type:       kind,
		Size:       r.Bytes,
		URL:        r.SecureURL,
		Format:     r.Format,
		Width:      r.Width,
		Height:     r.Height,
		UserID:     userID,
		UploadedAt: r.CreatedTime(),
	}
}

// Delete removes an asset. Without a known resource type the image store is
// tried first and the video store second. "not found" counts as success.
func (s *MediaService) Delete(ctx context.Context, req model.MediaDeleteRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", validationError(err)
	}
	if !s.store.Configured() {
		return "", ErrMediaNotConfigured
	}

	var (
		result string
		err    error
	)
	switch req.ResourceType {
	case string(model.MediaImage), string(model.MediaVideo):
		result, err = s.store.Destroy(ctx, req.PublicID, req.ResourceType)
	default:
		result, err = s.store.Destroy(ctx, req.PublicID, string(model.MediaImage))
		if err != nil || result == gateway.DestroyNotFound {
			if err != nil {
				logger.Debug("[media] image destroy failed, trying video", "public_id", req.PublicID, "error", err)
			}
			result, err = s.store.Destroy(ctx, req.PublicID, string(model.MediaVideo))
		}
	}
	if err != nil {
		prom.IncMediaOperation("delete", "error")
		return "", fmt.Errorf("%w: %w", ErrMediaDelete, err)
	}
	if result != gateway.DestroyOK && result != gateway.DestroyNotFound {
		prom.IncMediaOperation("delete", "error")
		return "", fmt.Errorf("%w: unexpected result %q", ErrMediaDelete, result)
	}

	prom.IncMediaOperation("delete", "ok")
	logger.Info("[media] deleted", "public_id", req.PublicID, "result", result)
	return result, nil
}
