package services

import (
	"context"
	"errors"
	"testing"

	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMediaPublicID(t *testing.T) {
	assert.Equal(t, "f1-my_photo__1_.jpg", MediaPublicID("f1", "my photo (1).jpg"))
	assert.Equal(t, "f2-clip-final.mp4", MediaPublicID("f2", "clip-final.mp4"))
	assert.Equal(t, "kryos/users/u1/media", MediaFolder("u1"))
}

func TestMediaService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("video uploads use the video resource type", func(t *testing.T) {
		store := new(MockMediaGateway)
		svc := NewMediaService(store)
		store.On("Configured").Return(true)
		store.On("Upload", ctx, mock.MatchedBy(func(p gateway.UploadParams) bool {
			return p.Folder == "kryos/users/u1/media" &&
				p.PublicID == "f1-trip_video.mp4" &&
				p.ResourceType == "video" &&
				p.Overwrite
		})).Return(&gateway.Resource{PublicID: "kryos/users/u1/media/f1-trip_video.mp4", Bytes: 2048, SecureURL: "https://cdn/x.mp4", Format: "mp4"}, nil)

		m, err := svc.Upload(ctx, model.MediaUpload{
			UserID: "u1", FileID: "f1", FileName: "trip video.mp4", ContentType: "video/mp4", Content: []byte("data"),
		})
		require.NoError(t, err)
		assert.Equal(t, model.MediaVideo, m.Type)
		assert.Equal(t, "https://cdn/x.mp4", m.URL)
		assert.Equal(t, int64(2048), m.Size)
		store.AssertExpectations(t)
	})

	t.Run("images go up as auto", func(t *testing.T) {
		store := new(MockMediaGateway)
		svc := NewMediaService(store)
		store.On("Configured").Return(true)
		store.On("Upload", ctx, mock.MatchedBy(func(p gateway.UploadParams) bool {
			return p.ResourceType == "auto"
		})).Return(&gateway.Resource{PublicID: "p"}, nil)

		m, err := svc.Upload(ctx, model.MediaUpload{UserID: "u1", FileID: "f1", FileName: "a.png", ContentType: "image/png", Content: []byte{1}})
		require.NoError(t, err)
		assert.Equal(t, model.MediaImage, m.Type)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := NewMediaService(new(MockMediaGateway))
		_, err := svc.Upload(ctx, model.MediaUpload{UserID: "u1", FileName: "a.png"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("not configured", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(false)
		svc := NewMediaService(store)
		_, err := svc.Upload(ctx, model.MediaUpload{UserID: "u1", FileID: "f", FileName: "a.png", Content: []byte{1}})
		assert.ErrorIs(t, err, ErrMediaNotConfigured)
		assert.ErrorIs(t, err, gateway.ErrMediaNotConfigured)
	})

	t.Run("upstream failure", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Upload", ctx, mock.Anything).Return(nil, errors.New("quota exceeded"))
		svc := NewMediaService(store)
		_, err := svc.Upload(ctx, model.MediaUpload{UserID: "u1", FileID: "f", FileName: "a.png", Content: []byte{1}})
		assert.ErrorIs(t, err, ErrMediaUpload)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}

func TestMediaService_List(t *testing.T) {
	ctx := context.Background()
	imageExpr := "folder:kryos/users/u1/media AND resource_type:image"
	videoExpr := "folder:kryos/users/u1/media AND resource_type:video"

	t.Run("merges folder searches newest first", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Search", ctx, imageExpr, 100).Return([]gateway.Resource{
			{PublicID: "kryos/users/u1/media/a", ResourceType: "image", CreatedAt: "2025-01-01T10:00:00Z"},
		}, nil)
		store.On("Search", ctx, videoExpr, 100).Return([]gateway.Resource{
			{PublicID: "kryos/users/u1/media/b", ResourceType: "video", Filename: "b.mp4", CreatedAt: "2025-02-01T10:00:00Z"},
		}, nil)

		list, err := NewMediaService(store).List(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 2, list.Total)
		assert.Equal(t, "kryos/users/u1/media/b", list.Media[0].PublicID)
		assert.Equal(t, "b.mp4", list.Media[0].Name)
		assert.Equal(t, model.MediaVideo, list.Media[0].Type)
		assert.Equal(t, "a", list.Media[1].Name)
		store.AssertNotCalled(t, "Search", ctx, "*", 100)
	})

	t.Run("failed searches fall back to a broad filtered search", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Search", ctx, imageExpr, 100).Return(nil, errors.New("rate limited"))
		store.On("Search", ctx, videoExpr, 100).Return([]gateway.Resource{}, nil)
		store.On("Search", ctx, "*", 100).Return([]gateway.Resource{
			{PublicID: "kryos/users/u1/media/mine"},
			{PublicID: "kryos/users/u2/media/theirs"},
		}, nil)

		list, err := NewMediaService(store).List(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 1, list.Total)
		assert.Equal(t, "kryos/users/u1/media/mine", list.Media[0].ID)
		assert.Equal(t, "u1", list.Media[0].UserID)
	})

	t.Run("every search failing is an error", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Search", ctx, mock.Anything, 100).Return(nil, errors.New("down"))

		_, err := NewMediaService(store).List(ctx, "u1")
		assert.ErrorIs(t, err, ErrMediaList)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Contains(t, err.Error(), "down")
	})

	t.Run("broad search failing after empty folders is an empty list", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Search", ctx, imageExpr, 100).Return([]gateway.Resource{}, nil)
		store.On("Search", ctx, videoExpr, 100).Return([]gateway.Resource{}, nil)
		store.On("Search", ctx, "*", 100).Return(nil, errors.New("down"))

		list, err := NewMediaService(store).List(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, list.Total)
		assert.NotNil(t, list.Media)
	})

	t.Run("requires a user", func(t *testing.T) {
		_, err := NewMediaService(new(MockMediaGateway)).List(ctx, "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestMediaService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("known type destroys directly", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Destroy", ctx, "p1", "video").Return(gateway.DestroyOK, nil).Once()

		res, err := NewMediaService(store).Delete(ctx, model.MediaDeleteRequest{PublicID: "p1", ResourceType: "video"})
		require.NoError(t, err)
		assert.Equal(t, gateway.DestroyOK, res)
		store.AssertNotCalled(t, "Destroy", ctx, "p1", "image")
	})

	t.Run("unknown type tries image then video", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Destroy", ctx, "p1", "image").Return(gateway.DestroyNotFound, nil).Once()
		store.On("Destroy", ctx, "p1", "video").Return(gateway.DestroyOK, nil).Once()

		res, err := NewMediaService(store).Delete(ctx, model.MediaDeleteRequest{PublicID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, gateway.DestroyOK, res)
		store.AssertExpectations(t)
	})

	t.Run("image error falls through to video", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Destroy", ctx, "p1", "image").Return("", errors.New("boom")).Once()
		store.On("Destroy", ctx, "p1", "video").Return(gateway.DestroyNotFound, nil).Once()

		res, err := NewMediaService(store).Delete(ctx, model.MediaDeleteRequest{PublicID: "p1", ResourceType: "raw"})
		require.NoError(t, err)
		assert.Equal(t, gateway.DestroyNotFound, res)
	})

	t.Run("unexpected result is an error", func(t *testing.T) {
		store := new(MockMediaGateway)
		store.On("Configured").Return(true)
		store.On("Destroy", ctx, "p1", "image").Return("error", nil)

		_, err := NewMediaService(store).Delete(ctx, model.MediaDeleteRequest{PublicID: "p1", ResourceType: "image"})
		assert.ErrorIs(t, err, ErrMediaDelete)
	})

	t.Run("public id required", func(t *testing.T) {
		_, err := NewMediaService(new(MockMediaGateway)).Delete(ctx, model.MediaDeleteRequest{})
		assert.ErrorIs(t, err, ErrValidation)
	})
}
