package model

import (
	"errors"
	"time"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type Media struct {
	ID         string    `json:"id"`
	PublicID   string    `json:"publicId"`
	Name       string    `json:"name"`
	Type       MediaType `json:"type"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	Format     string    `json:"format"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// MediaUpload carries one file from the multipart form.
type MediaUpload struct {
	UserID      string
	FileID      string
	FileName    string
	ContentType string
	Content     []byte
}

func (u MediaUpload) Validate() error {
	if len(u.Content) == 0 || u.FileName == "" || u.FileID == "" || u.UserID == "" {
		return errors.New("missing required fields")
	}
	return nil
}

type MediaList struct {
	Media []*Media `json:"files"`
	Total int      `json:"total"`
}

type MediaDeleteRequest struct {
	PublicID     string `json:"publicId"`
	ResourceType string `json:"resourceType"`
}

func (r MediaDeleteRequest) Validate() error {
	if r.PublicID == "" {
		return errors.New("publicId is required")
	}
	return nil
}
