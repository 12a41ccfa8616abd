// Package server provides the HTTP surface of the narration video service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"mime/multipart"
	"time"
)

// Multipart field names accepted by POST /upload.
const (
	FieldBackground = "backgroundTrack"
	FieldNarration  = "narration"
	FieldCover      = "coverMedia"
	// FieldCoverImage is the field name used by older clients for the cover.
	FieldCoverImage = "coverImage"
)

// UploadForm holds the files of an upload request.
type UploadForm struct {
	Background *multipart.FileHeader `form:"backgroundTrack" validate:"required"`
	Narration  *multipart.FileHeader `form:"narration" validate:"required"`
	Cover      *multipart.FileHeader `form:"coverMedia" validate:"required"`
}

// UploadResponse is the HTTP response after a video was produced.
type UploadResponse struct {
	// VideoURL is where the finished video can be fetched.
	VideoURL string `json:"videoUrl"`
}

// RunResponse is the HTTP response for getting run details.
type RunResponse struct {
	Token         string     `json:"token"`
	Status        string     `json:"status"`
	Stage         string     `json:"stage,omitempty"`
	Error         string     `json:"error,omitempty"`
	CoverKind     string     `json:"cover_kind,omitempty"`
	TotalDuration float64    `json:"total_duration,omitempty"`
	VideoURL      string     `json:"video_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// DiskFreeBytes is the free space of the uploads filesystem.
	DiskFreeBytes uint64 `json:"disk_free_bytes,omitempty"`
}
