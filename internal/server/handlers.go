package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/narration-video-api/internal/pipeline"
	"github.com/maauso/narration-video-api/internal/token"
)

// DefaultMaxUploadBytes caps the size of an upload request body.
const DefaultMaxUploadBytes = 50 << 20

// multipartMemory is how much of a multipart body is kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// TokenHeader carries the request token of an upload response.
const TokenHeader = "X-Request-Token"

// VideoProducer produces narrated videos and reports on past runs.
type VideoProducer interface {
	Run(ctx context.Context, uploads pipeline.UploadSet, token string) (*pipeline.Result, error)
	GetRun(ctx context.Context, token string) (*pipeline.Run, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	producer       VideoProducer
	validator      *validator.Validate
	logger         *slog.Logger
	outputsDir     string
	maxUploadBytes int64
	diskFree       pipeline.DiskFreeFunc
	newToken       func() string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithOutputsDir sets the directory finished videos are served from.
func WithOutputsDir(dir string) HandlerOption {
	return func(h *Handlers) {
		h.outputsDir = dir
	}
}

// WithMaxUploadBytes caps the size of an upload request body.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithDiskFree sets the probe used to report free disk space on /health.
func WithDiskFree(fn pipeline.DiskFreeFunc) HandlerOption {
	return func(h *Handlers) {
		if fn != nil {
			h.diskFree = fn
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(producer VideoProducer, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})

	h := &Handlers{
		producer:       producer,
		validator:      v,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
		diskFree:       pipeline.FreeDiskBytes,
		newToken:       token.Generate,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.outputsDir != "" {
		free, err := h.diskFree(r.Context(), h.outputsDir)
		if err != nil {
			h.logger.Warn("disk usage unavailable", slog.String("error", err.Error()))
		} else {
			resp.DiskFreeBytes = free
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload handles POST /upload requests. The video is produced synchronously
// and its URL returned once published.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", "PAYLOAD_TOO_LARGE")
		case errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusBadRequest, "No files uploaded", "NO_FILES")
		default:
			h.logger.Warn("failed to parse multipart form", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_FORM")
		}
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if len(r.MultipartForm.File) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded", "NO_FILES")
		return
	}

	form := UploadForm{
		Background: firstFile(r.MultipartForm, FieldBackground),
		Narration:  firstFile(r.MultipartForm, FieldNarration),
		Cover:      firstFile(r.MultipartForm, FieldCover, FieldCoverImage),
	}
	if err := h.validator.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR")
		return
	}

	uploads, closeAll, err := openUploads(form)
	if err != nil {
		h.logger.Error("failed to open uploaded file", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to process files", "PIPELINE_FAILED")
		return
	}
	defer closeAll()

	tok := h.newToken()
	w.Header().Set(TokenHeader, tok)

	result, err := h.producer.Run(r.Context(), uploads, tok)
	if err != nil {
		h.writeRunError(w, tok, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{VideoURL: result.VideoURL})
}

// GetRun handles GET /runs/{token} requests.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	tok := r.PathValue("token")
	if !token.Valid(tok) {
		writeError(w, http.StatusBadRequest, "invalid run token", "INVALID_TOKEN")
		return
	}

	run, err := h.producer.GetRun(r.Context(), tok)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "RUN_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get run",
			slog.String("token", tok),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get run", "RUN_FETCH_FAILED")
		return
	}

	resp := RunResponse{
		Token:         run.Token,
		Status:        string(run.Status),
		Stage:         string(run.Stage),
		Error:         run.Error,
		CoverKind:     run.CoverKind,
		TotalDuration: run.TotalDuration,
		VideoURL:      run.VideoURL,
		CreatedAt:     run.CreatedAt,
	}
	if !run.CompletedAt.IsZero() {
		completed := run.CompletedAt
		resp.CompletedAt = &completed
	}

	writeJSON(w, http.StatusOK, resp)
}

// ServeOutput handles GET <public path>/{name}. Only finished outputs are
// served; uploads and intermediates never leave the server.
func (h *Handlers) ServeOutput(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if h.outputsDir == "" || !pipeline.IsOutputName(name) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, filepath.Join(h.outputsDir, name))
}

// writeRunError maps a pipeline failure to its HTTP response. Engine
// diagnostics are logged by the orchestrator and never sent to clients.
func (h *Handlers) writeRunError(w http.ResponseWriter, tok string, err error) {
	msg := pipeline.PublicMessage(err)
	switch {
	case errors.Is(err, pipeline.ErrMissingUpload):
		writeError(w, http.StatusBadRequest, msg, "VALIDATION_ERROR")
	case errors.Is(err, pipeline.ErrBusy):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, msg, "BUSY")
	case errors.Is(err, pipeline.ErrInsufficientDisk):
		writeError(w, http.StatusServiceUnavailable, msg, "INSUFFICIENT_DISK")
	case errors.Is(err, context.Canceled):
		h.logger.Info("client went away before the run finished", slog.String("token", tok))
		writeError(w, http.StatusServiceUnavailable, "request cancelled", "CANCELLED")
	default:
		writeError(w, http.StatusInternalServerError, msg, "PIPELINE_FAILED")
	}
}

// firstFile returns the first file of the first listed field that has one.
func firstFile(form *multipart.Form, fields ...string) *multipart.FileHeader {
	for _, field := range fields {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func openUploads(form UploadForm) (pipeline.UploadSet, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	open := func(fh *multipart.FileHeader) (pipeline.Upload, error) {
		f, err := fh.Open()
		if err != nil {
			return pipeline.Upload{}, err
		}
		opened = append(opened, f)
		return pipeline.Upload{Filename: fh.Filename, Body: f}, nil
	}

	var set pipeline.UploadSet
	var err error
	if set.Background, err = open(form.Background); err != nil {
		closeAll()
		return set, nil, err
	}
	if set.Narration, err = open(form.Narration); err != nil {
		closeAll()
		return set, nil, err
	}
	if set.Cover, err = open(form.Cover); err != nil {
		closeAll()
		return set, nil, err
	}
	return set, closeAll, nil
}

// validationMessage lists the missing form fields of a validation error.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "missing required files: " + strings.Join(fields, ", ")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
