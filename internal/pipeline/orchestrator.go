package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maauso/narration-video-api/internal/audio"
	"github.com/maauso/narration-video-api/internal/engine"
	"github.com/maauso/narration-video-api/internal/media"
	"github.com/maauso/narration-video-api/internal/storage"
)

const (
	// DefaultPadSeconds is the silence before and after the narration.
	DefaultPadSeconds = 5.0
	// DefaultMaxConcurrent is the number of runs allowed at once.
	DefaultMaxConcurrent = 2
	// DefaultAdmissionTimeout is how long a run waits for a free slot.
	DefaultAdmissionTimeout = 30 * time.Second
)

// Upload is one uploaded file as received from the client.
type Upload struct {
	// Filename is the client-supplied name. Only its extension is used.
	Filename string
	Body     io.Reader
}

// UploadSet holds the three assets of one request.
type UploadSet struct {
	Background Upload
	Narration  Upload
	Cover      Upload
}

func (s UploadSet) validate() error {
	missing := make([]string, 0, 3)
	if s.Background.Body == nil {
		missing = append(missing, string(KindBackground))
	}
	if s.Narration.Body == nil {
		missing = append(missing, string(KindNarration))
	}
	if s.Cover.Body == nil {
		missing = append(missing, string(KindCover))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingUpload, missing)
	}
	return nil
}

// Result describes a finished video. It is never mutated after Run returns.
type Result struct {
	Token         string
	OutputPath    string
	VideoURL      string
	TotalDuration float64
	CoverKind     media.CoverKind
}

// Orchestrator sequences the stages of a run: persist uploads, probe the
// narration, build the combined audio, encode the video, clean up and
// publish. Runs are synchronous and bounded by a weighted semaphore.
type Orchestrator struct {
	prober  engine.Prober
	mixer   audio.Mixer
	muxer   media.Muxer
	storage storage.Storage
	repo    Repository
	logger  *slog.Logger

	padSeconds       float64
	sem              *semaphore.Weighted
	admissionTimeout time.Duration
	minFreeBytes     uint64
	diskFree         DiskFreeFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPadSeconds sets the silence added before and after the narration.
func WithPadSeconds(pad float64) Option {
	return func(o *Orchestrator) {
		if pad >= 0 {
			o.padSeconds = pad
		}
	}
}

// WithMaxConcurrent sets how many runs may execute at once.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithAdmissionTimeout sets how long a run waits for a free slot before
// failing with ErrBusy.
func WithAdmissionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.admissionTimeout = d
		}
	}
}

// WithMinFreeDisk rejects runs when the uploads directory has fewer free
// bytes than minBytes. Zero disables the check.
func WithMinFreeDisk(minBytes uint64) Option {
	return func(o *Orchestrator) {
		o.minFreeBytes = minBytes
	}
}

// WithDiskFree replaces the free-space probe used by the disk guard.
func WithDiskFree(fn DiskFreeFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.diskFree = fn
		}
	}
}

// WithRepository sets where run records are kept.
func WithRepository(repo Repository) Option {
	return func(o *Orchestrator) {
		if repo != nil {
			o.repo = repo
		}
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	prober engine.Prober,
	mixer audio.Mixer,
	muxer media.Muxer,
	store storage.Storage,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		prober:           prober,
		mixer:            mixer,
		muxer:            muxer,
		storage:          store,
		repo:             NewMemoryRepository(DefaultMaxRuns),
		logger:           logger,
		padSeconds:       DefaultPadSeconds,
		sem:              semaphore.NewWeighted(DefaultMaxConcurrent),
		admissionTimeout: DefaultAdmissionTimeout,
		diskFree:         FreeDiskBytes,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetRun retrieves the record of a run by token.
func (o *Orchestrator) GetRun(ctx context.Context, token string) (*Run, error) {
	return o.repo.FindByToken(ctx, token)
}

// Run executes every stage for one request and returns the published result.
// Every temporary file of the request is deleted before Run returns,
// whatever the outcome; a failed run also loses its partial output.
func (o *Orchestrator) Run(ctx context.Context, uploads UploadSet, token string) (*Result, error) {
	logger := o.logger.With(slog.String("token", token))

	if err := uploads.validate(); err != nil {
		return nil, &StageError{Stage: StageUpload, Token: token, Err: err}
	}

	if err := o.admit(ctx); err != nil {
		logger.Warn("run rejected", slog.String("error", err.Error()))
		return nil, &StageError{Stage: StageAdmit, Token: token, Err: err}
	}
	defer o.sem.Release(1)

	run := NewRun(token)
	_ = run.Start()
	o.saveRun(ctx, logger, run)

	ws := NewWorkspace(o.storage.Dir(), token, uploads.Cover.Filename)
	start := time.Now()
	logger.Info("run started", slog.String("cover", uploads.Cover.Filename))

	cleaned := false
	defer func() {
		if !cleaned {
			o.cleanup(ctx, logger, token, append(ws.Temps(), ws.Output))
		}
	}()

	total, kind, err := o.produce(ctx, logger, run, ws, uploads)
	cleaned = true
	if err != nil {
		o.cleanup(ctx, logger, token, append(ws.Temps(), ws.Output))
		return nil, o.fail(ctx, logger, run, err)
	}
	o.cleanup(ctx, logger, token, ws.Temps())

	o.enterStage(ctx, logger, run, StagePublish)
	url, err := o.storage.Publish(ctx, ws.Output)
	if err != nil {
		o.cleanup(ctx, logger, token, []string{ws.Output})
		return nil, o.fail(ctx, logger, run, &StageError{Stage: StagePublish, Token: token, Err: err})
	}

	_ = run.Complete(url)
	o.saveRun(ctx, logger, run)

	logger.Info("run completed",
		slog.String("video_url", url),
		slog.Float64("total_duration", total),
		slog.String("cover_kind", string(kind)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Token:         token,
		OutputPath:    ws.Output,
		VideoURL:      url,
		TotalDuration: total,
		CoverKind:     kind,
	}, nil
}

// produce runs the upload, probe, mix and mux stages. It stops at the first
// failure and returns it as a *StageError.
func (o *Orchestrator) produce(
	ctx context.Context,
	logger *slog.Logger,
	run *Run,
	ws Workspace,
	uploads UploadSet,
) (float64, media.CoverKind, error) {
	stageErr := func(stage Stage, err error) error {
		return &StageError{Stage: stage, Token: ws.Token, Err: err}
	}

	o.enterStage(ctx, logger, run, StageUpload)
	files := []struct {
		kind   ArtifactKind
		path   string
		upload Upload
	}{
		{KindBackground, ws.Background, uploads.Background},
		{KindNarration, ws.Narration, uploads.Narration},
		{KindCover, ws.Cover, uploads.Cover},
	}
	for _, f := range files {
		if err := o.storage.Save(ctx, f.path, f.upload.Body); err != nil {
			return 0, "", stageErr(StageUpload, fmt.Errorf("save %s: %w", f.kind, err))
		}
	}

	o.enterStage(ctx, logger, run, StageProbe)
	narration, err := o.prober.Duration(ctx, ws.Narration)
	if err != nil {
		return 0, "", stageErr(StageProbe, err)
	}
	total := narration + 2*o.padSeconds
	run.SetDuration(total)
	logger.Debug("narration probed",
		slog.Float64("narration_duration", narration),
		slog.Float64("total_duration", total),
	)

	o.enterStage(ctx, logger, run, StageMix)
	err = o.mixer.BuildCombinedAudio(ctx, audio.MixInput{
		BackgroundPath: ws.Background,
		NarrationPath:  ws.Narration,
		DelayedPath:    ws.Delayed,
		OutputPath:     ws.Combined,
		TotalDuration:  total,
		PadSeconds:     o.padSeconds,
	})
	if err != nil {
		return 0, "", stageErr(StageMix, err)
	}

	o.enterStage(ctx, logger, run, StageMux)
	kind, err := o.muxer.Mux(ctx, media.MuxInput{
		VisualPath:    ws.Cover,
		AudioPath:     ws.Combined,
		OutputPath:    ws.Output,
		TotalDuration: total,
	})
	if err != nil {
		return 0, "", stageErr(StageMux, err)
	}
	run.SetCoverKind(string(kind))

	return total, kind, nil
}

// admit takes a slot from the semaphore and checks free disk space.
func (o *Orchestrator) admit(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, o.admissionTimeout)
	defer cancel()

	if err := o.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for slot: %w", ctx.Err())
		}
		return fmt.Errorf("%w: no slot within %s", ErrBusy, o.admissionTimeout)
	}

	if o.minFreeBytes == 0 {
		return nil
	}
	free, err := o.diskFree(ctx, o.storage.Dir())
	if err != nil {
		o.logger.Warn("disk check failed", slog.String("error", err.Error()))
		return nil
	}
	if free < o.minFreeBytes {
		o.sem.Release(1)
		return fmt.Errorf("%w: %d bytes free, %d required", ErrInsufficientDisk, free, o.minFreeBytes)
	}
	return nil
}

// cleanup removes paths on a context detached from the request, so a
// cancelled request still leaves nothing behind. Failures are logged only.
func (o *Orchestrator) cleanup(ctx context.Context, logger *slog.Logger, token string, paths []string) {
	if err := o.storage.Cleanup(context.WithoutCancel(ctx), paths); err != nil {
		err = &StageError{Stage: StageCleanup, Token: token, Err: err}
		logger.Error("cleanup failed", slog.String("error", err.Error()))
	}
}

// fail records the failure on the run and logs the full diagnostics.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, run *Run, err error) error {
	var se *StageError
	var stage Stage
	if errors.As(err, &se) {
		stage = se.Stage
	}

	attrs := []any{
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()),
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		attrs = append(attrs, slog.Any("args", engErr.Args), slog.String("stderr", engErr.Stderr))
	}
	logger.Error("run failed", attrs...)

	_ = run.Fail(PublicMessage(err))
	o.saveRun(ctx, logger, run)
	return err
}

func (o *Orchestrator) enterStage(ctx context.Context, logger *slog.Logger, run *Run, stage Stage) {
	run.EnterStage(stage)
	o.saveRun(ctx, logger, run)
	logger.Debug("stage started", slog.String("stage", string(stage)))
}

func (o *Orchestrator) saveRun(ctx context.Context, logger *slog.Logger, run *Run) {
	if err := o.repo.Save(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to save run", slog.String("error", err.Error()))
	}
}
