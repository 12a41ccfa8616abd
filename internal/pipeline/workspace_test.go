package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maauso/narration-video-api/internal/engine"
)

func TestNewWorkspace(t *testing.T) {
	ws := NewWorkspace("/srv/uploads", "1700000000000-abcdef012345", "My Cover.PNG")

	assert.Equal(t, "/srv/uploads/background_1700000000000-abcdef012345.mp3", ws.Background)
	assert.Equal(t, "/srv/uploads/narration_1700000000000-abcdef012345.mp3", ws.Narration)
	assert.Equal(t, "/srv/uploads/cover_1700000000000-abcdef012345.png", ws.Cover)
	assert.Equal(t, "/srv/uploads/delayed_1700000000000-abcdef012345.mp3", ws.Delayed)
	assert.Equal(t, "/srv/uploads/combined_1700000000000-abcdef012345.mp3", ws.Combined)
	assert.Equal(t, "/srv/uploads/output_1700000000000-abcdef012345.mp4", ws.Output)

	assert.NotContains(t, ws.Temps(), ws.Output)
	assert.Len(t, ws.Temps(), 5)
	for _, p := range append(ws.Temps(), ws.Output) {
		assert.Equal(t, "/srv/uploads", filepath.Dir(p))
	}
}

func TestWorkspace_TokensNeverCollide(t *testing.T) {
	a := NewWorkspace("/d", "1-aaaaaaaaaaaa", "c.jpg")
	b := NewWorkspace("/d", "1-bbbbbbbbbbbb", "c.jpg")

	seen := map[string]bool{}
	for _, p := range append(append(a.Temps(), a.Output), append(b.Temps(), b.Output)...) {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

func TestCoverExt(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"cover.jpg", ".jpg"},
		{"cover.JPEG", ".jpeg"},
		{"clip.MOV", ".mov"},
		{"clip.mkv", ".mkv"},
		{"no-extension", ".jpg"},
		{"", ".jpg"},
		{"../../etc/passwd", ".jpg"},
		{"evil.p ng", ".jpg"},
		{"cover.toolongextension", ".jpg"},
		{"archive.tar.gz", ".gz"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, CoverExt(tt.filename))
		})
	}
}

func TestIsOutputName(t *testing.T) {
	assert.True(t, IsOutputName("output_1700000000000-abcdef012345.mp4"))
	assert.False(t, IsOutputName("narration_1700000000000-abcdef012345.mp3"))
	assert.False(t, IsOutputName("cover_1-a.mp4"))
	assert.False(t, IsOutputName("../output_1-a.mp4"))
	assert.False(t, IsOutputName("output_1-a.mp3"))
}

func TestStageError(t *testing.T) {
	cause := &engine.Error{Binary: "ffmpeg", Args: []string{"-i", "x"}, Stderr: "boom", Err: errors.New("exit status 1")}
	err := fmt.Errorf("handler: %w", &StageError{Stage: StageMix, Token: "t", Err: cause})

	assert.ErrorIs(t, err, ErrMix)
	assert.NotErrorIs(t, err, ErrMux)

	var engErr *engine.Error
	assert.ErrorAs(t, err, &engErr)
	assert.Equal(t, "boom", engErr.Stderr)

	var se *StageError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, StageMix, se.Stage)
	assert.Contains(t, se.Error(), "run t: mix:")
}

func TestStageError_AdmitHasNoStageSentinel(t *testing.T) {
	err := &StageError{Stage: StageAdmit, Token: "t", Err: fmt.Errorf("%w: full", ErrBusy)}

	assert.ErrorIs(t, err, ErrBusy)
	assert.NotErrorIs(t, err, ErrUpload)
	assert.Len(t, err.Unwrap(), 1)
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "failed to process files",
		PublicMessage(&StageError{Stage: StageProbe, Err: errors.New("ffprobe: secret stderr")}))
	assert.Equal(t, "server is busy, try again later", PublicMessage(ErrBusy))
	assert.Equal(t, "server is low on disk space, try again later", PublicMessage(ErrInsufficientDisk))
	assert.Equal(t, "missing required files", PublicMessage(fmt.Errorf("%w: [cover]", ErrMissingUpload)))
}
