package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/narration-video-api/internal/audio"
	"github.com/maauso/narration-video-api/internal/engine"
	"github.com/maauso/narration-video-api/internal/media"
	"github.com/maauso/narration-video-api/internal/storage"
)

// skipUnlessEncoders skips the test unless ffmpeg, ffprobe and the named
// encoders are available.
func skipUnlessEncoders(t *testing.T, encoders ...string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ffmpeg-backed test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		t.Skipf("cannot list ffmpeg encoders: %v", err)
	}
	for _, enc := range encoders {
		if !strings.Contains(string(out), enc) {
			t.Skipf("ffmpeg encoder %s not available, skipping test", enc)
		}
	}
}

func generate(t *testing.T, args ...string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", append([]string{"-y"}, args...)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test media: %v\noutput: %s", err, output)
	}
}

func openUpload(t *testing.T, path string) Upload {
	t.Helper()
	f, err := os.Open(path) // #nosec G304 - test fixture
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return Upload{Filename: filepath.Base(path), Body: f}
}

func TestOrchestrator_RealFFmpeg(t *testing.T) {
	skipUnlessEncoders(t, "libmp3lame", "libx264", "aac")

	src := t.TempDir()
	narration := filepath.Join(src, "voice.mp3")
	background := filepath.Join(src, "music.mp3")
	cover := filepath.Join(src, "cover.jpg")
	generate(t, "-f", "lavfi", "-i", "sine=frequency=440:duration=20", "-c:a", "libmp3lame", narration)
	generate(t, "-f", "lavfi", "-i", "sine=frequency=220:duration=3", "-c:a", "libmp3lame", background)
	generate(t, "-f", "lavfi", "-i", "testsrc=size=321x241:duration=1", "-frames:v", "1", cover)

	for _, strategy := range []audio.Strategy{audio.StrategyTwoPass, audio.StrategySinglePass} {
		t.Run(string(strategy), func(t *testing.T) {
			uploadsDir := t.TempDir()
			store, err := storage.NewLocalStorage(uploadsDir, "")
			require.NoError(t, err)

			runner := engine.NewFFmpeg("", engine.WithTimeout(5*time.Minute))
			opts := audio.DefaultMixOpts()
			opts.Strategy = strategy
			o := NewOrchestrator(
				engine.NewFFprobe("", 30*time.Second),
				audio.NewFFmpegMixer(runner, opts, nil),
				media.NewFFmpegMuxer(runner, nil),
				store,
				nil,
			)

			set := UploadSet{
				Background: openUpload(t, background),
				Narration:  openUpload(t, narration),
				Cover:      openUpload(t, cover),
			}
			token := "1700000000000-" + strings.Repeat("a", 12)
			result, err := o.Run(context.Background(), set, token)
			require.NoError(t, err)

			assert.Equal(t, media.CoverImage, result.CoverKind)
			assert.InDelta(t, 30.0, result.TotalDuration, 0.1)

			d, err := engine.NewFFprobe("", 30*time.Second).Duration(context.Background(), result.OutputPath)
			require.NoError(t, err)
			assert.InDelta(t, 30.0, d, 0.2)

			entries, err := os.ReadDir(uploadsDir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "output_"+token+".mp4", entries[0].Name())
		})
	}
}

func TestOrchestrator_RealFFmpeg_CorruptNarration(t *testing.T) {
	skipUnlessEncoders(t)

	uploadsDir := t.TempDir()
	store, err := storage.NewLocalStorage(uploadsDir, "")
	require.NoError(t, err)

	runner := engine.NewFFmpeg("", engine.WithTimeout(time.Minute))
	o := NewOrchestrator(
		engine.NewFFprobe("", 10*time.Second),
		audio.NewFFmpegMixer(runner, audio.DefaultMixOpts(), nil),
		media.NewFFmpegMuxer(runner, nil),
		store,
		nil,
	)

	set := UploadSet{
		Background: Upload{Filename: "bg.mp3", Body: strings.NewReader("not audio")},
		Narration:  Upload{Filename: "voice.mp3", Body: strings.NewReader("not audio either")},
		Cover:      Upload{Filename: "cover.jpg", Body: strings.NewReader("not an image")},
	}
	_, err = o.Run(context.Background(), set, "1700000000000-bbbbbbbbbbbb")
	require.ErrorIs(t, err, ErrProbe)

	entries, err := os.ReadDir(uploadsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
