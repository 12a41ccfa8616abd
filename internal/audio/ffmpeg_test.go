package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/narration-video-api/internal/engine"
)

// recordingRunner records every invocation and writes the output file (the
// last argument) so cleanup can be observed.
type recordingRunner struct {
	calls  [][]string
	failOn map[int]error
}

func (r *recordingRunner) Run(_ context.Context, args []string) error {
	r.calls = append(r.calls, args)
	if err, ok := r.failOn[len(r.calls)]; ok {
		return err
	}
	return os.WriteFile(args[len(args)-1], []byte("audio"), 0o600)
}

func testInput(t *testing.T) MixInput {
	t.Helper()
	dir := t.TempDir()
	return MixInput{
		BackgroundPath: filepath.Join(dir, "background_tok.mp3"),
		NarrationPath:  filepath.Join(dir, "narration_tok.mp3"),
		DelayedPath:    filepath.Join(dir, "delayed_tok.mp3"),
		OutputPath:     filepath.Join(dir, "combined_tok.mp3"),
		TotalDuration:  30,
		PadSeconds:     5,
	}
}

func TestNewFFmpegMixer_Defaults(t *testing.T) {
	m := NewFFmpegMixer(&recordingRunner{}, MixOpts{}, nil)
	assert.Equal(t, StrategyTwoPass, m.Strategy())
	assert.InDelta(t, 0.2, m.graph.BackgroundVolume, 1e-9)
}

func TestFilterGraph_DelayArgs(t *testing.T) {
	in := testInput(t)
	args := FilterGraph{BackgroundVolume: 0.2}.DelayArgs(in)

	assert.Equal(t, []string{
		"-y",
		"-i", in.NarrationPath,
		"-af", "adelay=5000|5000,apad",
		"-t", "30.000",
		in.DelayedPath,
	}, args)
}

func TestFilterGraph_MixArgs(t *testing.T) {
	in := testInput(t)
	args := FilterGraph{BackgroundVolume: 0.2}.MixArgs(in)

	assert.Equal(t, []string{
		"-y",
		"-i", in.DelayedPath,
		"-stream_loop", "-1",
		"-i", in.BackgroundPath,
		"-filter_complex", "[1:a]volume=0.2[background];[0:a][background]amix=inputs=2:duration=first[mixed]",
		"-map", "[mixed]",
		"-t", "30.000",
		in.OutputPath,
	}, args)
}

func TestFilterGraph_SinglePassArgs(t *testing.T) {
	in := testInput(t)
	in.PadSeconds = 2.5
	in.TotalDuration = 12.345
	args := FilterGraph{BackgroundVolume: 0.35}.SinglePassArgs(in)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-stream_loop -1 -i "+in.BackgroundPath)
	assert.Contains(t, joined, "[0:a]adelay=2500|2500,apad[narration]")
	assert.Contains(t, joined, "[1:a]volume=0.35[background]")
	assert.Contains(t, joined, "[narration][background]amix=inputs=2:duration=first[mixed]")
	assert.Equal(t, "12.345", args[len(args)-2])
	assert.Equal(t, in.OutputPath, args[len(args)-1])
}

func TestBuildCombinedAudio_TwoPass(t *testing.T) {
	ctx := context.Background()

	t.Run("runs delay then mix and removes the delayed file", func(t *testing.T) {
		runner := &recordingRunner{}
		m := NewFFmpegMixer(runner, DefaultMixOpts(), nil)
		in := testInput(t)

		require.NoError(t, m.BuildCombinedAudio(ctx, in))

		require.Len(t, runner.calls, 2)
		assert.Equal(t, in.DelayedPath, runner.calls[0][len(runner.calls[0])-1])
		assert.Equal(t, in.OutputPath, runner.calls[1][len(runner.calls[1])-1])
		assert.NoFileExists(t, in.DelayedPath)
		assert.FileExists(t, in.OutputPath)
	})

	t.Run("second pass failure still removes the delayed file", func(t *testing.T) {
		engErr := &engine.Error{Binary: "ffmpeg", Err: errors.New("exit status 1"), Stderr: "amix failed"}
		runner := &recordingRunner{failOn: map[int]error{2: engErr}}
		m := NewFFmpegMixer(runner, DefaultMixOpts(), nil)
		in := testInput(t)

		err := m.BuildCombinedAudio(ctx, in)
		require.Error(t, err)

		var target *engine.Error
		assert.ErrorAs(t, err, &target)
		assert.NoFileExists(t, in.DelayedPath)
		assert.NoFileExists(t, in.OutputPath)
	})

	t.Run("first pass failure skips the mix", func(t *testing.T) {
		runner := &recordingRunner{failOn: map[int]error{1: errors.New("boom")}}
		m := NewFFmpegMixer(runner, DefaultMixOpts(), nil)
		in := testInput(t)

		err := m.BuildCombinedAudio(ctx, in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delay narration")
		assert.Len(t, runner.calls, 1)
		assert.NoFileExists(t, in.DelayedPath)
	})

	t.Run("requires a delayed path", func(t *testing.T) {
		runner := &recordingRunner{}
		m := NewFFmpegMixer(runner, DefaultMixOpts(), nil)
		in := testInput(t)
		in.DelayedPath = ""

		err := m.BuildCombinedAudio(ctx, in)
		assert.ErrorIs(t, err, ErrMissingPath)
		assert.Empty(t, runner.calls)
	})
}

func TestBuildCombinedAudio_SinglePass(t *testing.T) {
	runner := &recordingRunner{}
	m := NewFFmpegMixer(runner, MixOpts{Strategy: StrategySinglePass, BackgroundVolume: 0.2}, nil)
	in := testInput(t)
	in.DelayedPath = ""

	require.NoError(t, m.BuildCombinedAudio(context.Background(), in))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, in.OutputPath, runner.calls[0][len(runner.calls[0])-1])
}

func TestBuildCombinedAudio_InvalidInput(t *testing.T) {
	m := NewFFmpegMixer(&recordingRunner{}, DefaultMixOpts(), nil)
	ctx := context.Background()

	in := testInput(t)
	in.TotalDuration = 0
	assert.ErrorIs(t, m.BuildCombinedAudio(ctx, in), ErrInvalidDuration)

	in = testInput(t)
	in.PadSeconds = -1
	assert.ErrorIs(t, m.BuildCombinedAudio(ctx, in), ErrInvalidPad)

	in = testInput(t)
	in.NarrationPath = ""
	assert.ErrorIs(t, m.BuildCombinedAudio(ctx, in), ErrMissingPath)
}

// skipUnlessEncoders skips the test unless ffmpeg, ffprobe and the named
// encoders are available.
func skipUnlessEncoders(t *testing.T, encoders ...string) {
	t.Helper()
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

// createTone writes a sine tone (or silence when freq is 0) of the given length.
func createTone(t *testing.T, path string, freq int, duration float64) {
	t.Helper()
	src := "sine=frequency=" + strconv.Itoa(freq) + ":duration=" + formatSeconds(duration)
	if freq == 0 {
		src = "anullsrc=r=44100:cl=mono:d=" + formatSeconds(duration)
	}
	cmd := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", src, "-t", formatSeconds(duration), path)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\noutput: %s", err, output)
	}
}

var maxVolumeRe = regexp.MustCompile(`max_volume:\s*(-?[\d.]+|-inf) dB`)

// maxVolume returns the peak level in dB of path between start and start+duration.
func maxVolume(t *testing.T, path string, start, duration float64) float64 {
	t.Helper()
	cmd := exec.Command("ffmpeg", "-hide_banner",
		"-ss", formatSeconds(start), "-t", formatSeconds(duration),
		"-i", path, "-af", "volumedetect", "-f", "null", "-")
	output, _ := cmd.CombinedOutput()
	m := maxVolumeRe.FindStringSubmatch(string(output))
	if len(m) < 2 {
		t.Fatalf("no volumedetect output: %s", output)
	}
	if m[1] == "-inf" {
		return -200
	}
	v, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	return v
}

func TestBuildCombinedAudio_RealFFmpeg(t *testing.T) {
	skipUnlessEncoders(t, "libmp3lame")

	for _, strategy := range []Strategy{StrategyTwoPass, StrategySinglePass} {
		t.Run(string(strategy), func(t *testing.T) {
			dir := t.TempDir()
			in := MixInput{
				BackgroundPath: filepath.Join(dir, "background.mp3"),
				NarrationPath:  filepath.Join(dir, "narration.mp3"),
				DelayedPath:    filepath.Join(dir, "delayed.mp3"),
				OutputPath:     filepath.Join(dir, "combined.mp3"),
				PadSeconds:     1,
			}
			// Silent background isolates the narration energy.
			createTone(t, in.BackgroundPath, 0, 0.5)
			createTone(t, in.NarrationPath, 440, 2)

			narration, err := engine.NewFFprobe("", 10*time.Second).Duration(context.Background(), in.NarrationPath)
			require.NoError(t, err)
			in.TotalDuration = narration + 2*in.PadSeconds

			m := NewFFmpegMixer(engine.NewFFmpeg("", engine.WithTimeout(time.Minute)), MixOpts{Strategy: strategy}, nil)
			require.NoError(t, m.BuildCombinedAudio(context.Background(), in))

			got, err := engine.NewFFprobe("", 10*time.Second).Duration(context.Background(), in.OutputPath)
			require.NoError(t, err)
			assert.InDelta(t, in.TotalDuration, got, 0.15)
			assert.NoFileExists(t, in.DelayedPath)

			assert.Less(t, maxVolume(t, in.OutputPath, 0, 0.8), -60.0, "no narration before pad")
			assert.Greater(t, maxVolume(t, in.OutputPath, 1.3, 1.0), -40.0, "narration after pad")
		})
	}
}
