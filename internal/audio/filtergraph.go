package audio

import (
	"fmt"
	"math"
	"strconv"
)

// FilterGraph builds the engine arguments for the mix stage.
type FilterGraph struct {
	// BackgroundVolume is the gain applied to the background track.
	BackgroundVolume float64
}

// DelayArgs returns the first two-pass invocation: the narration shifted by
// the pad length, padded with silence and cut at the total duration.
//
//	ffmpeg -y -i narration -af adelay=5000|5000,apad -t 30.000 delayed
func (g FilterGraph) DelayArgs(in MixInput) []string {
	return []string{
		"-y",
		"-i", in.NarrationPath,
		"-af", delayFilter(in.PadSeconds) + ",apad",
		"-t", formatSeconds(in.TotalDuration),
		in.DelayedPath,
	}
}

// MixArgs returns the second two-pass invocation. The delayed narration is the
// first amix input so duration=first ends the mix with it; the background is
// looped with -stream_loop so it never runs out.
//
//	ffmpeg -y -i delayed -stream_loop -1 -i background \
//	  -filter_complex "[1:a]volume=0.2[background];[0:a][background]amix=inputs=2:duration=first[mixed]" \
//	  -map [mixed] -t 30.000 combined
func (g FilterGraph) MixArgs(in MixInput) []string {
	graph := fmt.Sprintf("[1:a]%s[background];[0:a][background]%s[mixed]",
		g.volumeFilter(), mixFilter)

	return []string{
		"-y",
		"-i", in.DelayedPath,
		"-stream_loop", "-1",
		"-i", in.BackgroundPath,
		"-filter_complex", graph,
		"-map", "[mixed]",
		"-t", formatSeconds(in.TotalDuration),
		in.OutputPath,
	}
}

// SinglePassArgs returns one invocation doing delay, trailing pad,
// attenuation and mix. The pad is applied to the narration branch so the
// background stays audible through the final pad seconds.
func (g FilterGraph) SinglePassArgs(in MixInput) []string {
	graph := fmt.Sprintf("[0:a]%s,apad[narration];[1:a]%s[background];[narration][background]%s[mixed]",
		delayFilter(in.PadSeconds), g.volumeFilter(), mixFilter)

	return []string{
		"-y",
		"-i", in.NarrationPath,
		"-stream_loop", "-1",
		"-i", in.BackgroundPath,
		"-filter_complex", graph,
		"-map", "[mixed]",
		"-t", formatSeconds(in.TotalDuration),
		in.OutputPath,
	}
}

const mixFilter = "amix=inputs=2:duration=first"

func (g FilterGraph) volumeFilter() string {
	return "volume=" + strconv.FormatFloat(g.BackgroundVolume, 'f', -1, 64)
}

// delayFilter delays both channels by pad seconds. adelay ignores delays for
// channels the input does not have, so mono narration works too.
func delayFilter(pad float64) string {
	ms := int64(math.Round(pad * 1000))
	return fmt.Sprintf("adelay=%d|%d", ms, ms)
}

// formatSeconds renders a duration for -t with millisecond precision.
func formatSeconds(d float64) string {
	return strconv.FormatFloat(d, 'f', 3, 64)
}
