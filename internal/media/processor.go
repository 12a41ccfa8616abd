// Package media encodes the final video from a cover visual and the combined
// soundtrack.
package media

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// CoverKind is the encode branch chosen for a cover asset.
type CoverKind string

const (
	// CoverImage is a still image looped for the whole output.
	CoverImage CoverKind = "image"
	// CoverVideo is a video clip looped for the whole output.
	CoverVideo CoverKind = "video"
)

// videoExtensions are the container extensions treated as video covers.
var videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

// Classify returns CoverVideo when path has one of the recognized video
// extensions (case-insensitive) and CoverImage otherwise. Only the extension
// is inspected.
func Classify(path string) CoverKind {
	ext := strings.ToLower(filepath.Ext(path))
	if lo.Contains(videoExtensions, ext) {
		return CoverVideo
	}
	return CoverImage
}

// MuxInput describes one final encode.
type MuxInput struct {
	// VisualPath is the cover image or video.
	VisualPath string
	// AudioPath is the combined soundtrack.
	AudioPath string
	// OutputPath is where the MP4 is written.
	OutputPath string
	// TotalDuration caps the output length in seconds.
	TotalDuration float64
}

// Muxer defines the interface for producing the final video.
type Muxer interface {
	// Mux loops the visual under the soundtrack and writes exactly one file
	// at in.OutputPath. It returns the encode branch that was used.
	Mux(ctx context.Context, in MuxInput) (CoverKind, error)
}
