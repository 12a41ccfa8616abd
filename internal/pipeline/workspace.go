package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ArtifactKind names one file of a request.
type ArtifactKind string

const (
	KindBackground ArtifactKind = "background"
	KindNarration  ArtifactKind = "narration"
	KindCover      ArtifactKind = "cover"
	KindDelayed    ArtifactKind = "delayed"
	KindCombined   ArtifactKind = "combined"
	KindOutput     ArtifactKind = "output"
)

const (
	audioExt  = ".mp3"
	outputExt = ".mp4"
	// coverFallbackExt is used when the uploaded cover name has no usable extension.
	coverFallbackExt = ".jpg"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Workspace names every file of one request inside the uploads directory.
// All names share the request token, so concurrent requests never collide.
type Workspace struct {
	Dir   string
	Token string

	Background string
	Narration  string
	Cover      string
	Delayed    string
	Combined   string
	Output     string
}

// NewWorkspace derives the artifact paths for token. coverName is the client
// file name of the cover upload; only its sanitized extension is kept.
func NewWorkspace(dir, token, coverName string) Workspace {
	name := func(kind ArtifactKind, ext string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_%s%s", kind, token, ext))
	}
	return Workspace{
		Dir:        dir,
		Token:      token,
		Background: name(KindBackground, audioExt),
		Narration:  name(KindNarration, audioExt),
		Cover:      name(KindCover, CoverExt(coverName)),
		Delayed:    name(KindDelayed, audioExt),
		Combined:   name(KindCombined, audioExt),
		Output:     name(KindOutput, outputExt),
	}
}

// Temps returns the files deleted once a run finishes, successful or not.
func (w Workspace) Temps() []string {
	return []string{w.Background, w.Narration, w.Cover, w.Delayed, w.Combined}
}

// CoverExt returns the lower-cased extension of a client file name, or
// ".jpg" when the extension is missing or contains unexpected characters.
func CoverExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !extPattern.MatchString(ext) {
		return coverFallbackExt
	}
	return ext
}

// IsOutputName reports whether name is a finished output file name.
func IsOutputName(name string) bool {
	return name == filepath.Base(name) &&
		strings.HasPrefix(name, string(KindOutput)+"_") &&
		strings.HasSuffix(name, outputExt)
}
