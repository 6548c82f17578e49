package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMatchPattern recognizes activity-manager intent records the way the
// stock Android log formats them: a START line carrying a component.
const DefaultMatchPattern = `START.*cmp=`

// intent parameters that may trail the dat= value on a START line
var intentParamMarkers = []string{" cmp=", " typ=", " flg=", " act=", " cat=", " pkg="}

// Extractor recognizes playback-intent records in raw log lines and isolates
// the embedded source path. Stateless: the same line and pattern always yield
// the same result.
type Extractor struct {
	expr *regexp.Regexp
}

// NewExtractor compiles the configured match expression. An empty pattern
// selects DefaultMatchPattern.
func NewExtractor(pattern string) (*Extractor, error) {
	if pattern == "" {
		pattern = DefaultMatchPattern
	}
	expr, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern %q: %w", pattern, err)
	}
	return &Extractor{expr: expr}, nil
}

// Extract returns the playback event encoded in line, if any. A line that
// matches the pattern but yields no isolatable path is treated as a non-match.
func (e *Extractor) Extract(line RawLine) (PlaybackEvent, bool) {
	if !e.expr.MatchString(line.Text) {
		return PlaybackEvent{}, false
	}
	path, ok := extractSourcePath(line.Text)
	if !ok {
		return PlaybackEvent{}, false
	}
	return PlaybackEvent{SourcePath: path, ObservedAt: line.ReadAt}, true
}

// extractSourcePath isolates the path carried by the dat= intent parameter.
func extractSourcePath(line string) (string, bool) {
	datPos := strings.Index(line, "dat=")
	if datPos == -1 {
		return "", false
	}
	dat := line[datPos+len("dat="):]

	// cut any trailing intent parameters
	for _, marker := range intentParamMarkers {
		if pos := strings.Index(dat, marker); pos != -1 {
			dat = dat[:pos]
		}
	}
	dat = strings.TrimSpace(dat)
	if dat == "" {
		return "", false
	}

	if !strings.Contains(dat, "content://") {
		return "", false
	}

	// The fragment separates the provider authority from the real path.
	if pos := strings.Index(dat, "#"); pos != -1 {
		return trimPath(dat[pos+1:])
	}

	// common storage-provider markers
	for _, marker := range []string{"externalstorage/", "storage/emulated/0/"} {
		if pos := strings.Index(dat, marker); pos != -1 {
			return trimPath(dat[pos+len(marker):])
		}
	}

	// last resort: everything after the final slash
	if pos := strings.LastIndex(dat, "/"); pos != -1 {
		return trimPath(dat[pos+1:])
	}

	return "", false
}

func trimPath(p string) (string, bool) {
	p = strings.Trim(p, "/ ")
	if p == "" {
		return "", false
	}
	return p, true
}
