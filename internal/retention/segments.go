package retention

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/camvault/internal/capture"
)

// Segment is one recorded file and the interval it covers.
type Segment struct {
	Path  string    `json:"path"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Size  int64     `json:"size"`
}

// Segments lists the segment files in dir whose interval
// [start, start+length) overlaps [from, to). Start times are parsed from the
// file names in loc (the recorder writes local wall-clock names). Files whose
// names do not parse are ignored. A missing dir yields no segments.
func Segments(dir, ext string, length time.Duration, from, to time.Time, loc *time.Location) ([]Segment, error) {
	if loc == nil {
		loc = time.Local
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	suffix := "." + strings.TrimPrefix(ext, ".")
	var out []Segment
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		start, err := time.ParseInLocation(capture.SegmentLayout, strings.TrimSuffix(name, suffix), loc)
		if err != nil {
			continue
		}
		end := start.Add(length)
		if !start.Before(to) || !end.After(from) {
			continue
		}
		seg := Segment{Path: filepath.Join(dir, name), Start: start, End: end}
		if info, err := ent.Info(); err == nil {
			seg.Size = info.Size()
		}
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
