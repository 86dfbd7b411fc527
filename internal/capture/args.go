package capture

import (
	"path/filepath"
	"strconv"

	"github.com/loykin/camvault/internal/source"
)

// SegmentLayout is the time layout of segment file names (without extension).
// It sorts lexicographically in start-time order.
const SegmentLayout = "2006-01-02_15-04-05"

// segmentPattern is SegmentLayout in strftime form for the capture tool.
const segmentPattern = "%Y-%m-%d_%H-%M-%S"

// Args builds the capture tool arguments for src writing segments into dir.
// The stream is copied without transcoding and split into fixed-length
// segments named after their wall-clock start time.
func Args(src source.Source, dir, ext string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-y",
		"-loglevel", strconv.Itoa(src.LogLevel.Value()),
		"-rtsp_transport", "tcp",
		"-i", src.URL(),
		"-map", "0",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(src.SegmentSeconds),
		"-reset_timestamps", "1",
		"-strftime", "1",
		filepath.Join(dir, segmentPattern+"."+ext),
	}
}
