package supervisor

import (
	"path/filepath"
	"strconv"
)

// Container selects the HLS segment container variant.
type Container string

const (
	ContainerMPEGTS Container = "mpegts"
	ContainerFMP4   Container = "fmp4"
	ContainerCMAF   Container = "cmaf"
)

// EncoderConfig holds everything needed to derive the ffmpeg argument list.
type EncoderConfig struct {
	BinaryPath     string
	InputFormat    string // e.g. "avfoundation", "alsa"
	Input          string // input source locator, e.g. ":0"
	Bitrate        string // target audio bitrate, e.g. "192k"
	SegmentSeconds int    // hls_time for both renditions
	LiveWindow     int    // hls_list_size of the bounded live rendition
	Container      Container
}

// SegmentExt returns the segment file extension for the container variant.
func (c EncoderConfig) SegmentExt() string {
	if c.Container == ContainerMPEGTS {
		return "ts"
	}
	return "m4s"
}

// args builds the full ffmpeg invocation: one input, AAC stereo encoding,
// and two HLS outputs sharing the segment duration. The live output keeps a
// sliding window (old segments deleted); the archive output is unbounded.
func (c EncoderConfig) args(liveDir, archiveDir string) []string {
	segmentType := "fmp4"
	liveFlags := "delete_segments+append_list+independent_segments"
	initSegment := []string{"-hls_fmp4_init_filename", "init.mp4"}
	if c.Container == ContainerMPEGTS {
		segmentType = "mpegts"
		liveFlags = "delete_segments+append_list"
		initSegment = nil
	}
	segmentName := "segment_%05d." + c.SegmentExt()

	args := []string{
		// Machine-readable progress on stdout for stall detection.
		"-nostats",
		"-progress", "pipe:1",

		// Input
		"-f", c.InputFormat,
		"-i", c.Input,

		// Audio encoding
		"-c:a", "aac",
		"-b:a", c.Bitrate,
		"-ac", "2",
		"-ar", "48000",
	}

	// Live output: bounded sliding window
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(c.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(c.LiveWindow),
		"-hls_segment_type", segmentType,
	)
	args = append(args, initSegment...)
	args = append(args,
		"-hls_segment_filename", filepath.Join(liveDir, segmentName),
		"-hls_flags", liveFlags,
		filepath.Join(liveDir, "index.m3u8"),
	)

	// Archive output: unbounded window retaining the full session
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(c.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_segment_type", segmentType,
	)
	args = append(args, initSegment...)
	args = append(args,
		"-hls_segment_filename", filepath.Join(archiveDir, segmentName),
		"-hls_flags", "independent_segments",
		filepath.Join(archiveDir, "index.m3u8"),
	)

	return args
}
