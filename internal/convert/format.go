// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package convert

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Format is a target container/codec
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMKV  Format = "mkv"
	FormatAV1  Format = "av1"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
)

const (
	animatedWidth = 320
	animatedFPS   = 10
)

var order = []Format{FormatMP4, FormatMKV, FormatAV1, FormatGIF, FormatWebP}

type formatSpec struct {
	// encoder the format relies on; empty means ffmpeg's default for the muxer
	encoder string
	codec   []string
	// quality is replaced by -b:v when a bitrate is requested
	quality []string
	// animated formats get an fps+scale filter instead of -r
	animated bool
	bitrate  bool
	extra    []string
}

var formats = map[Format]formatSpec{
	FormatMP4: {bitrate: true},
	FormatMKV: {bitrate: true},
	FormatAV1: {
		encoder: "libaom-av1",
		codec:   []string{"-c:v", "libaom-av1"},
		quality: []string{"-crf", "30", "-b:v", "0"},
		bitrate: true,
		// no muxer claims the .av1 extension; write a raw OBU stream
		extra: []string{"-f", "obu"},
	},
	FormatGIF: {encoder: "gif", animated: true},
	FormatWebP: {
		encoder:  "libwebp",
		animated: true,
		bitrate:  true,
		extra:    []string{"-loop", "0"},
	},
}

// ParseFormat accepts any case and surrounding whitespace.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("%w: unknown format '%s'", ErrInvalidRequest, s)
	}
	return f, nil
}

// Formats returns all supported formats in display order.
func Formats() []Format {
	return append([]Format(nil), order...)
}

// Valid reports whether f is a supported format
func (f Format) Valid() bool {
	_, ok := formats[f]
	return ok
}

// Encoder names the encoder the format needs, or "" for the muxer default.
func (f Format) Encoder() string {
	return formats[f].encoder
}

// HonoursBitrate reports whether a requested bitrate reaches the encoder.
func (f Format) HonoursBitrate() bool {
	return formats[f].bitrate
}

// OutputPath replaces the extension of input with the format's.
func OutputPath(input string, format Format) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "." + string(format)
}

// BuildArgs returns the encoder arguments for one input:
// -i <input> [progress] [format flags] [-b:v <N>k] [-r <fps>] -y <output>
func BuildArgs(input, output string, req Request, progress []string) []string {
	spec := formats[req.Format]

	args := []string{"-i", input}
	args = append(args, progress...)
	args = append(args, spec.codec...)

	if spec.animated {
		fps := strconv.Itoa(animatedFPS)
		if req.FrameRate > 0 {
			fps = formatRate(req.FrameRate)
		}
		args = append(args, "-vf", fmt.Sprintf("fps=%s,scale=%d:-1", fps, animatedWidth))
	}

	if req.Bitrate > 0 && spec.bitrate {
		args = append(args, "-b:v", strconv.Itoa(req.Bitrate)+"k")
	} else {
		args = append(args, spec.quality...)
	}

	if req.FrameRate > 0 && !spec.animated {
		args = append(args, "-r", formatRate(req.FrameRate))
	}

	args = append(args, spec.extra...)
	return append(args, "-y", output)
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}
