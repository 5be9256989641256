// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package convert

import (
	"fmt"
	"math"
	"strings"

	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
	"github.com/ZSC714725/videoconverter/internal/process"
)

// Request asks for every input to be converted to Format. Bitrate (kbps)
// and FrameRate (fps) are applied only when set; zero means unset.
type Request struct {
	Inputs    []string
	Format    Format
	Bitrate   int
	FrameRate float64
}

// Validate checks the request before anything is launched
func (r Request) Validate() error {
	if len(r.Inputs) == 0 {
		return fmt.Errorf("%w: no input file", ErrInvalidRequest)
	}
	for i, in := range r.Inputs {
		if strings.TrimSpace(in) == "" {
			return fmt.Errorf("%w: input %d is empty", ErrInvalidRequest, i)
		}
	}
	if r.Format == "" {
		return fmt.Errorf("%w: no output format", ErrInvalidRequest)
	}
	if !r.Format.Valid() {
		return fmt.Errorf("%w: unknown format '%s'", ErrInvalidRequest, r.Format)
	}
	if r.Bitrate < 0 {
		return fmt.Errorf("%w: bitrate must be positive", ErrInvalidRequest)
	}
	if !(r.FrameRate >= 0) || math.IsInf(r.FrameRate, 1) {
		return fmt.Errorf("%w: frame rate must be positive", ErrInvalidRequest)
	}
	return nil
}

// Clone returns a copy that shares nothing with r.
func (r Request) Clone() Request {
	r.Inputs = append([]string(nil), r.Inputs...)
	return r
}

// Status of a single job
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsFinished reports whether the status is terminal
func (s Status) IsFinished() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Usage of the encoder process behind a job. CPU and Memory are sampled
// while it runs and are zero once it has exited; PID stays set.
type Usage struct {
	PID    int     `json:"pid,omitempty"`
	CPU    float64 `json:"cpu_usage"`
	Memory uint64  `json:"memory_bytes"`
}

// Result of converting one input
type Result struct {
	Input    string
	Output   string
	Status   Status
	Success  bool
	Error    string
	Err      error
	Progress parse.Progress
	Usage    Usage
	Log      []process.Line
}

// Update is sent to an Observer whenever a job starts, advances or ends.
type Update struct {
	Index    int
	Input    string
	Output   string
	Status   Status
	Progress parse.Progress
	Usage    Usage
	Error    string
}

// Observer receives updates on the goroutine running the batch.
type Observer func(Update)
