// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package api

import (
	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
)

// ConversionRequest for POST /conversions
type ConversionRequest struct {
	Inputs    []string `json:"inputs" binding:"required"`
	Format    string   `json:"format" binding:"required"`
	Bitrate   int      `json:"bitrate_kbps"`
	FrameRate float64  `json:"frame_rate"`
}

// Conversion represents a batch in API response
type Conversion struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Format     string  `json:"format"`
	Bitrate    int     `json:"bitrate_kbps,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	CreatedAt  int64   `json:"created_at"`
	FinishedAt int64   `json:"finished_at,omitempty"`
	Jobs       []Job   `json:"jobs"`
}

// Job is one input of a conversion
type Job struct {
	Index    int            `json:"index"`
	Input    string         `json:"input"`
	Output   string         `json:"output"`
	Status   string         `json:"status"`
	Progress parse.Progress `json:"progress"`
	Usage    convert.Usage  `json:"usage"`
	Error    string         `json:"error,omitempty"`
}

// JobReport is the log of one job
type JobReport struct {
	Index  int         `json:"index"`
	Input  string      `json:"input"`
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Log    [][2]string `json:"log"`
}

// Report for GET /conversions/:id/report
type Report struct {
	ID   string      `json:"id"`
	Jobs []JobReport `json:"jobs"`
}

// FormatInfo describes an output format and whether this ffmpeg can
// produce it. Available is omitted when the encoder listing is unknown.
type FormatInfo struct {
	ID        string `json:"id"`
	Extension string `json:"extension"`
	Encoder   string `json:"encoder,omitempty"`
	Bitrate   bool   `json:"bitrate"`
	Available *bool  `json:"available,omitempty"`
}

// CommandRequest for PUT /conversions/:id/command
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
