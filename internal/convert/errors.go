// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package convert

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrLaunch         = errors.New("encoder could not be started")
	ErrEncoding       = errors.New("encoding failed")
	ErrStalled        = errors.New("encoding stalled")
	ErrCancelled      = errors.New("conversion cancelled")
)
