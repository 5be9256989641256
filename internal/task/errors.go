// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package task

import "errors"

var (
	ErrNotFound = errors.New("batch not found")
	ErrFinished = errors.New("batch already finished")
	ErrShutdown = errors.New("store is shut down")
)
