// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package logger

import (
	"fmt"
	"log"
	"strings"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

// ParseLevel 解析配置中的级别名称，空字符串视为 info
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level '%s'", s)
}

type defaultLogger struct {
	prefix string
	level  Level
}

// New returns a logger writing through the standard log package.
func New(prefix string, level Level) Logger {
	if prefix != "" && !strings.HasSuffix(prefix, " ") {
		prefix += " "
	}
	return &defaultLogger{prefix: prefix, level: level}
}

// Nop discards everything.
func Nop() Logger {
	return nopLogger{}
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	if l.level <= LevelInfo {
		log.Printf("[INFO] "+l.prefix+format, args...)
	}
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	log.Printf("[ERROR] "+l.prefix+format, args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		log.Printf("[DEBUG] "+l.prefix+format, args...)
	}
}

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Error(format string, args ...interface{}) {}
func (nopLogger) Debug(format string, args ...interface{}) {}
