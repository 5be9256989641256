// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scanner extracts timing information from single diagnostic lines.
// Both methods report ok=false for lines that don't carry the marker or
// can't be parsed.
type Scanner interface {
	TryParseDuration(line string) (seconds float64, ok bool)
	TryParsePosition(line string) (seconds float64, ok bool)
}

// Mode selects where ffmpeg reports its position.
type Mode string

const (
	// ModeStats reads the default "frame=... time=..." stats lines.
	ModeStats Mode = "stats"
	// ModePipe reads key=value blocks from "-progress pipe:2".
	ModePipe Mode = "pipe"
)

// ParseMode 解析配置中的进度模式
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStats:
		return ModeStats, nil
	case ModePipe:
		return ModePipe, nil
	}
	return "", fmt.Errorf("unknown progress mode '%s'", s)
}

// Scanner returns the scanner matching the mode.
func (m Mode) Scanner() Scanner {
	if m == ModePipe {
		return PipeScanner{}
	}
	return StatsScanner{}
}

// Args returns the extra encoder arguments the mode needs.
func (m Mode) Args() []string {
	if m == ModePipe {
		return []string{"-progress", "pipe:2", "-nostats"}
	}
	return nil
}

var (
	reDuration = regexp.MustCompile(`Duration:\s*([0-9]+:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?)`)
	reTime     = regexp.MustCompile(`time=\s*(-?[0-9]+:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?)`)
	reOutTime  = regexp.MustCompile(`^out_time_(?:us|ms)=\s*(-?[0-9]+)\s*$`)
)

// StatsScanner reads ffmpeg's default stderr output.
type StatsScanner struct{}

func (StatsScanner) TryParseDuration(line string) (float64, bool) {
	return matchClock(reDuration, line)
}

func (StatsScanner) TryParsePosition(line string) (float64, bool) {
	return matchClock(reTime, line)
}

// PipeScanner reads "-progress pipe:2" output. The banner still carries
// the duration. out_time_ms is in microseconds despite its name.
type PipeScanner struct{}

func (PipeScanner) TryParseDuration(line string) (float64, bool) {
	return matchClock(reDuration, line)
}

func (PipeScanner) TryParsePosition(line string) (float64, bool) {
	m := reOutTime.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	us, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	if us < 0 {
		us = 0
	}
	return float64(us) / 1e6, true
}

func matchClock(re *regexp.Regexp, line string) (float64, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	s, err := ParseClock(m[1])
	if err != nil {
		return 0, false
	}
	return s, true
}

// ParseClock converts "H:MM:SS[.frac]" to seconds. A leading minus (ffmpeg
// prints negative times before the first packet) is clamped to zero.
func ParseClock(s string) (float64, error) {
	neg := strings.HasPrefix(s, "-")
	parts := strings.Split(strings.TrimPrefix(s, "-"), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock '%s'", s)
	}

	h, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hours in '%s'", s)
	}
	m, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || m > 59 {
		return 0, fmt.Errorf("invalid minutes in '%s'", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || !(sec >= 0 && sec < 60) || strings.HasPrefix(parts[2], "+") {
		return 0, fmt.Errorf("invalid seconds in '%s'", s)
	}

	if neg {
		return 0, nil
	}
	return float64(h*3600+m*60) + sec, nil
}
