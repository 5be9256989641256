// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package parse

import (
	"container/ring"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/videoconverter/internal/process"
)

// Phase of a job's progress tracking
type Phase string

const (
	PhaseAwaitingDuration Phase = "awaiting_duration"
	PhaseTracking         Phase = "tracking"
	PhaseDone             Phase = "done"
)

// Progress is the progress state of one job. Duration stays nil until the
// encoder reports it; Percent never decreases within a job.
type Progress struct {
	Phase    Phase    `json:"phase"`
	Duration *float64 `json:"duration_seconds,omitempty"`
	Position float64  `json:"position_seconds"`
	Percent  float64  `json:"percent"`
	Frame    uint64   `json:"frame"`
	Speed    float64  `json:"speed"`
}

// Parser implements process.Parser and tracks job progress
type Parser interface {
	process.Parser
	Progress() Progress
	// Finish moves the tracker to PhaseDone. Percent is forced to 100
	// only for a successful exit.
	Finish(success bool) Progress
}

var (
	reFrame   = regexp.MustCompile(`frame=\s*([0-9]+)`)
	reSpeed   = regexp.MustCompile(`speed=\s*([0-9.]+)x`)
	reKeyLine = regexp.MustCompile(`^[a-z0-9_]+=\S*$`)
)

type parser struct {
	scanner Scanner

	log      *ring.Ring
	logLines int

	progress Progress
	lock     sync.RWMutex
}

// Config for the parser
type Config struct {
	LogLines int
	Scanner  Scanner
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		scanner:  config.Scanner,
		logLines: config.LogLines,
	}
	if p.scanner == nil {
		p.scanner = StatsScanner{}
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.log = ring.New(p.logLines)
	p.progress.Phase = PhaseAwaitingDuration
	return p
}

func (p *parser) Parse(line string) uint64 {
	pos, isPosition := p.scanner.TryParsePosition(line)

	p.lock.Lock()
	defer p.lock.Unlock()

	// stats lines repeat many times a second; keep them out of the log
	if !isPosition && !strings.Contains(line, "frame=") && !reKeyLine.MatchString(strings.TrimSpace(line)) {
		p.log.Value = process.Line{Timestamp: time.Now(), Data: line}
		p.log = p.log.Next()
	}

	if p.progress.Phase == PhaseDone {
		return 0
	}

	if p.progress.Phase == PhaseAwaitingDuration {
		if d, ok := p.scanner.TryParseDuration(line); ok && d > 0 {
			p.progress.Duration = &d
			p.progress.Phase = PhaseTracking
		}
	}

	var advanced uint64
	if m := reFrame.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			if x > p.progress.Frame {
				advanced = 1
			}
			p.progress.Frame = x
		}
	}
	if m := reSpeed.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Speed = x
		}
	}

	if !isPosition {
		return advanced
	}
	if pos > p.progress.Position {
		advanced = 1
	}
	p.progress.Position = pos

	if p.progress.Phase == PhaseTracking {
		if pct := percent(pos, *p.progress.Duration); pct > p.progress.Percent {
			p.progress.Percent = pct
		}
	}
	return advanced
}

func percent(pos, total float64) float64 {
	if total <= 0 {
		return 0
	}
	pct := pos / total * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (p *parser) Finish(success bool) Progress {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.progress.Phase = PhaseDone
	if success {
		p.progress.Percent = 100
	}
	return p.progress
}

func (p *parser) ResetStats() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.progress = Progress{Phase: PhaseAwaitingDuration}
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
}

func (p *parser) Log() []process.Line {
	var out []process.Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	p.lock.RUnlock()
	return out
}

func (p *parser) Progress() Progress {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress
}
