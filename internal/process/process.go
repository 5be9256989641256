// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具
//
// Package process runs a single encoder invocation to completion while
// draining its diagnostic stream into a Parser.

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	ErrStart = errors.New("process start failed")
	ErrExit  = errors.New("process exited with error")
	ErrStale = errors.New("process stalled")
)

const (
	defaultKillTimeout = 5 * time.Second
	minStaleInterval   = time.Millisecond
	maxLineSize        = 1 << 20
)

// Process is a one-shot process. Run may only be called once.
type Process interface {
	Run(ctx context.Context) error
	Status() Status
	IsRunning() bool
}

// Config for a process
type Config struct {
	Binary string
	Args   []string
	// StaleTimeout stops the process if the parser reports no progress
	// for this long. Zero disables the check.
	StaleTimeout time.Duration
	// KillTimeout is the grace period between interrupt and kill.
	KillTimeout   time.Duration
	Parser        Parser
	Sampler       Sampler
	OnStart       func(pid int)
	OnStateChange func(from, to string)
	Logger        Logger
}

// Status of a process
type Status struct {
	State    string
	Duration time.Duration
	Time     time.Time
	PID      int
	ExitCode int
	CPU      float64
	Memory   uint64
}

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type stateType string

const (
	stateIdle      stateType = "idle"
	stateStarting  stateType = "starting"
	stateRunning   stateType = "running"
	stateFinishing stateType = "finishing"
	stateFinished  stateType = "finished"
	stateFailed    stateType = "failed"
	stateKilled    stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning || s == stateFinishing
}

var transitions = map[stateType][]stateType{
	stateIdle:      {stateStarting},
	stateStarting:  {stateRunning, stateFailed},
	stateRunning:   {stateFinishing, stateFinished, stateFailed},
	stateFinishing: {stateFinished, stateFailed, stateKilled},
}

type process struct {
	binary  string
	args    []string
	parser  Parser
	logger  Logger
	sampler Sampler
	cmd     *exec.Cmd

	state struct {
		state    stateType
		time     time.Time
		pid      int
		exitCode int
		lock     sync.Mutex
	}
	stale struct {
		last    time.Time
		timeout time.Duration
		lock    sync.Mutex
	}
	stop struct {
		reason error
		timer  *time.Timer
		grace  time.Duration
		lock   sync.Mutex
	}
	onStart       func(pid int)
	onStateChange func(from, to string)
}

// New creates a new process
func New(config Config) (Process, error) {
	p := &process{
		binary:        config.Binary,
		args:          config.Args,
		parser:        config.Parser,
		logger:        config.Logger,
		sampler:       config.Sampler,
		onStart:       config.OnStart,
		onStateChange: config.OnStateChange,
	}

	if len(p.binary) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}
	if p.parser == nil {
		p.parser = &nullParser{}
	}
	if p.logger == nil {
		p.logger = &nopLogger{}
	}
	if p.sampler == nil {
		p.sampler = NewSysSampler()
	}

	p.stale.timeout = config.StaleTimeout
	p.stop.grace = config.KillTimeout
	if p.stop.grace <= 0 {
		p.stop.grace = defaultKillTimeout
	}

	p.state.state = stateIdle
	p.state.time = time.Now()
	p.state.exitCode = -1

	return p, nil
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	prev := p.state.state
	allowed := false
	for _, s := range transitions[prev] {
		if s == state {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = time.Now()
	if p.onStateChange != nil {
		go p.onStateChange(prev.String(), state.String())
	}
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) IsRunning() bool {
	return p.getState().IsRunning()
}

func (p *process) Status() Status {
	cpu, memory := p.sampler.Current()

	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	return Status{
		State:    p.state.state.String(),
		Duration: time.Since(p.state.time),
		Time:     p.state.time,
		PID:      p.state.pid,
		ExitCode: p.state.exitCode,
		CPU:      cpu,
		Memory:   memory,
	}
}

func (p *process) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.setState(stateStarting); err != nil {
		return err
	}

	p.parser.ResetStats()
	p.parser.ResetLog()

	cmd := exec.Command(p.binary, p.args...)
	cmd.Env = []string{}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return p.startFailed(err)
	}
	if err := cmd.Start(); err != nil {
		return p.startFailed(err)
	}
	p.cmd = cmd

	pid := cmd.Process.Pid
	p.state.lock.Lock()
	p.state.pid = pid
	p.state.lock.Unlock()

	if err := p.sampler.Start(pid); err != nil {
		p.logger.Debug("sampler for pid %d: %v", pid, err)
	}

	p.setState(stateRunning)
	p.logger.Debug("started %s (pid %d) %v", p.binary, pid, p.args)

	if p.onStart != nil {
		go p.onStart(pid)
	}

	p.stale.lock.Lock()
	p.stale.last = time.Now()
	p.stale.lock.Unlock()

	done := make(chan struct{})
	go p.watch(ctx, done)

	p.read(stderr)
	waitErr := cmd.Wait()
	close(done)

	p.sampler.Stop()

	p.stop.lock.Lock()
	if p.stop.timer != nil {
		p.stop.timer.Stop()
		p.stop.timer = nil
	}
	reason := p.stop.reason
	p.stop.lock.Unlock()

	p.state.lock.Lock()
	p.state.exitCode = cmd.ProcessState.ExitCode()
	p.state.lock.Unlock()

	switch {
	case waitErr == nil:
		p.setState(stateFinished)
		return nil
	case reason != nil && errors.Is(reason, ErrStale):
		p.setState(stateFailed)
		return reason
	case reason != nil:
		p.setState(stateKilled)
		return reason
	default:
		p.setState(stateFailed)
		return fmt.Errorf("%w: %w", ErrExit, waitErr)
	}
}

func (p *process) startFailed(err error) error {
	p.setState(stateFailed)
	p.parser.Parse(err.Error())
	return fmt.Errorf("%w: %w", ErrStart, err)
}

// watch stops the process on cancellation or when progress goes stale.
func (p *process) watch(ctx context.Context, done <-chan struct{}) {
	var tick <-chan time.Time
	if timeout := p.stale.timeout; timeout > 0 {
		interval := time.Second
		if timeout < 4*interval {
			interval = max(timeout/4, minStaleInterval)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			p.terminate(ctx.Err())
			return
		case t := <-tick:
			p.stale.lock.Lock()
			last := p.stale.last
			p.stale.lock.Unlock()

			if t.Sub(last) > p.stale.timeout {
				p.logger.Info("no progress from pid %d for %s, stopping", p.cmd.Process.Pid, p.stale.timeout)
				p.terminate(fmt.Errorf("%w: no progress for %s", ErrStale, p.stale.timeout))
				return
			}
		}
	}
}

func (p *process) terminate(reason error) {
	if err := p.setState(stateFinishing); err != nil {
		return
	}

	p.stop.lock.Lock()
	defer p.stop.lock.Unlock()
	p.stop.reason = reason

	proc := p.cmd.Process
	if runtime.GOOS == "windows" {
		proc.Kill()
		return
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		proc.Kill()
		return
	}
	p.stop.timer = time.AfterFunc(p.stop.grace, func() {
		proc.Kill()
	})
}

// read drains the diagnostic stream until EOF. An encoder blocks once the
// pipe buffer is full, so the stream is drained even after a scan error.
func (p *process) read(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLine)

	for scanner.Scan() {
		if n := p.parser.Parse(scanner.Text()); n != 0 {
			p.stale.lock.Lock()
			p.stale.last = time.Now()
			p.stale.lock.Unlock()
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Error("reading stderr: %v", err)
		io.Copy(io.Discard, r)
	}
}

// scanLine splits on \n and \r. ffmpeg rewrites its stats line with \r.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
