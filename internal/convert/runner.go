// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

// Package convert turns conversion requests into encoder runs.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/videoconverter/internal/ffmpeg"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
	"github.com/ZSC714725/videoconverter/internal/logger"
	"github.com/ZSC714725/videoconverter/internal/process"
)

const errorTailLines = 3

// Config for a Runner
type Config struct {
	FFmpeg       ffmpeg.FFmpeg
	Logger       logger.Logger
	StaleTimeout time.Duration
}

// Runner runs conversions. It holds no per-job state and may be shared.
type Runner struct {
	ffmpeg       ffmpeg.FFmpeg
	logger       logger.Logger
	staleTimeout time.Duration
}

// NewRunner creates a Runner
func NewRunner(config Config) *Runner {
	r := &Runner{
		ffmpeg:       config.FFmpeg,
		logger:       config.Logger,
		staleTimeout: config.StaleTimeout,
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

// Run converts every input of req in order. The returned error is only
// set for an invalid request, in which case nothing was launched. A failed
// job does not stop later ones; after ctx is cancelled the remaining jobs
// are reported cancelled without being started.
func (r *Runner) Run(ctx context.Context, req Request, observe Observer) ([]Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if observe == nil {
		observe = func(Update) {}
	}

	results := make([]Result, 0, len(req.Inputs))
	for i, input := range req.Inputs {
		output := OutputPath(input, req.Format)

		var res Result
		if ctx.Err() != nil {
			res = failure(input, output, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()), parse.Progress{Phase: parse.PhaseDone}, nil)
		} else {
			observe(Update{Index: i, Input: input, Output: output, Status: StatusConverting, Progress: parse.Progress{Phase: parse.PhaseAwaitingDuration}})
			res = r.Convert(ctx, input, req, func(p parse.Progress, u Usage) {
				observe(Update{Index: i, Input: input, Output: output, Status: StatusConverting, Progress: p, Usage: u})
			})
		}

		observe(Update{Index: i, Input: input, Output: output, Status: res.Status, Progress: res.Progress, Usage: res.Usage, Error: res.Error})
		results = append(results, res)
	}
	return results, nil
}

// Convert runs the encoder for a single input. onProgress is called from
// the calling goroutine each time the tracked progress changes, together
// with a fresh sample of the encoder's resource usage.
func (r *Runner) Convert(ctx context.Context, input string, req Request, onProgress func(parse.Progress, Usage)) Result {
	output := OutputPath(input, req.Format)
	initial := parse.Progress{Phase: parse.PhaseDone}

	if err := r.checkInput(input, output); err != nil {
		r.logger.Info("skip %s: %v", input, err)
		return failure(input, output, err, initial, nil)
	}

	tracker := &notifier{Parser: r.ffmpeg.NewParser(), onChange: onProgress}
	args := BuildArgs(input, output, req, r.ffmpeg.ProgressArgs())

	proc, err := r.ffmpeg.New(ffmpeg.ProcessConfig{
		Reference:    filepath.Base(input),
		Args:         args,
		StaleTimeout: r.staleTimeout,
		Parser:       tracker,
		Logger:       r.logger,
		OnStateChange: func(from, to string) {
			r.logger.Debug("%s: %s -> %s", input, from, to)
		},
	})
	if err != nil {
		return failure(input, output, fmt.Errorf("%w: %w", ErrLaunch, err), initial, nil)
	}
	tracker.proc = proc

	r.logger.Info("converting %s -> %s", input, output)
	err = proc.Run(ctx)
	log := tracker.Log()
	usage := Usage{PID: proc.Status().PID}

	if err == nil {
		final := tracker.Finish(true)
		tracker.notify(final)
		r.logger.Info("converted %s -> %s", input, output)
		return Result{
			Input:    input,
			Output:   output,
			Status:   StatusSucceeded,
			Success:  true,
			Progress: final,
			Usage:    usage,
			Log:      log,
		}
	}

	final := tracker.Finish(false)
	switch {
	case errors.Is(err, process.ErrStart):
		err = fmt.Errorf("%w: %w", ErrLaunch, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	case errors.Is(err, process.ErrStale):
		err = fmt.Errorf("%w: %w", ErrStalled, err)
	default:
		if tail := diagnosticTail(log, errorTailLines); tail != "" {
			err = fmt.Errorf("%w: %w: %s", ErrEncoding, err, tail)
		} else {
			err = fmt.Errorf("%w: %w", ErrEncoding, err)
		}
	}
	r.logger.Error("converting %s failed: %v", input, err)
	res := failure(input, output, err, final, log)
	res.Usage = usage
	return res
}

func (r *Runner) checkInput(input, output string) error {
	if !r.ffmpeg.ValidateInput(input) {
		return fmt.Errorf("%w: input %s is not allowed", ErrInvalidRequest, input)
	}
	info, err := os.Stat(input)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: input file does not exist: %s", ErrInvalidRequest, input)
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: input is a directory: %s", ErrInvalidRequest, input)
	}
	if filepath.Clean(input) == filepath.Clean(output) {
		return fmt.Errorf("%w: output would overwrite input %s", ErrInvalidRequest, input)
	}
	return nil
}

func failure(input, output string, err error, p parse.Progress, log []process.Line) Result {
	status := StatusFailed
	if errors.Is(err, ErrCancelled) {
		status = StatusCancelled
	}
	return Result{
		Input:    input,
		Output:   output,
		Status:   status,
		Error:    err.Error(),
		Err:      err,
		Progress: p,
		Log:      log,
	}
}

func diagnosticTail(log []process.Line, n int) string {
	var tail []string
	for i := len(log) - 1; i >= 0 && len(tail) < n; i-- {
		if s := strings.TrimSpace(log[i].Data); s != "" {
			tail = append([]string{s}, tail...)
		}
	}
	return strings.Join(tail, "; ")
}

// notifier forwards progress changes from the wrapped parser.
type notifier struct {
	parse.Parser
	onChange func(parse.Progress, Usage)
	proc     process.Process

	mu   sync.Mutex
	last parse.Progress
}

func (n *notifier) Parse(line string) uint64 {
	v := n.Parser.Parse(line)
	n.notify(n.Parser.Progress())
	return v
}

func (n *notifier) notify(p parse.Progress) {
	if n.onChange == nil {
		return
	}
	n.mu.Lock()
	changed := p.Phase != n.last.Phase || p.Percent != n.last.Percent || p.Position != n.last.Position
	if changed {
		n.last = p
	}
	n.mu.Unlock()
	if changed {
		n.onChange(p, n.usage())
	}
}

func (n *notifier) usage() Usage {
	if n.proc == nil {
		return Usage{}
	}
	st := n.proc.Status()
	if !n.proc.IsRunning() {
		return Usage{PID: st.PID}
	}
	return Usage{PID: st.PID, CPU: st.CPU, Memory: st.Memory}
}
