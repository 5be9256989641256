// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package task

import (
	"context"
	"sync"
	"time"

	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
	"github.com/ZSC714725/videoconverter/internal/logger"
	"github.com/ZSC714725/videoconverter/internal/process"
)

const subscriberBuffer = 64

// Status of a whole batch
type Status string

const (
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// JobState is the latest known state of one job in a batch
type JobState struct {
	Index    int
	Input    string
	Output   string
	Status   convert.Status
	Progress parse.Progress
	Usage    convert.Usage
	Error    string
	Log      []process.Line
}

// Snapshot is a consistent copy of a batch's state
type Snapshot struct {
	ID         string
	Request    convert.Request
	Status     Status
	Jobs       []JobState
	Succeeded  int
	Failed     int
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Batch is the handle for a submitted request. All methods are safe for
// concurrent use.
type Batch struct {
	ID        string
	Request   convert.Request
	CreatedAt time.Time

	mu         sync.RWMutex
	jobs       []JobState
	results    []convert.Result
	finishedAt time.Time
	subs       map[int]chan convert.Update
	nextSub    int

	cancel context.CancelFunc
	done   chan struct{}
}

func newBatch(id string, req convert.Request) *Batch {
	b := &Batch{
		ID:        id,
		Request:   req,
		CreatedAt: time.Now(),
		jobs:      make([]JobState, len(req.Inputs)),
		subs:      make(map[int]chan convert.Update),
		done:      make(chan struct{}),
		cancel:    func() {},
	}
	for i, in := range req.Inputs {
		b.jobs[i] = JobState{
			Index:    i,
			Input:    in,
			Output:   convert.OutputPath(in, req.Format),
			Status:   convert.StatusPending,
			Progress: parse.Progress{Phase: parse.PhaseAwaitingDuration},
		}
	}
	return b
}

func (b *Batch) run(ctx context.Context, runner *convert.Runner, log logger.Logger) {
	log.Info("batch %s: %d input(s) -> %s", b.ID, len(b.Request.Inputs), b.Request.Format)

	results, err := runner.Run(ctx, b.Request, b.apply)
	if err != nil {
		// Submit validates first, so this only happens on a programming error
		log.Error("batch %s: %v", b.ID, err)
	}

	b.finish(results)

	s := b.Snapshot()
	log.Info("batch %s %s: %d succeeded, %d failed", b.ID, s.Status, s.Succeeded, s.Failed)
}

// finish stores the results, closes every subscription and marks the
// batch done. results are in input order.
func (b *Batch) finish(results []convert.Result) {
	b.mu.Lock()
	b.results = results
	for i, r := range results {
		if i < len(b.jobs) {
			b.jobs[i].Log = r.Log
		}
	}
	b.finishedAt = time.Now()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	close(b.done)
}

// apply records an update and fans it out. A subscriber that falls behind
// misses updates; Snapshot always has the latest state.
func (b *Batch) apply(u convert.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Index < 0 || u.Index >= len(b.jobs) {
		return
	}
	j := &b.jobs[u.Index]
	j.Status = u.Status
	j.Output = u.Output
	j.Progress = u.Progress
	j.Usage = u.Usage
	j.Error = u.Error

	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe returns a channel receiving updates until the batch finishes,
// when it is closed. The returned func unsubscribes.
func (b *Batch) Subscribe() (<-chan convert.Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribe()
}

// Watch returns the current state together with a subscription that
// carries every update after it.
func (b *Batch) Watch() (Snapshot, <-chan convert.Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, unsubscribe := b.subscribe()
	return b.snapshot(), ch, unsubscribe
}

func (b *Batch) subscribe() (<-chan convert.Update, func()) {
	ch := make(chan convert.Update, subscriberBuffer)
	if !b.finishedAt.IsZero() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				close(c)
				delete(b.subs, id)
			}
		})
	}
}

// Snapshot returns a copy of the current state
func (b *Batch) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot()
}

func (b *Batch) snapshot() Snapshot {
	s := Snapshot{
		ID:         b.ID,
		Request:    b.Request.Clone(),
		Jobs:       make([]JobState, len(b.jobs)),
		CreatedAt:  b.CreatedAt,
		FinishedAt: b.finishedAt,
	}
	copy(s.Jobs, b.jobs)

	cancelled := 0
	for _, j := range s.Jobs {
		switch j.Status {
		case convert.StatusSucceeded:
			s.Succeeded++
		case convert.StatusFailed:
			s.Failed++
		case convert.StatusCancelled:
			cancelled++
		}
	}

	// a cancel that arrives after the last job ended changes nothing
	switch {
	case b.finishedAt.IsZero():
		s.Status = StatusRunning
	case cancelled > 0:
		s.Status = StatusCancelled
	default:
		s.Status = StatusFinished
	}
	return s
}

// Done is closed when every job has reached a terminal state
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Results returns the per-input results, or nil while the batch is running
func (b *Batch) Results() []convert.Result {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.finishedAt.IsZero() {
		return nil
	}
	return append([]convert.Result(nil), b.results...)
}

// Wait blocks until the batch finishes or ctx is done
func (b *Batch) Wait(ctx context.Context) ([]convert.Result, error) {
	select {
	case <-b.done:
		return b.Results(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the running job and skips the rest. It returns ErrFinished
// if there is nothing left to cancel.
func (b *Batch) Cancel() error {
	b.mu.Lock()
	if !b.finishedAt.IsZero() {
		b.mu.Unlock()
		return ErrFinished
	}
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	return nil
}

// IsRunning returns whether the batch still has work to do
func (b *Batch) IsRunning() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}
