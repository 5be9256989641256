// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
	"github.com/ZSC714725/videoconverter/internal/testsupport"
)

func newStore(t *testing.T) Store {
	t.Helper()
	ff, err := ffmpeg.New(ffmpeg.Config{Binary: testsupport.FakeFFmpeg(t)})
	if err != nil {
		t.Fatalf("ffmpeg.New: %v", err)
	}
	s := NewStore(convert.NewRunner(convert.Config{FFmpeg: ff}), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func wait(t *testing.T, b *Batch) []convert.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := b.Wait(ctx)
	if err != nil {
		t.Fatalf("batch %s did not finish: %v", b.ID, err)
	}
	return results
}

func TestSubmitInvalid(t *testing.T) {
	s := newStore(t)

	_, err := s.Submit(convert.Request{Format: convert.FormatMP4})
	if !errors.Is(err, convert.ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
	if n := len(s.List("")); n != 0 {
		t.Errorf("stored %d batches", n)
	}
}

func TestSubmitBatch(t *testing.T) {
	s := newStore(t)
	dir := t.TempDir()
	good := testsupport.WriteInput(t, dir, "good.mov")
	bad := testsupport.WriteInput(t, dir, "bad_fail.mov")

	b, err := s.Submit(convert.Request{Inputs: []string{bad, good}, Format: convert.FormatMKV})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(b.ID) == 0 {
		t.Fatal("empty batch id")
	}

	results := wait(t, b)
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Success || !results[1].Success {
		t.Errorf("success = %v, %v", results[0].Success, results[1].Success)
	}

	snap := b.Snapshot()
	if snap.Status != StatusFinished {
		t.Errorf("status = %s", snap.Status)
	}
	if snap.Succeeded != 1 || snap.Failed != 1 {
		t.Errorf("succeeded %d failed %d", snap.Succeeded, snap.Failed)
	}
	if snap.Jobs[0].Status != convert.StatusFailed || snap.Jobs[0].Error == "" {
		t.Errorf("job 0 = %+v", snap.Jobs[0])
	}
	if len(snap.Jobs[0].Log) == 0 {
		t.Error("failed job has no log")
	}
	if j := snap.Jobs[1]; j.Status != convert.StatusSucceeded || j.Progress.Percent != 100 || j.Progress.Phase != parse.PhaseDone {
		t.Errorf("job 1 = %+v", j)
	}
	if snap.FinishedAt.IsZero() {
		t.Error("finished time not set")
	}

	got, err := s.Get(b.ID)
	if err != nil || got != b {
		t.Errorf("Get = %v, %v", got, err)
	}
}

func TestSubscribe(t *testing.T) {
	s := newStore(t)
	in := testsupport.WriteInput(t, t.TempDir(), "clip_slow.mov")

	b, err := s.Submit(convert.Request{Inputs: []string{in}, Format: convert.FormatMP4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	updates, unsubscribe := b.Subscribe()
	defer unsubscribe()

	var last convert.Update
	var n int
	timeout := time.After(10 * time.Second)
loop:
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				break loop
			}
			if u.Progress.Percent < last.Progress.Percent {
				t.Errorf("percent went from %v to %v", last.Progress.Percent, u.Progress.Percent)
			}
			last = u
			n++
		case <-timeout:
			t.Fatal("updates channel not closed")
		}
	}

	if n == 0 {
		t.Fatal("no updates")
	}
	if last.Status != convert.StatusSucceeded || last.Progress.Percent != 100 {
		t.Errorf("last update = %+v", last)
	}

	// after the batch is done subscribers get a closed channel
	ch, _ := b.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("late subscriber channel is open")
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newStore(t)
	in := testsupport.WriteInput(t, t.TempDir(), "clip_hang.mov")

	b, err := s.Submit(convert.Request{Inputs: []string{in}, Format: convert.FormatMP4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	updates, unsubscribe := b.Subscribe()
	unsubscribe()
	unsubscribe()

	for range updates {
	}
	if !b.IsRunning() {
		t.Error("batch stopped by unsubscribe")
	}
}

func TestCancel(t *testing.T) {
	s := newStore(t)
	dir := t.TempDir()
	hang := testsupport.WriteInput(t, dir, "clip_hang.mov")
	next := testsupport.WriteInput(t, dir, "next.mov")

	b, err := s.Submit(convert.Request{Inputs: []string{hang, next}, Format: convert.FormatWebP})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for b.Snapshot().Jobs[0].Status != convert.StatusConverting {
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Cancel(b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	results := wait(t, b)

	for i, r := range results {
		if r.Status != convert.StatusCancelled {
			t.Errorf("job %d status = %s", i, r.Status)
		}
	}
	if got := testsupport.Args(t, convert.OutputPath(next, convert.FormatWebP)); got != nil {
		t.Errorf("second job was launched: %v", got)
	}
	if st := b.Snapshot().Status; st != StatusCancelled {
		t.Errorf("status = %s", st)
	}
	if err := s.Cancel(b.ID); !errors.Is(err, ErrFinished) {
		t.Errorf("second Cancel = %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := newStore(t)
	dir := t.TempDir()
	done := testsupport.WriteInput(t, dir, "done.mov")
	hang := testsupport.WriteInput(t, dir, "clip_hang.mov")

	first, err := s.Submit(convert.Request{Inputs: []string{done}, Format: convert.FormatMP4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wait(t, first)

	second, err := s.Submit(convert.Request{Inputs: []string{hang}, Format: convert.FormatMP4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	all := s.List("")
	if len(all) != 2 || all[0] != first || all[1] != second {
		t.Fatalf("List = %v", all)
	}
	if got := s.List(StatusFinished); len(got) != 1 || got[0] != first {
		t.Errorf("finished = %v", got)
	}
	if got := s.List(StatusRunning); len(got) != 1 || got[0] != second {
		t.Errorf("running = %v", got)
	}

	if err := s.Delete(second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if second.IsRunning() {
		t.Error("deleted batch still running")
	}
	if _, err := s.Get(second.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get deleted = %v", err)
	}
	if err := s.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing = %v", err)
	}
}

func TestShutdown(t *testing.T) {
	s := newStore(t)
	in := testsupport.WriteInput(t, t.TempDir(), "clip_hang.mov")

	b, err := s.Submit(convert.Request{Inputs: []string{in}, Format: convert.FormatMP4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if b.IsRunning() {
		t.Error("batch still running after shutdown")
	}
	if _, err := s.Submit(convert.Request{Inputs: []string{in}, Format: convert.FormatMP4}); !errors.Is(err, ErrShutdown) {
		t.Errorf("Submit after shutdown = %v", err)
	}
}

func TestRunningJobReportsUsage(t *testing.T) {
	s := newStore(t)
	in := testsupport.WriteInput(t, t.TempDir(), "clip_hang.mov")

	b, err := s.Submit(convert.Request{Inputs: []string{in}, Format: convert.FormatMP4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// the duration line arrives before the fake stalls
	deadline := time.Now().Add(5 * time.Second)
	var job JobState
	for {
		job = b.Snapshot().Jobs[0]
		if job.Usage.PID > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("running job has no pid: %+v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != convert.StatusConverting || job.Progress.Phase != parse.PhaseTracking {
		t.Errorf("job = %+v", job)
	}

	if err := b.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	wait(t, b)
	if after := b.Snapshot().Jobs[0]; after.Usage.PID != job.Usage.PID || after.Usage.Memory != 0 {
		t.Errorf("usage after exit = %+v, running pid %d", after.Usage, job.Usage.PID)
	}
}

func TestCancelAfterLastJobFinished(t *testing.T) {
	req := convert.Request{Inputs: []string{"a.mov"}, Format: convert.FormatMP4}
	b := newBatch("late-cancel", req)
	b.apply(convert.Update{Index: 0, Input: "a.mov", Output: "a.mp4", Status: convert.StatusSucceeded})

	// the runner has returned but the batch is not marked done yet
	if err := b.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	b.finish([]convert.Result{{Input: "a.mov", Output: "a.mp4", Status: convert.StatusSucceeded, Success: true}})

	if st := b.Snapshot().Status; st != StatusFinished {
		t.Errorf("status = %s, want %s", st, StatusFinished)
	}
	if err := b.Cancel(); !errors.Is(err, ErrFinished) {
		t.Errorf("Cancel after finish = %v", err)
	}
}
