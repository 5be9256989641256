// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package process

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingParser struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingParser) Parse(line string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, line)
	return 0
}

func (p *recordingParser) ResetStats() {}
func (p *recordingParser) ResetLog() {}
func (p *recordingParser) Log() []Line { return nil }

func (p *recordingParser) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-encoder")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newProcess(t *testing.T, binary string, cfg Config) Process {
	t.Helper()
	cfg.Binary = binary
	if cfg.Sampler == nil {
		cfg.Sampler = NewNullSampler()
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestRunDrainsStderr(t *testing.T) {
	bin := writeScript(t, `printf 'first\nsecond\rthird\r\n' >&2
exit 0
`)
	parser := &recordingParser{}
	p := newProcess(t, bin, Config{Parser: parser})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := parser.Lines()
	want := []string{"first", "second", "third"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}

	st := p.Status()
	if st.State != "finished" {
		t.Errorf("state = %s, want finished", st.State)
	}
	if st.ExitCode != 0 {
		t.Errorf("exit code = %d", st.ExitCode)
	}
	if p.IsRunning() {
		t.Error("process still running")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	bin := writeScript(t, "echo 'boom' >&2\nexit 3\n")
	p := newProcess(t, bin, Config{})

	err := p.Run(context.Background())
	if !errors.Is(err, ErrExit) {
		t.Fatalf("err = %v, want ErrExit", err)
	}
	st := p.Status()
	if st.State != "failed" || st.ExitCode != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestRunStartFailure(t *testing.T) {
	parser := &recordingParser{}
	p := newProcess(t, filepath.Join(t.TempDir(), "missing"), Config{Parser: parser})

	err := p.Run(context.Background())
	if !errors.Is(err, ErrStart) {
		t.Fatalf("err = %v, want ErrStart", err)
	}
	if p.Status().State != "failed" {
		t.Errorf("state = %s", p.Status().State)
	}
	if len(parser.Lines()) != 1 {
		t.Errorf("start error not passed to parser: %q", parser.Lines())
	}
}

func TestRunOnlyOnce(t *testing.T) {
	bin := writeScript(t, "exit 0\n")
	p := newProcess(t, bin, Config{})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("second Run should fail")
	}
}

func TestRunCancelled(t *testing.T) {
	bin := writeScript(t, "echo started >&2\nexec /bin/sleep 5\n")
	p := newProcess(t, bin, Config{KillTimeout: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("cancel took %s", time.Since(start))
	}
	if p.Status().State != "killed" {
		t.Errorf("state = %s, want killed", p.Status().State)
	}
}

func TestRunAlreadyCancelledContext(t *testing.T) {
	bin := writeScript(t, "exit 0\n")
	p := newProcess(t, bin, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if p.Status().State != "idle" {
		t.Errorf("state = %s, want idle", p.Status().State)
	}
}

func TestRunStale(t *testing.T) {
	bin := writeScript(t, "exec /bin/sleep 5\n")
	p := newProcess(t, bin, Config{
		StaleTimeout: 200 * time.Millisecond,
		KillTimeout:  200 * time.Millisecond,
	})

	err := p.Run(context.Background())
	if !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if p.Status().State != "failed" {
		t.Errorf("state = %s, want failed", p.Status().State)
	}
}

func TestRunStaleNanosecondTimeout(t *testing.T) {
	bin := writeScript(t, "exec /bin/sleep 5\n")
	p := newProcess(t, bin, Config{
		StaleTimeout: 2 * time.Nanosecond,
		KillTimeout:  200 * time.Millisecond,
	})

	if err := p.Run(context.Background()); !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
}

func TestStatusWhileRunning(t *testing.T) {
	bin := writeScript(t, "echo started >&2\nexec /bin/sleep 5\n")
	p, err := New(Config{Binary: bin, KillTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	var st Status
	for {
		st = p.Status()
		if st.State == "running" && st.PID > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("process never reported running: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.CPU < 0 {
		t.Errorf("cpu = %v", st.CPU)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if after := p.Status(); after.PID != st.PID || after.Memory != 0 {
		t.Errorf("status after exit = %+v", after)
	}
}

func TestScanLine(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\nb", []string{"a", "b"}},
		{"\r\r frame=1\rframe=2\r", []string{" frame=1", "frame=2"}},
		{"", nil},
		{"\n\n", nil},
	}

	for _, tt := range tests {
		s := bufio.NewScanner(strings.NewReader(tt.in))
		s.Split(scanLine)
		var got []string
		for s.Scan() {
			got = append(got, s.Text())
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("scanLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
