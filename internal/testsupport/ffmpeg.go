// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

// Package testsupport provides a scripted stand-in for ffmpeg.
package testsupport

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// The fake answers the skills probes and otherwise behaves by the base
// name of its input:
//
//	*fail*   reports a 90s duration, reaches 30s, prints an error, exits 1
//	*hang*, *stall*  report the duration then sleep
//	*slow*   like the default with pauses between stats lines
//	other    90s duration, stats at 45s and 90s, writes the output, exits 0
//
// Every run stores its arguments, one per line, in "<output>.args".
const fakeScript = `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers"
  exit 0
fi
case "$2" in
  -codecs)
    echo " DEV.L. av1                  Alliance for Open Media AV1 (encoders: libaom-av1 )"
    echo " DEV..S gif                  CompuServe GIF (Graphics Interchange Format)"
    exit 0;;
  -formats|-filters) exit 0;;
esac

in=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
done
out="$a"
printf '%s\n' "$@" > "$out.args"

echo "Input #0, mov,mp4,m4a,3gp,3g2,mj2, from '$in':" >&2
echo "  Duration: 00:01:30.00, start: 0.000000, bitrate: 1205 kb/s" >&2

base="${in##*/}"
case "$base" in
  *fail*)
    printf 'frame=  100 fps=0.0 q=28.0 size=     256kB time=00:00:30.00 bitrate= 69.9kbits/s speed=3x\r' >&2
    echo "[mov,mp4,m4a,3gp,3g2,mj2 @ 0x5581] moov atom not found" >&2
    echo "$in: Invalid data found when processing input" >&2
    exit 1;;
  *hang*|*stall*)
    exec /bin/sleep 10;;
  *slow*)
    for t in 00:00:15.00 00:00:30.00 00:00:45.00 00:01:00.00 00:01:15.00; do
      printf 'frame=  100 fps= 30 q=28.0 size=     256kB time=%s bitrate= 69.9kbits/s speed=1x\r' "$t" >&2
      /bin/sleep 0.1
    done;;
esac

printf 'frame=  540 fps= 60 q=28.0 size=    1024kB time=00:00:45.00 bitrate= 186.4kbits/s speed=2x\r' >&2
printf 'frame= 1080 fps= 60 q=-1.0 Lsize=    2048kB time=00:01:30.00 bitrate= 186.4kbits/s speed=2x\n' >&2
: > "$out"
exit 0
`

// FakeFFmpeg writes the fake encoder into a temp dir and returns its path.
// Tests are skipped on Windows.
func FakeFFmpeg(t testing.TB) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(fakeScript), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

// WriteInput creates an empty input file named name under dir.
func WriteInput(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write input %s: %v", path, err)
	}
	return path
}

// Args returns the arguments the fake received for output, or nil if it
// never ran for it.
func Args(t testing.TB, output string) []string {
	t.Helper()
	data, err := os.ReadFile(output + ".args")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read args: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}
