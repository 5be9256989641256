// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package skills

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const codecsOutput = `Codecs:
 D..... = Decoding supported
 .E.... = Encoding supported
 ..V... = Video codec
 -------
 DEV.L. av1                  Alliance for Open Media AV1 (decoders: libdav1d libaom-av1 av1 ) (encoders: libaom-av1 libsvtav1 )
 DEV..S gif                  CompuServe GIF (Graphics Interchange Format)
 DEVIL. h264                 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (encoders: libx264 libx264rgb h264_vaapi )
 D.V.L. h263i                Intel H.263
 DEA.L. aac                  AAC (Advanced Audio Coding)
 DEV.L. webp                 WebP (encoders: libwebp_anim libwebp )
`

const formatsOutput = `File formats:
 D. = Demuxing supported
 .E = Muxing supported
 --
 D  aac             raw ADTS AAC (Advanced Audio Coding)
  E gif             CompuServe Graphics Interchange Format (GIF)
 DE matroska,webm   Matroska / WebM
  E mp4             MP4 (MPEG-4 Part 14)
`

const filtersOutput = `Filters:
  T.. = Timeline support
  ...
 ... fps               V->V       Force constant framerate.
 T.C scale             V->V       Scale the input video size and/or convert the image format.
`

func TestParseVersion(t *testing.T) {
	tests := map[string]string{
		"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023": "6.1.1",
		"ffmpeg version 7.0 Copyright (c) 2000-2024":            "7.0.0",
		"ffmpeg version n6.1 Copyright":                          "",
		"avconv version 12":                                      "",
	}
	for in, want := range tests {
		if got := parseVersion([]byte(in)); got != want {
			t.Errorf("parseVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCodecs(t *testing.T) {
	codecs := parseCodecs([]byte(codecsOutput))

	s := Skills{Video: codecs}
	for _, enc := range []string{"libaom-av1", "libsvtav1", "gif", "libx264", "libwebp"} {
		if !s.HasEncoder(enc) {
			t.Errorf("missing encoder %s in %+v", enc, codecs)
		}
	}
	for _, enc := range []string{"aac", "h263i", "libdav1d"} {
		if s.HasEncoder(enc) {
			t.Errorf("unexpected encoder %s", enc)
		}
	}
	if !s.Known() {
		t.Error("skills should be known")
	}
}

func TestParseMuxers(t *testing.T) {
	muxers := parseMuxers([]byte(formatsOutput))

	got := map[string]bool{}
	for _, m := range muxers {
		got[m.ID] = true
	}
	for _, id := range []string{"gif", "matroska", "webm", "mp4"} {
		if !got[id] {
			t.Errorf("missing muxer %s in %+v", id, muxers)
		}
	}
	if got["aac"] {
		t.Error("aac is demux only")
	}
}

func TestParseFilters(t *testing.T) {
	s := Skills{Filters: parseFilters([]byte(filtersOutput))}
	if !s.HasFilter("fps") || !s.HasFilter("scale") {
		t.Errorf("filters = %+v", s.Filters)
	}
	if s.HasFilter("T") {
		t.Error("legend parsed as filter")
	}
}

func TestNewWithFakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do\n" +
		"  case \"$a\" in\n" +
		"    -version) echo 'ffmpeg version 6.1.1 Copyright'; exit 0;;\n" +
		"    -codecs) echo ' DEV..S gif                  CompuServe GIF'; exit 0;;\n" +
		"  esac\n" +
		"done\n" +
		"exit 0\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Version != "6.1.1" {
		t.Errorf("version = %q", s.Version)
	}
	if !s.HasEncoder("gif") {
		t.Errorf("video = %+v", s.Video)
	}
}

func TestNewRejectsNonFFmpeg(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hello\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected version error")
	}
}
