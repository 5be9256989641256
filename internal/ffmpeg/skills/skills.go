// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

// Package skills detects what the installed encoder can do.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Codec represents a codec with its encoders
type Codec struct {
	ID       string
	Name     string
	Encoders []string
}

// Format represents a muxer
type Format struct {
	ID   string
	Name string
}

// Filter represents a supported filter
type Filter struct {
	ID   string
	Name string
}

// Skills are the detected capabilities of FFmpeg
type Skills struct {
	Version string
	Video   []Codec
	Muxers  []Format
	Filters []Filter
}

// HasEncoder reports whether any video codec lists the named encoder.
func (s Skills) HasEncoder(name string) bool {
	for _, c := range s.Video {
		for _, e := range c.Encoders {
			if e == name {
				return true
			}
		}
	}
	return false
}

// HasFilter reports whether the named filter is available.
func (s Skills) HasFilter(name string) bool {
	for _, f := range s.Filters {
		if f.ID == name {
			return true
		}
	}
	return false
}

// Known is false when the codec listing came back empty, e.g. from a
// wrapper binary. Availability checks are meaningless then.
func (s Skills) Known() bool {
	return len(s.Video) > 0
}

var (
	reVersion = regexp.MustCompile(`^ffmpeg version ([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reCodec   = regexp.MustCompile(`^\s([D.])([E.])([VAS]).{3} ([0-9A-Za-z_]+)\s+(.*?)(?:\(decoders:([^\)]+)\))?\s?(?:\(encoders:([^\)]+)\))?$`)
	reMuxer   = regexp.MustCompile(`^\s([D ])([E ])[d ]?\s+([0-9A-Za-z_,]+)\s+(.*?)$`)
	reFilter  = regexp.MustCompile(`^\s[TSC.]{3} ([0-9A-Za-z_]+)\s+(?:\S+)\s+(.*)?$`)
)

// New runs the binary with its listing flags and collects the results.
// Only a missing version is fatal.
func New(binary string) (Skills, error) {
	out, err := run(binary, "-version")
	if err != nil {
		return Skills{}, fmt.Errorf("can't run %s -version: %w", binary, err)
	}
	version := parseVersion(out)
	if version == "" {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}

	s := Skills{Version: version}
	if out, err := run(binary, "-codecs"); err == nil {
		s.Video = parseCodecs(out)
	}
	if out, err := run(binary, "-formats"); err == nil {
		s.Muxers = parseMuxers(out)
	}
	if out, err := run(binary, "-filters"); err == nil {
		s.Filters = parseFilters(out)
	}
	return s, nil
}

func run(binary string, flag string) ([]byte, error) {
	cmd := exec.Command(binary, "-hide_banner", flag)
	if flag == "-version" {
		cmd = exec.Command(binary, flag)
	}
	cmd.Env = []string{}
	return cmd.Output()
}

func parseVersion(data []byte) string {
	m := reVersion.FindSubmatch(data)
	if m == nil {
		return ""
	}
	v := string(m[1])
	if len(m[2]) == 0 {
		v += ".0"
	}
	return v
}

func parseCodecs(data []byte) []Codec {
	var video []Codec
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := reCodec.FindStringSubmatch(scanner.Text())
		if m == nil || m[3] != "V" || m[2] != "E" {
			continue
		}
		c := Codec{ID: m[4], Name: strings.TrimSpace(m[5])}
		if len(m[7]) == 0 {
			c.Encoders = []string{m[4]}
		} else {
			c.Encoders = strings.Fields(m[7])
		}
		video = append(video, c)
	}
	return video
}

func parseMuxers(data []byte) []Format {
	var muxers []Format
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := reMuxer.FindStringSubmatch(scanner.Text())
		if m == nil || m[2] != "E" {
			continue
		}
		for _, id := range strings.Split(m[3], ",") {
			muxers = append(muxers, Format{ID: id, Name: m[4]})
		}
	}
	return muxers
}

func parseFilters(data []byte) []Filter {
	var filters []Filter
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := reFilter.FindStringSubmatch(scanner.Text()); m != nil {
			filters = append(filters, Filter{ID: m[1], Name: strings.TrimSpace(m[2])})
		}
	}
	return filters
}
