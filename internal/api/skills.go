// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package api

import (
	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/skills"
)

// SkillsResponse for API
type SkillsResponse struct {
	FFmpeg struct {
		Version string `json:"version"`
	} `json:"ffmpeg"`

	Filters []SkillsItem `json:"filter"`

	Codecs struct {
		Video []SkillsCodec `json:"video"`
	} `json:"codecs"`

	Formats struct {
		Muxers []SkillsItem `json:"muxers"`
	} `json:"formats"`
}

type SkillsItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SkillsCodec struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Encoders []string `json:"encoders"`
}

func skillsToAPI(s skills.Skills) SkillsResponse {
	resp := SkillsResponse{}

	resp.FFmpeg.Version = s.Version

	resp.Filters = make([]SkillsItem, len(s.Filters))
	for i, f := range s.Filters {
		resp.Filters[i] = SkillsItem{ID: f.ID, Name: f.Name}
	}

	resp.Codecs.Video = make([]SkillsCodec, len(s.Video))
	for i, c := range s.Video {
		resp.Codecs.Video[i] = SkillsCodec{ID: c.ID, Name: c.Name, Encoders: c.Encoders}
	}

	resp.Formats.Muxers = make([]SkillsItem, len(s.Muxers))
	for i, f := range s.Muxers {
		resp.Formats.Muxers[i] = SkillsItem{ID: f.ID, Name: f.Name}
	}

	return resp
}

// formatsToAPI lists the output formats. A format without a dedicated
// encoder uses the muxer default and is always available.
func formatsToAPI(s skills.Skills) []FormatInfo {
	out := make([]FormatInfo, 0, len(convert.Formats()))
	for _, f := range convert.Formats() {
		info := FormatInfo{
			ID:        string(f),
			Extension: "." + string(f),
			Encoder:   f.Encoder(),
			Bitrate:   f.HonoursBitrate(),
		}
		if len(info.Encoder) == 0 {
			available := true
			info.Available = &available
		} else if s.Known() {
			available := s.HasEncoder(info.Encoder)
			info.Available = &available
		}
		out = append(out, info)
	}
	return out
}
