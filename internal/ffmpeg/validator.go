// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator decides whether a path may be handed to the encoder
type Validator interface {
	IsValid(path string) bool
}

type validator struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator creates a new Validator. Block wins over allow; with no
// allow expressions everything not blocked passes. Empty expressions are
// ignored.
func NewValidator(allow, block []string) (Validator, error) {
	v := &validator{}
	var err error

	if v.allow, err = compile("allow", allow); err != nil {
		return nil, err
	}
	if v.block, err = compile("block", block); err != nil {
		return nil, err
	}
	return v, nil
}

func compile(kind string, exps []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exps {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid %s expression '%s': %w", kind, exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (v *validator) IsValid(path string) bool {
	for _, e := range v.block {
		if e.MatchString(path) {
			return false
		}
	}
	if len(v.allow) == 0 {
		return true
	}
	for _, e := range v.allow {
		if e.MatchString(path) {
			return true
		}
	}
	return false
}
