// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package ffmpeg

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/skills"
	"github.com/ZSC714725/videoconverter/internal/logger"
	"github.com/ZSC714725/videoconverter/internal/process"
)

// FFmpeg manages the FFmpeg binary, its skills and per-job processes
type FFmpeg interface {
	New(config ProcessConfig) (process.Process, error)
	NewParser() parse.Parser
	// ProgressArgs are inserted after the input to select the progress mode
	ProgressArgs() []string
	ValidateInput(path string) bool
	Skills() skills.Skills
	ReloadSkills() error
}

// ProcessConfig for creating a process
type ProcessConfig struct {
	// Reference names the job in log lines, usually the input file name
	Reference     string
	Args          []string
	StaleTimeout  time.Duration
	Parser        process.Parser
	Logger        logger.Logger
	OnStart       func(pid int)
	OnStateChange func(from, to string)
}

// Config for FFmpeg
type Config struct {
	Binary         string
	LogLines       int
	Progress       parse.Mode
	ValidatorInput Validator
}

type ffmpeg struct {
	binary      string
	logLines    int
	mode        parse.Mode
	validatorIn Validator
	skills      skills.Skills
	skillsLock  sync.RWMutex
}

// New creates FFmpeg
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}

	f := &ffmpeg{
		binary:   binary,
		logLines: config.LogLines,
		mode:     config.Progress,
	}

	if f.logLines <= 0 {
		f.logLines = 100
	}
	if f.mode == "" {
		f.mode = parse.ModeStats
	}

	if config.ValidatorInput != nil {
		f.validatorIn = config.ValidatorInput
	} else {
		f.validatorIn, _ = NewValidator(nil, nil)
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) New(config ProcessConfig) (process.Process, error) {
	return process.New(process.Config{
		Binary:        f.binary,
		Args:          config.Args,
		StaleTimeout:  config.StaleTimeout,
		Parser:        config.Parser,
		Logger:        wrapLogger(config.Logger, config.Reference),
		OnStart:       config.OnStart,
		OnStateChange: config.OnStateChange,
	})
}

func (f *ffmpeg) NewParser() parse.Parser {
	return parse.New(parse.Config{LogLines: f.logLines, Scanner: f.mode.Scanner()})
}

func (f *ffmpeg) ProgressArgs() []string {
	return f.mode.Args()
}

func (f *ffmpeg) ValidateInput(path string) bool {
	return f.validatorIn.IsValid(path)
}

func (f *ffmpeg) Skills() skills.Skills {
	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return f.skills
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = s
	f.skillsLock.Unlock()
	return nil
}

func wrapLogger(l logger.Logger, reference string) *loggerWrapper {
	prefix := "ffmpeg: "
	if len(reference) > 0 {
		prefix = "ffmpeg[" + reference + "]: "
	}
	return &loggerWrapper{logger: l, prefix: prefix}
}

type loggerWrapper struct {
	logger logger.Logger
	prefix string
}

func (w *loggerWrapper) Info(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Info(w.prefix+format, args...)
	}
}

func (w *loggerWrapper) Error(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Error(w.prefix+format, args...)
	}
}

func (w *loggerWrapper) Debug(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(w.prefix+format, args...)
	}
}
