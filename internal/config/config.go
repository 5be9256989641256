// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultBind     = ":8080"
	defaultFFmpeg   = "ffmpeg"
	defaultLogLines = 100
	defaultProgress = "stats"
	defaultLogLevel = "info"
)

// Config 应用配置
type Config struct {
	Server ServerConfig `yaml:"server"`
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path string `yaml:"path"`
	// LogLines 每个任务保留的 stderr 行数
	LogLines int `yaml:"log_lines"`
	// Progress 进度来源: stats (默认 stderr 统计行) 或 pipe (-progress pipe:2)
	Progress string `yaml:"progress"`
	// StaleTimeout 无进度超时秒数，0 表示不检测
	StaleTimeout uint64      `yaml:"stale_timeout_seconds"`
	Input        InputConfig `yaml:"input"`
}

// InputConfig 输入路径白名单/黑名单（正则）
type InputConfig struct {
	Allow []string `yaml:"allow"`
	Block []string `yaml:"block"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: defaultBind},
		FFmpeg: FFmpegConfig{
			Path:     defaultFFmpeg,
			LogLines: defaultLogLines,
			Progress: defaultProgress,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// Load 从 YAML 文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.fill()

	if cfg.FFmpeg.Progress != "stats" && cfg.FFmpeg.Progress != "pipe" {
		return nil, fmt.Errorf("invalid ffmpeg.progress '%s': want stats or pipe", cfg.FFmpeg.Progress)
	}

	return cfg, nil
}

// 填充空值
func (c *Config) fill() {
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = defaultFFmpeg
	}
	if c.FFmpeg.LogLines <= 0 {
		c.FFmpeg.LogLines = defaultLogLines
	}
	if c.FFmpeg.Progress == "" {
		c.FFmpeg.Progress = defaultProgress
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}
