// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ZSC714725/videoconverter/internal/api"
	"github.com/ZSC714725/videoconverter/internal/config"
	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg"
	"github.com/ZSC714725/videoconverter/internal/ffmpeg/parse"
	"github.com/ZSC714725/videoconverter/internal/logger"
	"github.com/ZSC714725/videoconverter/internal/task"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
	}

	bindAddr := cfg.Server.Bind
	if *bind != "" {
		bindAddr = *bind
	}
	ffmpegPath := cfg.FFmpeg.Path
	if *ffmpegBin != "" {
		ffmpegPath = *ffmpegBin
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Log level: %v", err)
	}
	if level != logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logger.New("videoconverter", level)

	mode, err := parse.ParseMode(cfg.FFmpeg.Progress)
	if err != nil {
		log.Fatalf("Progress mode: %v", err)
	}

	validator, err := ffmpeg.NewValidator(cfg.FFmpeg.Input.Allow, cfg.FFmpeg.Input.Block)
	if err != nil {
		log.Fatalf("Input filter: %v", err)
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:         ffmpegPath,
		LogLines:       cfg.FFmpeg.LogLines,
		Progress:       mode,
		ValidatorInput: validator,
	})
	if err != nil {
		log.Fatalf("FFmpeg init: %v", err)
	}
	logger.Info("using ffmpeg %s (%s)", ff.Skills().Version, ffmpegPath)

	runner := convert.NewRunner(convert.Config{
		FFmpeg:       ff,
		Logger:       logger,
		StaleTimeout: time.Duration(cfg.FFmpeg.StaleTimeout) * time.Second,
	})
	store := task.NewStore(runner, logger)
	handler := api.NewHandler(store, ff)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors.Default())
	handler.Register(r.Group("/api/v1"))

	srv := &http.Server{Addr: bindAddr, Handler: r}

	go func() {
		log.Printf("VideoConverter listening on %s", bindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 先结束正在进行的转换，事件流随之关闭，再停止 HTTP 服务
	if err := store.Shutdown(ctx); err != nil {
		logger.Error("conversions did not stop: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown: %v", err)
	}
	log.Printf("VideoConverter stopped")
}
