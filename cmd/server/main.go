package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"billparse/internal/config"
	"billparse/internal/extract"
	_ "billparse/internal/extract/anthropic"
	_ "billparse/internal/extract/gemini"
	_ "billparse/internal/extract/openai"
	"billparse/internal/fetch"
	"billparse/internal/handler"
	"billparse/internal/port"
	"billparse/internal/raster"
	"billparse/internal/router"
	"billparse/internal/service"
	s3storage "billparse/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(&cfg.Log)

	// S3 is optional; the fetcher only needs it for s3:// document references.
	var storage port.ObjectStorage
	if cfg.S3.AccessKey != "" || cfg.S3.Endpoint != "" {
		storage, err = s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	}

	fetcher := fetch.NewFetcher(&cfg.Fetch, storage)
	rasterizer := raster.NewRasterizer(&cfg.Raster)

	extractor, err := extract.NewExtractor(&cfg.Extract)
	if err != nil {
		return fmt.Errorf("failed to initialize extractor: %w", err)
	}

	extractSvc := service.NewExtractService(fetcher, rasterizer, extractor, cfg.Extract)

	extractH := handler.NewExtractHandler(extractSvc, &cfg.Fetch)
	healthH := handler.NewHealthHandler(&cfg.Extract)

	r := router.Setup(cfg, extractH, healthH)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logrus.WithField("addr", cfg.Server.Port).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func setupLogging(cfg *config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
