package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocv.io/x/gocv"

	api "github.com/etesami/manual-lock-tracker/api"
	"github.com/etesami/manual-lock-tracker/pkg/dnn"
	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
	"github.com/etesami/manual-lock-tracker/svc-tracker/internal"
	"github.com/etesami/manual-lock-tracker/svc-tracker/internal/vision"
)

func main() {
	log.Printf("-----SETUP-----")

	cfg, err := internal.LoadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get working directory: %v", err)
	}
	prompter := internal.NewPrompter(os.Stdin, os.Stdout, wd)

	// Video source selection
	source := cfg.VideoSource
	if source == "" {
		if source, err = prompter.SelectSource(); err != nil {
			log.Fatalf("Could not obtain video source: %v", err)
		}
	}
	capture, err := vision.OpenCapture(source)
	if err != nil {
		log.Fatalf("Could not obtain video source. Exiting. (%v)", err)
	}
	width, height := capture.Size()

	// Targeter size selection
	var preset internal.Preset
	if cfg.BoxSize != "" {
		preset = internal.ResolvePreset(cfg.BoxSize)
	} else if preset, err = prompter.SelectPreset(); err != nil {
		capture.Release()
		log.Fatalf("Could not read targeter size: %v", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	m := metric.RegisterMetrics(reg, nil, cfg.ProcTimeBuckets, cfg.RttTimeBuckets)
	var metricServer *http.Server
	if cfg.MetricPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%s", cfg.MetricAddr, cfg.MetricPort),
			Handler: mux,
		}
		go func() {
			log.Printf("Starting metrics server on %s\n", metricServer.Addr)
			if err := metricServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("ListenAndServe(): %v", err)
			}
		}()
	}

	tracker := internal.NewTracker(cfg.Params, internal.NewTargeter(width, height, preset, cfg.MoveStep))

	display, err := vision.NewDisplay(cfg.ShowWindow, cfg.OutputPath, capture.FPS(), width, height)
	if err != nil {
		capture.Release()
		log.Fatalf("Failed to set up display: %v", err)
	}

	// Detector backend is resolved once, before the loop
	var detector internal.Detector[gocv.Mat]
	done := make(chan struct{})
	session := internal.NewSession[gocv.Mat](capture, nil, display, display, tracker)
	switch cfg.DetectorMode {
	case internal.DetectorModeRemote:
		clientRef := &atomic.Value{}
		targetSvc := api.Service{
			Address: cfg.RemoteDetectorHost,
			Port:    cfg.RemoteDetectorPort,
		}
		go utils.MonitorConnection(targetSvc, clientRef, 5*time.Second, done)
		detector = &vision.RemoteDetector{
			ClientRef: clientRef,
			SourceId:  source,
			SessionId: session.Id,
			Metric:    m,
		}
	default:
		dnnCfg := dnn.DefaultConfig(cfg.Model)
		dnnCfg.InputWidth = cfg.ImageWidth
		dnnCfg.InputHeight = cfg.ImageHeight
		d, err := dnn.New(dnnCfg)
		if err != nil {
			display.Close()
			capture.Release()
			log.Fatalf("Failed to load detector: %v", err)
		}
		defer d.Close()
		log.Printf("Detector [%s] loaded on [%s]", cfg.Model, d.Backend().Name)
		detector = vision.LocalDetector{Detector: d}
	}
	session.Detector = detector
	session.Metric = m
	session.LogFrames = cfg.LogFrames

	var store *internal.RecStore
	if cfg.JournalPath != "" {
		if store, err = internal.OpenRecStore(cfg.JournalPath); err != nil {
			log.Printf("Track journal disabled: %v", err)
		} else {
			defer store.Close()
			if err := store.StartSession(session.Id, source, width, height, time.Now()); err != nil {
				log.Printf("Error starting journal session: %v", err)
			}
			session.Recorder = store
		}
	}

	log.Printf("Configuration: source=%s size=%dx%d targeter=%s detector=%s output=%q journal=%q",
		source, width, height, preset, cfg.DetectorMode, cfg.OutputPath, cfg.JournalPath)

	if cfg.WaitStart {
		if err := prompter.WaitForStart(); err != nil {
			log.Printf("No start confirmation (%v), starting anyway", err)
		}
	}

	// SIGINT/SIGTERM stop the loop at the next tick
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := session.Run(ctx)
	close(done)

	if store != nil {
		if err := store.EndSession(summary, time.Now()); err != nil {
			log.Printf("Error ending journal session: %v", err)
		}
	}
	if metricServer != nil {
		if err := metricServer.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down server: %v\n", err)
		}
	}
	log.Printf("Tracker shut down gracefully\n")
}
