package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	api "github.com/etesami/manual-lock-tracker/api"
	"github.com/etesami/manual-lock-tracker/pkg/dnn"
	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
	pb "github.com/etesami/manual-lock-tracker/pkg/protoc"
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
	"github.com/etesami/manual-lock-tracker/svc-detector/internal"
)

func main() {

	// Setup the metric service for tracking metrics
	procTimeBuckets := utils.ParseBuckets(os.Getenv("PROC_TIME_BUCKETS"))
	reg := prometheus.NewRegistry()
	m := metric.RegisterMetrics(reg, nil, procTimeBuckets, nil)

	// Local service initialization (detector) to receive frames
	svcHost := os.Getenv("SVC_DETECTOR_HOST")
	svcPort := os.Getenv("SVC_DETECTOR_PORT")
	if svcPort == "" || svcHost == "" {
		log.Fatalf("SVC_DETECTOR_HOST or SVC_DETECTOR_PORT environment variable is not set")
	}
	localSvc := &api.Service{
		Address: svcHost,
		Port:    svcPort,
	}

	cfg := dnn.DefaultConfig(os.Getenv("YOLO_MODEL"))
	if w, err := strconv.Atoi(os.Getenv("IMAGE_WIDTH")); err == nil {
		cfg.InputWidth = w
	}
	if h, err := strconv.Atoi(os.Getenv("IMAGE_HEIGHT")); err == nil {
		cfg.InputHeight = h
	}
	if b := os.Getenv("DNN_BACKEND"); b != "" {
		cfg.Backend = b
	}
	detector, err := dnn.New(cfg)
	if err != nil {
		log.Fatalf("Failed to load detector: %v", err)
	}
	defer detector.Close()
	log.Printf("Detector [%s] loaded on [%s]", cfg.Model, detector.Backend().Name)

	// We listen on all interfaces
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", localSvc.Port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := &internal.Server{
		Detector: detector,
		Metric:   m,
	}
	grpcServer := grpc.NewServer()
	pb.RegisterDetectorServer(grpcServer, s)

	go func() {
		log.Printf("starting gRPC server on port %s:%s\n", localSvc.Address, localSvc.Port)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	metricAddr := os.Getenv("METRIC_ADDR")
	metricPort := os.Getenv("METRIC_PORT")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", metricAddr, metricPort),
		Handler: mux,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting metrics server on %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// Set up channel to listen for interrupt or terminate signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan // Wait for signal
	log.Printf("Received shutdown signal\n")
	grpcServer.GracefulStop() // Stop the gRPC server gracefully
	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("Error shutting down server: %v\n", err)
	}
	log.Printf("Server shut down gracefully\n")
}
