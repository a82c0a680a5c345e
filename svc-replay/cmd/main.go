package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
	"github.com/etesami/manual-lock-tracker/svc-replay/internal"
)

func main() {
	RTSP_SERVER_HOST := os.Getenv("RTSP_SERVER_HOST")
	RTSP_SERVER_PORT := os.Getenv("RTSP_SERVER_PORT")
	if RTSP_SERVER_HOST == "" || RTSP_SERVER_PORT == "" {
		log.Fatalf("RTSP_SERVER_HOST or RTSP_SERVER_PORT environment variable is not set")
	}

	FILEPATH := os.Getenv("FILEPATH")
	if FILEPATH == "" {
		log.Fatalf("FILEPATH environment variable is not set")
	}
	loop := os.Getenv("LOOP") != "false"

	sentDataBuckets := utils.ParseBuckets(os.Getenv("SENT_DATA_BUCKETS"))
	reg := prometheus.NewRegistry()
	m := metric.RegisterMetrics(reg, sentDataBuckets, nil, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := &internal.ServerHandler{}

	// prevent clients from connecting to the server until the stream is properly set up
	h.Mutex.Lock()

	h.Server = &gortsplib.Server{
		Handler:           h,
		RTSPAddress:       fmt.Sprintf("%s:%s", RTSP_SERVER_HOST, RTSP_SERVER_PORT),
		UDPRTPAddress:     fmt.Sprintf("%s:8000", RTSP_SERVER_HOST),
		UDPRTCPAddress:    fmt.Sprintf("%s:8001", RTSP_SERVER_HOST),
		MulticastIPRange:  "224.1.0.0/16",
		MulticastRTPPort:  8002,
		MulticastRTCPPort: 8003,
	}
	if err := h.Server.Start(); err != nil {
		log.Fatalf("Failed to start RTSP server: %v", err)
	}
	defer h.Server.Close()

	h.Stream = &gortsplib.ServerStream{
		Server: h.Server,
		Desc:   internal.NewDescription(),
	}
	if err := h.Stream.Initialize(); err != nil {
		log.Fatalf("Failed to initialize stream: %v", err)
	}
	defer h.Stream.Close()

	f, err := os.Open(FILEPATH)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", FILEPATH, err)
	}
	defer f.Close()

	replayer := &internal.Replayer{
		Stream: h.Stream,
		Loop:   loop,
		Metric: m,
	}
	routeDone := make(chan error, 1)
	go func() {
		routeDone <- replayer.RouteFrames(ctx, f)
	}()

	// allow clients to connect
	h.Mutex.Unlock()
	log.Printf("server is ready on rtsp://%s/ serving [%s] (loop=%t)", h.Server.RTSPAddress, FILEPATH, loop)

	metricAddr := os.Getenv("METRIC_ADDR")
	metricPort := os.Getenv("METRIC_PORT")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", metricAddr, metricPort),
		Handler: mux,
	}
	go func() {
		log.Printf("Starting metrics server on %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ListenAndServe(): %v", err)
		}
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- h.Server.Wait()
	}()

	select {
	case <-ctx.Done():
		log.Printf("Received shutdown signal\n")
	case err := <-routeDone:
		if err != nil && ctx.Err() == nil {
			log.Printf("Stopped routing frames: %v", err)
		}
	case err := <-serverDone:
		log.Printf("RTSP server stopped: %v", err)
	}

	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("Error shutting down server: %v\n", err)
	}
	log.Printf("Served [%d] access units, shut down gracefully\n", replayer.AccessUnits())
}
