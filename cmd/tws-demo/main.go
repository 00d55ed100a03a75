// Package main runs a demo server. Requests under /thread are handed to the
// worker pool; requests under /recurse ask for a second hand-off and get 508.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FumingPower3925/tws/pkg/tws"
)

func demoHandler(req *tws.Request, resp *tws.Response) tws.Status {
	path := req.Path()
	switch {
	case strings.HasPrefix(path, "/recurse"):
		return tws.StatusSwitchThread
	case strings.HasPrefix(path, "/thread") && !req.InPool():
		return tws.StatusSwitchThread
	case path == "/favicon.ico":
		return tws.StatusNotFound
	}

	var body string
	if req.InPool() {
		body = "<html><body><h1>IN THREAD!</h1><h1>Path: " + path +
			"</h1><h3>" + string(req.Body()) + "</h3></body></html>\n"
	} else {
		body = "<html><body><h1>Type: " + req.Method().String() + "    Path: " + path +
			"</h1><h3>" + string(req.Body()) + "</h3></body></html>\n"
	}
	resp.SetBodyString(body)
	resp.SetHeader("Server", "TinyWebServer Demo 1.0")
	resp.SetHeader("Content-Type", "text/html")
	return tws.StatusOK
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func main() {
	defaults := tws.DefaultConfig()

	port := flag.Int("port", envInt("TWS_PORT", 8000), "listening port")
	workers := flag.Int("workers", envInt("TWS_WORKERS", defaults.Workers), "worker pool size (0 disables the pool)")
	keepAlive := flag.Bool("keepalive", envBool("TWS_KEEPALIVE", defaults.KeepAlive), "reuse connections")
	compression := flag.Bool("compress", envBool("TWS_COMPRESS", false), "enable deflate/br responses")
	metricsAddr := flag.String("metrics-addr", envOr("TWS_METRICS_ADDR", ""), "address for the Prometheus endpoint (empty disables it)")
	debug := flag.Bool("debug", envBool("TWS_DEBUG", false), "debug logging")
	flag.Parse()

	logger, err := zap.NewProduction()
	if *debug {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	config := defaults
	config.Addr = ":" + strconv.Itoa(*port)
	config.Workers = *workers
	config.KeepAlive = *keepAlive
	config.Compression = *compression
	config.Logger = logger

	handler := tws.Chain(
		tws.Health(),
		tws.RequestID(),
		tws.Logger(logger.Named("access")),
		tws.Tracing(),
	)(tws.HandlerFunc(demoHandler))

	server := tws.New(config).Handler(handler)
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	logger.Info("try 'curl http://localhost" + config.Addr + "/xxx/' or '/thread/xxx/'")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-server.Fatal():
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	if err := server.Err(); err != nil {
		logger.Error("server stopped with a configuration error", zap.Error(err))
		os.Exit(1)
	}
}
