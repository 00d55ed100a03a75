// Package main ramps up HTTP/1.1 clients against an embedded tws server and
// reports throughput per dispatch path. A connection that closes without a
// response counts as dropped and fails the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/FumingPower3925/tws/pkg/tws"
)

// LoadConfig defines one load run.
type LoadConfig struct {
	Addr           string
	Workers        int
	MaxConnections uint32
	Mode           string // loop, pool or mixed

	RampUpInterval time.Duration
	ClientsPerStep int
	Duration       time.Duration
	RequestTimeout time.Duration
	RequestDelay   time.Duration
}

// LoadResult aggregates what the clients observed.
type LoadResult struct {
	Duration   time.Duration
	MaxClients int
	Total      atomic.Int64
	Successful atomic.Int64
	Dropped    atomic.Int64
	MaxRPS     float64

	mu          sync.Mutex
	statusCodes map[int]int64
	perPath     map[string]int64
}

func (r *LoadResult) record(path string, resp *http.Response, err error) {
	r.Total.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Dropped.Add(1)
		r.statusCodes[0]++
		return
	}
	r.statusCodes[resp.StatusCode]++
	if resp.StatusCode == 200 {
		r.Successful.Add(1)
		r.perPath[path]++
	}
}

// LoadRunner owns the server and the client goroutines of one run.
type LoadRunner struct {
	config  LoadConfig
	server  *tws.Server
	result  *LoadResult
	clients atomic.Int64
	wg      sync.WaitGroup
}

// NewLoadRunner creates a runner for config.
func NewLoadRunner(config LoadConfig) *LoadRunner {
	return &LoadRunner{
		config: config,
		result: &LoadResult{
			statusCodes: make(map[int]int64),
			perPath:     make(map[string]int64),
		},
	}
}

func loadHandler(req *tws.Request, resp *tws.Response) tws.Status {
	if strings.HasPrefix(req.Path(), "/thread") && !req.InPool() {
		return tws.StatusSwitchThread
	}
	resp.SetBodyString("OK")
	return tws.StatusOK
}

// StartServer starts the embedded server and waits until it accepts requests.
func (lr *LoadRunner) StartServer() error {
	config := tws.DefaultConfig()
	config.Addr = lr.config.Addr
	config.Workers = lr.config.Workers
	config.MaxConnections = lr.config.MaxConnections

	lr.server = tws.New(config).Handler(tws.HandlerFunc(loadHandler))
	return lr.server.Start()
}

// StopServer stops the embedded server.
func (lr *LoadRunner) StopServer() error {
	if lr.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return lr.server.Stop(ctx)
}

func (lr *LoadRunner) newClient() *http.Client {
	return &http.Client{
		Timeout: lr.config.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 1,
			MaxConnsPerHost:     0,
			DisableCompression:  true,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// pathFor picks the dispatch path a client exercises.
func (lr *LoadRunner) pathFor(client int) string {
	switch lr.config.Mode {
	case "pool":
		return "/thread"
	case "mixed":
		if client%2 == 0 {
			return "/thread"
		}
	}
	return "/"
}

// Run ramps up clients until the duration elapses and returns the result.
func (lr *LoadRunner) Run() (*LoadResult, error) {
	if err := lr.StartServer(); err != nil {
		return nil, err
	}
	defer func() { _ = lr.StopServer() }()

	ctx, cancel := context.WithTimeout(context.Background(), lr.config.Duration)
	defer cancel()
	start := time.Now()

	go lr.measure(ctx)

	ramp := time.NewTicker(lr.config.RampUpInterval)
	defer ramp.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ramp.C:
			for range lr.config.ClientsPerStep {
				n := int(lr.clients.Add(1))
				lr.wg.Add(1)
				go lr.runClient(ctx, lr.pathFor(n))
			}
		}
	}

	lr.wg.Wait()
	lr.result.Duration = time.Since(start)
	lr.result.MaxClients = int(lr.clients.Load())
	return lr.result, nil
}

// measure tracks the best one-second window of successful requests.
func (lr *LoadRunner) measure(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := lr.result.Successful.Load()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := lr.result.Successful.Load()
			lr.result.mu.Lock()
			lr.result.MaxRPS = max(lr.result.MaxRPS, float64(now-last))
			lr.result.mu.Unlock()
			last = now
		}
	}
}

func (lr *LoadRunner) runClient(ctx context.Context, path string) {
	defer lr.wg.Done()
	client := lr.newClient()
	defer client.CloseIdleConnections()

	url := "http://127.0.0.1" + lr.config.Addr + path
	for ctx.Err() == nil {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if ctx.Err() != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			return
		}
		lr.result.record(path, resp, err)
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		time.Sleep(lr.config.RequestDelay)
	}
}

// PrintResults prints the summarized run.
func (r *LoadResult) PrintResults(logger *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]int, 0, len(r.statusCodes))
	for code := range r.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Duration: %v\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("Max Clients: %d\n", r.MaxClients)
	fmt.Printf("Max RPS: %.0f\n", r.MaxRPS)
	fmt.Printf("Total Requests: %d\n", r.Total.Load())
	fmt.Printf("Successful Requests: %d\n", r.Successful.Load())
	fmt.Printf("Dropped Connections: %d\n", r.Dropped.Load())
	for path, n := range r.perPath {
		fmt.Printf("  %s: %d\n", path, n)
	}

	fmt.Printf("\n=== Status Code Distribution ===\n")
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, r.statusCodes[code])
	}

	if r.Dropped.Load() > 0 {
		logger.Error("connections closed without a response", zap.Int64("dropped", r.Dropped.Load()))
	}
}

func main() {
	var (
		addr           = flag.String("addr", ":18000", "Server address")
		workers        = flag.Int("workers", 4, "Pool workers")
		maxConnections = flag.Uint("max-conn", 10000, "Server max connections")
		mode           = flag.String("mode", "mixed", "Dispatch path to load: loop, pool or mixed")
		rampUpInterval = flag.Duration("rampup", 25*time.Millisecond, "Time between adding new clients")
		clientsPerStep = flag.Int("clients", 1, "Number of clients to add each step")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration")
		requestTimeout = flag.Duration("timeout", 3*time.Second, "Request timeout")
		requestDelay   = flag.Duration("delay", 2*time.Millisecond, "Delay between requests per client")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	switch *mode {
	case "loop", "pool", "mixed":
	default:
		logger.Fatal("invalid mode, must be loop, pool or mixed", zap.String("mode", *mode))
	}

	runner := NewLoadRunner(LoadConfig{
		Addr:           *addr,
		Workers:        *workers,
		MaxConnections: uint32(*maxConnections), //nolint:gosec // bounded by flag input
		Mode:           *mode,
		RampUpInterval: *rampUpInterval,
		ClientsPerStep: *clientsPerStep,
		Duration:       *duration,
		RequestTimeout: *requestTimeout,
		RequestDelay:   *requestDelay,
	})
	result, err := runner.Run()
	if err != nil {
		logger.Fatal("load test failed", zap.Error(err))
	}

	result.PrintResults(logger)
	if result.Dropped.Load() > 0 {
		os.Exit(1)
	}
}
