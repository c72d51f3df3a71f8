package server

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Probe returns nil while a dependency is usable.
type Probe func(ctx context.Context) error

// Health runs named dependency probes for the HTTP and gRPC health
// endpoints.
type Health struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
	log     *slog.Logger
}

func NewHealth(timeout time.Duration, log *slog.Logger) *Health {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Health{probes: map[string]Probe{}, timeout: timeout, log: log}
}

func (h *Health) Register(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// Check runs every probe concurrently and reports "ok" or the error text
// per dependency.
func (h *Health) Check(ctx context.Context) (bool, map[string]string) {
	h.mu.RLock()
	names := make([]string, 0, len(h.probes))
	for n := range h.probes {
		names = append(names, n)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, n := range names {
		h.mu.RLock()
		p := h.probes[n]
		h.mu.RUnlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p(ctx); err != nil {
				results[i] = "error: " + err.Error()
				return
			}
			results[i] = "ok"
		}()
	}
	wg.Wait()

	healthy := true
	out := make(map[string]string, len(names))
	for i, n := range names {
		out[n] = results[i]
		if results[i] != "ok" {
			healthy = false
		}
	}
	return healthy, out
}

// Watch feeds the probe results into a gRPC health server every interval
// until ctx is done, then marks the server NOT_SERVING.
func (h *Health) Watch(ctx context.Context, hs *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		ok, checks := h.Check(ctx)
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			h.log.Info("health status changed", "status", status.String(), "checks", checks)
			last = status
		}
		hs.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}

// NewGRPCServer returns a gRPC server exposing the standard health service
// (and reflection, for grpcurl).
func NewGRPCServer(hs *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s
}
