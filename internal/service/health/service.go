package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Duration  int64     `json:"duration_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse represents the readiness response
type ReadyResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Pinger probes one dependency
type Pinger func(ctx context.Context) error

// Service answers liveness and readiness probes
type Service struct {
	startTime time.Time
	version   string
	timeout   time.Duration
	checks    map[string]Pinger
	log       *zap.Logger
	mu        sync.RWMutex
}

// NewService creates a new health service
func NewService(version string, log *zap.Logger) *Service {
	return &Service{
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
		checks:    make(map[string]Pinger),
		log:       log,
	}
}

// Register adds a dependency to the readiness probe
func (s *Service) Register(name string, ping Pinger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = ping
	s.log.Info("Registered health checker", zap.String("name", name))
}

// Names lists registered checks in order
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health performs a basic liveness check
func (s *Service) Health(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Ready runs every registered check concurrently
func (s *Service) Ready(ctx context.Context) *ReadyResponse {
	s.mu.RLock()
	checks := make(map[string]Pinger, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, ping := range checks {
		wg.Add(1)
		go func(name string, ping Pinger) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			result := s.run(checkCtx, name, ping)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, ping)
	}
	wg.Wait()

	ready := true
	for _, r := range results {
		if r.Status != StatusHealthy {
			ready = false
		}
	}
	status := StatusHealthy
	if !ready {
		status = StatusUnhealthy
	}

	return &ReadyResponse{
		Ready:     ready,
		Status:    status,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func (s *Service) run(ctx context.Context, name string, ping Pinger) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name, Timestamp: start}

	err := ping(ctx)
	result.Duration = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "ping failed: " + err.Error()
		s.log.Warn("Health check failed", zap.String("name", name), zap.Error(err))
		return result
	}
	result.Status = StatusHealthy
	result.Message = "connection ok"
	return result
}

// Plain adapts a context-free ping, as offered by the cache and queue adapters
func Plain(ping func() error) Pinger {
	return func(context.Context) error { return ping() }
}
