// Package health runs dependency checks concurrently and serves the
// liveness and readiness checks.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds each individual check.
const DefaultCheckTimeout = 2 * time.Second

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check is a function that tests a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// PingCheck adapts a connectivity test. A failing required dependency
// reports down; an optional one reports degraded so the service stays ready.
func PingCheck(ping func(ctx context.Context) error, required bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDegraded
			if required {
				status = StatusDown
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Static reports a fixed status, for components with nothing to test.
func Static(status Status, message string) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: status, Message: message}
	}
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks       map[string]Check
	mu           sync.RWMutex
	checkTimeout time.Duration
	last         Status
	logger       *slog.Logger
}

// NewChecker creates an empty Checker using DefaultCheckTimeout.
func NewChecker() *Checker {
	return &Checker{
		checks:       make(map[string]Check),
		checkTimeout: DefaultCheckTimeout,
		last:         StatusUp,
		logger:       slog.Default().With("component", "health"),
	}
}

// SetCheckTimeout changes the per-check deadline. A check that does not
// return in time reports down.
func (c *Checker) SetCheckTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.checkTimeout = d
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes all registered checks concurrently and returns an aggregated
// Report. The overall status is the worst status among all components.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.checkTimeout
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			start := time.Now()
			result := runCheck(ctx, timeout, check)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, comp := range report.Components {
		if comp.Status == StatusDown {
			report.Status = StatusDown
			break
		}
		if comp.Status == StatusDegraded {
			report.Status = StatusDegraded
		}
	}
	c.observe(report)
	return report
}

// runCheck returns as soon as check finishes or the deadline passes; a check
// that ignores its context is left to finish in the background.
func runCheck(ctx context.Context, timeout time.Duration, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()
	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return ComponentHealth{Status: StatusDown, Message: "check timed out after " + timeout.String()}
	}
}

func (c *Checker) observe(report Report) {
	c.mu.Lock()
	previous := c.last
	c.last = report.Status
	c.mu.Unlock()
	if previous == report.Status {
		return
	}
	attrs := []any{"from", previous, "to", report.Status}
	for name, comp := range report.Components {
		if comp.Status != StatusUp {
			attrs = append(attrs, name, comp.Message)
		}
	}
	if report.Status == StatusUp {
		c.logger.Info("health recovered", attrs...)
	} else {
		c.logger.Warn("health changed", attrs...)
	}
}

// LiveHandler returns an HTTP handler for Kubernetes liveness checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadyHandler returns an HTTP handler for readiness checks. Degraded
// optional dependencies still answer 200.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusDown {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
