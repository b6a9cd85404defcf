// Package health reports whether the local storage and the remote API are
// usable. Storage problems make the hub degraded, not down: the session core
// keeps working in memory. An unreachable remote only matters while
// authenticated, so it is reported as degraded too.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/synapse/internal/errors"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Result is the outcome of one check.
type Result struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates all check results.
type Report struct {
	Status Status            `json:"status"`
	Checks map[string]Result `json:"checks"`
}

// Ready reports whether no check is down.
func (r Report) Ready() bool { return r.Status != StatusDown }

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) Result

// Checker runs named checks concurrently.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	last    Report
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a checker with a 5s per-check timeout.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named check, replacing any check with the same name.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Names lists the registered checks in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes every check and returns the aggregated report. The overall
// status is the worst individual status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			res := f(checkCtx)
			mu.Lock()
			results[n] = res
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	report := Report{Status: StatusOK, Checks: results}
	for name, res := range results {
		if res.Status != StatusOK {
			c.logger.Debug().Str("check", name).Str("status", string(res.Status)).Str("error", res.Error).Msg("health check not ok")
		}
		report.Status = worst(report.Status, res.Status)
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	return report
}

// Last returns the most recent report without running checks.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func worst(a, b Status) Status {
	rank := map[Status]int{StatusOK: 0, StatusDegraded: 1, StatusDown: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Pinger is implemented by storage backends that can verify their handle.
type Pinger interface {
	Ping() error
}

// StorageCheck pings the local storage. Failures are degraded because the
// session core falls back to memory.
func StorageCheck(p Pinger) CheckFunc {
	return func(context.Context) Result {
		if p == nil {
			return Result{Status: StatusDegraded, Error: perrors.ErrStorageUnavailable.Error()}
		}
		if err := p.Ping(); err != nil {
			return Result{Status: StatusDegraded, Error: err.Error()}
		}
		return Result{Status: StatusOK}
	}
}

// RemoteCheck probes the remote API. Any HTTP answer, including an error
// status, means the API is reachable; only transport failures count.
func RemoteCheck(probe func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Result {
		err := probe(ctx)
		var apiErr *perrors.APIError
		if err == nil || errors.As(err, &apiErr) {
			return Result{Status: StatusOK}
		}
		return Result{Status: StatusDegraded, Error: err.Error()}
	}
}
