package health

import (
	"context"
	"time"
)

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// IsHealthy reports whether every dependency answered.
func (hs HealthStatus) IsHealthy() bool {
	return hs.Status == "healthy"
}

// Pinger is satisfied by *sql.DB, the Bolt ledger and the Redis client adapters.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DependencyChecker pings every named dependency with a per-check timeout.
type DependencyChecker struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewDependencyChecker(timeout time.Duration) *DependencyChecker {
	return &DependencyChecker{
		deps:    make(map[string]Pinger),
		timeout: timeout,
	}
}

// Register adds a dependency. Not safe for use after Check has been called concurrently.
func (dc *DependencyChecker) Register(name string, p Pinger) {
	dc.deps[name] = p
}

// Check performs a health check
func (dc *DependencyChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "healthy", Checks: make(map[string]string, len(dc.deps))}
	for name, dep := range dc.deps {
		checkCtx, cancel := context.WithTimeout(ctx, dc.timeout)
		err := dep.PingContext(checkCtx)
		cancel()
		if err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}
	return status
}
