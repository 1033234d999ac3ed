// Package health evaluates dependency probes for the HTTP and gRPC health endpoints.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Check probes one dependency. Optional checks report down without failing
// the overall result.
type Check struct {
	Name     string
	Probe    func(ctx context.Context) error
	Optional bool
}

// Result is the outcome of running every check.
type Result struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

// Run executes checks concurrently, each bounded by timeout.
func Run(ctx context.Context, checks []Check, timeout time.Duration) Result {
	result := Result{Healthy: true, Components: make(map[string]string, len(checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range checks {
		if check.Probe == nil {
			continue
		}
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			probeContext, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := check.Probe(probeContext)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Components[check.Name] = StatusDown
				if !check.Optional {
					result.Healthy = false
				}
				return
			}
			result.Components[check.Name] = StatusUp
		}(check)
	}
	wg.Wait()
	return result
}

// Names lists the check names in sorted order.
func Names(checks []Check) []string {
	names := make([]string, 0, len(checks))
	for _, check := range checks {
		names = append(names, check.Name)
	}
	sort.Strings(names)
	return names
}
