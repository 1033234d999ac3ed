package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunReportsComponents(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		checks  []Check
		healthy bool
		states  map[string]string
	}{
		{
			name:    "all up",
			checks:  []Check{{Name: "database", Probe: func(context.Context) error { return nil }}},
			healthy: true,
			states:  map[string]string{"database": StatusUp},
		},
		{
			name: "required down",
			checks: []Check{
				{Name: "database", Probe: func(context.Context) error { return errors.New("refused") }},
				{Name: "cache", Probe: func(context.Context) error { return nil }, Optional: true},
			},
			healthy: false,
			states:  map[string]string{"database": StatusDown, "cache": StatusUp},
		},
		{
			name: "optional down",
			checks: []Check{
				{Name: "database", Probe: func(context.Context) error { return nil }},
				{Name: "cache", Probe: func(context.Context) error { return errors.New("timeout") }, Optional: true},
			},
			healthy: true,
			states:  map[string]string{"database": StatusUp, "cache": StatusDown},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			result := Run(context.Background(), testCase.checks, time.Second)
			if result.Healthy != testCase.healthy {
				test.Fatalf("expected healthy=%v, got %+v", testCase.healthy, result)
			}
			for name, state := range testCase.states {
				if result.Components[name] != state {
					test.Fatalf("expected %s=%s, got %+v", name, state, result.Components)
				}
			}
		})
	}
}

func TestRunBoundsSlowProbes(test *testing.T) {
	test.Parallel()
	slow := Check{Name: "cache", Probe: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	started := time.Now()
	result := Run(context.Background(), []Check{slow}, 20*time.Millisecond)
	if result.Healthy || time.Since(started) > time.Second {
		test.Fatalf("expected bounded failing probe, got %+v after %s", result, time.Since(started))
	}
}
