package governor

import (
	"context"
	"testing"
	"time"
)

func testParams() Params {
	return Params{
		InitialLimit:       4,
		MinLimit:           1,
		MaxLimit:           8,
		WindowSize:         10,
		AdjustEvery:        1,
		Cooldown:           1,
		ErrorRateThreshold: 0.2,
		ScaleUpLatencyMs:   2000,
		ScaleDownLatencyMs: 8000,
	}
}

func cycle(t *testing.T, g *Governor, latencyMs int64, hadError bool) {
	t.Helper()
	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	g.Release(latencyMs, hadError)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{
			name:   "defaults",
			params: Params{},
		},
		{
			name:    "max below min",
			params:  Params{MinLimit: 4, MaxLimit: 2},
			wantErr: true,
		},
		{
			name:    "initial outside range",
			params:  Params{InitialLimit: 10, MinLimit: 1, MaxLimit: 4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScaleDownOnHighLatency(t *testing.T) {
	g, err := New(testParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	initial := g.Limit()
	for i := 0; i < 6; i++ {
		cycle(t, g, 20000, false)
	}

	if g.Limit() >= initial {
		t.Errorf("limit = %d, want below initial %d", g.Limit(), initial)
	}
}

func TestScaleDownOnErrors(t *testing.T) {
	g, err := New(testParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	initial := g.Limit()
	for i := 0; i < 6; i++ {
		cycle(t, g, 100, true)
	}

	if g.Limit() >= initial {
		t.Errorf("limit = %d, want below initial %d", g.Limit(), initial)
	}
}

func TestScaleUpOnHealthySignals(t *testing.T) {
	g, err := New(testParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	initial := g.Limit()
	for i := 0; i < 12; i++ {
		cycle(t, g, 10, false)
	}

	if g.Limit() <= initial {
		t.Errorf("limit = %d, want above initial %d", g.Limit(), initial)
	}
}

func TestLimitStaysWithinBounds(t *testing.T) {
	params := testParams()
	params.InitialLimit = 2
	params.MinLimit = 1
	params.MaxLimit = 3
	g, err := New(params)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 50; i++ {
		cycle(t, g, 20000, true)
		if g.Limit() < params.MinLimit {
			t.Fatalf("limit %d fell below min %d", g.Limit(), params.MinLimit)
		}
	}
	if g.Limit() != params.MinLimit {
		t.Errorf("limit = %d, want pinned at min %d", g.Limit(), params.MinLimit)
	}

	for i := 0; i < 50; i++ {
		cycle(t, g, 1, false)
		if g.Limit() > params.MaxLimit {
			t.Fatalf("limit %d exceeded max %d", g.Limit(), params.MaxLimit)
		}
	}
	if g.Limit() != params.MaxLimit {
		t.Errorf("limit = %d, want pinned at max %d", g.Limit(), params.MaxLimit)
	}
}

func TestNeutralSignalsResetCounters(t *testing.T) {
	g, err := New(testParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	initial := g.Limit()
	// Latency between the scale-up and scale-down thresholds is a neutral
	// signal and must never move the limit.
	for i := 0; i < 20; i++ {
		cycle(t, g, 5000, false)
	}

	if g.Limit() != initial {
		t.Errorf("limit = %d, want unchanged %d", g.Limit(), initial)
	}
}

func TestAcquireBlocksAtLimit(t *testing.T) {
	params := testParams()
	params.InitialLimit = 1
	g, err := New(params)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if _, err := g.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire() succeeded while limit was saturated")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release(10, false)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire() did not wake after Release()")
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	params := testParams()
	params.InitialLimit = 1
	g, err := New(params)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Acquire(ctx); err == nil {
		t.Fatal("Acquire() succeeded, want context deadline error")
	}
}

func TestInFlightAccounting(t *testing.T) {
	g, err := New(testParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if g.InFlight() != 3 {
		t.Errorf("InFlight() = %d, want 3", g.InFlight())
	}

	g.Release(10, false)
	if g.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", g.InFlight())
	}
	if g.Completed() != 1 {
		t.Errorf("Completed() = %d, want 1", g.Completed())
	}
}
