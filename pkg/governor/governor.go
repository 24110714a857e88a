package governor

import (
	"context"
	"fmt"
	"time"

	"sync"

	"github.com/graphweave/graphweave/pkg/logger"
)

const minWindowSamples = 5

// Governor is an adaptive admission controller for outbound extraction
// calls. It bounds the number of in-flight requests and adjusts that bound
// from observed latency and error signals, AIMD-style but intentionally
// asymmetric: two consecutive degradation signals shrink the limit while
// three consecutive healthy signals are needed to grow it. That bias keeps
// the limit stable under provider rate-limit storms while still recovering
// throughput once conditions are healthy.
//
// One Governor instance is exclusively owned by one extraction run; its
// state is not persisted.
type Governor struct {
	mu sync.Mutex

	limit    int
	minLimit int
	maxLimit int

	inFlight  int
	completed int

	windowSize int
	latencies  []int64
	errored    []bool

	adjustEvery        int
	cooldown           int
	errorRateThreshold float64
	scaleUpLatencyMs   float64
	scaleDownLatencyMs float64

	consecutiveUp   int
	consecutiveDown int
	lastAdjustedAt  int

	// closed and replaced on every release to wake blocked acquirers
	waitCh chan struct{}
}

// Params configures a Governor. Zero values fall back to defaults.
type Params struct {
	InitialLimit int
	MinLimit     int
	MaxLimit     int

	WindowSize int

	// AdjustEvery and Cooldown are both measured in completions since the
	// last adjustment; an adjustment is only attempted once both have
	// elapsed.
	AdjustEvery int
	Cooldown    int

	ErrorRateThreshold float64
	ScaleUpLatencyMs   float64
	ScaleDownLatencyMs float64
}

// New creates a Governor with the given parameters.
func New(params Params) (*Governor, error) {
	if params.MinLimit <= 0 {
		params.MinLimit = 1
	}
	if params.MaxLimit <= 0 {
		params.MaxLimit = 16
	}
	if params.MaxLimit < params.MinLimit {
		return nil, fmt.Errorf("max limit %d below min limit %d", params.MaxLimit, params.MinLimit)
	}
	if params.InitialLimit <= 0 {
		params.InitialLimit = params.MinLimit
	}
	if params.InitialLimit < params.MinLimit || params.InitialLimit > params.MaxLimit {
		return nil, fmt.Errorf("initial limit %d outside [%d, %d]", params.InitialLimit, params.MinLimit, params.MaxLimit)
	}
	if params.WindowSize <= 0 {
		params.WindowSize = 20
	}
	if params.AdjustEvery <= 0 {
		params.AdjustEvery = 5
	}
	if params.Cooldown <= 0 {
		params.Cooldown = 10
	}
	if params.ErrorRateThreshold <= 0 {
		params.ErrorRateThreshold = 0.2
	}
	if params.ScaleUpLatencyMs <= 0 {
		params.ScaleUpLatencyMs = 2000
	}
	if params.ScaleDownLatencyMs <= 0 {
		params.ScaleDownLatencyMs = 8000
	}

	return &Governor{
		limit:    params.InitialLimit,
		minLimit: params.MinLimit,
		maxLimit: params.MaxLimit,

		windowSize: params.WindowSize,
		latencies:  make([]int64, 0, params.WindowSize),
		errored:    make([]bool, 0, params.WindowSize),

		adjustEvery:        params.AdjustEvery,
		cooldown:           params.Cooldown,
		errorRateThreshold: params.ErrorRateThreshold,
		scaleUpLatencyMs:   params.ScaleUpLatencyMs,
		scaleDownLatencyMs: params.ScaleDownLatencyMs,

		waitCh: make(chan struct{}),
	}, nil
}

// Acquire blocks until an admission slot is free and returns how long the
// caller waited. The context lets callers bound that wait; the original
// design had no timeout path, so a caller under a persistently low limit
// could starve without one.
func (g *Governor) Acquire(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	for {
		g.mu.Lock()
		if g.inFlight < g.limit {
			g.inFlight++
			g.mu.Unlock()
			return time.Since(start), nil
		}
		ch := g.waitCh
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-ch:
		}
	}
}

// Release returns a slot and feeds the controller with the observed call
// latency and error outcome.
func (g *Governor) Release(latencyMs int64, hadError bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight > 0 {
		g.inFlight--
	}
	g.completed++

	g.latencies = append(g.latencies, latencyMs)
	g.errored = append(g.errored, hadError)
	if len(g.latencies) > g.windowSize {
		g.latencies = g.latencies[1:]
		g.errored = g.errored[1:]
	}

	g.maybeAdjust()

	close(g.waitCh)
	g.waitCh = make(chan struct{})
}

// Limit returns the current admission limit.
func (g *Governor) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// InFlight returns the number of currently admitted calls.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Completed returns the number of completed calls.
func (g *Governor) Completed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completed
}

// maybeAdjust evaluates the sliding windows and adjusts the limit. Caller
// must hold g.mu.
func (g *Governor) maybeAdjust() {
	if len(g.latencies) < minWindowSamples {
		return
	}
	elapsed := g.completed - g.lastAdjustedAt
	if elapsed < g.adjustEvery || elapsed < g.cooldown {
		return
	}

	var latencySum int64
	errorCount := 0
	for i := range g.latencies {
		latencySum += g.latencies[i]
		if g.errored[i] {
			errorCount++
		}
	}
	avgLatency := float64(latencySum) / float64(len(g.latencies))
	errorRate := float64(errorCount) / float64(len(g.errored))

	scaleDown := errorRate >= g.errorRateThreshold || avgLatency >= g.scaleDownLatencyMs
	scaleUp := errorRate == 0 && avgLatency <= g.scaleUpLatencyMs

	switch {
	case scaleDown:
		g.consecutiveDown++
		g.consecutiveUp = 0
	case scaleUp:
		g.consecutiveUp++
		g.consecutiveDown = 0
	default:
		g.consecutiveUp = 0
		g.consecutiveDown = 0
		return
	}

	if g.consecutiveDown >= 2 {
		if g.limit > g.minLimit {
			g.limit--
			logger.Debug("[Governor] Scaling down", "limit", g.limit, "avg_latency_ms", avgLatency, "error_rate", errorRate)
		}
		g.resetAdjustmentState()
		return
	}
	if g.consecutiveUp >= 3 {
		if g.limit < g.maxLimit {
			g.limit++
			logger.Debug("[Governor] Scaling up", "limit", g.limit, "avg_latency_ms", avgLatency, "error_rate", errorRate)
		}
		g.resetAdjustmentState()
	}
}

func (g *Governor) resetAdjustmentState() {
	g.consecutiveUp = 0
	g.consecutiveDown = 0
	g.lastAdjustedAt = g.completed
}
