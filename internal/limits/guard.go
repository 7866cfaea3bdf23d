// Package limits implements the participant's resource guard: a
// goroutine-bounding semaphore for SEDP matching work plus a
// cgroup-aware CPU sampler that informs backpressure decisions,
// grounded on the teacher's ResourceGuard/GoroutineLimiter.
package limits

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbora/rtpscore/internal/platform"
	"github.com/nimbora/rtpscore/internal/rtpsmetrics"
)

// GoroutineLimiter bounds concurrently in-flight work with a semaphore,
// rejecting admission rather than queuing unbounded.
type GoroutineLimiter struct {
	sem chan struct{}
	max int
}

func NewGoroutineLimiter(max int) *GoroutineLimiter {
	return &GoroutineLimiter{sem: make(chan struct{}, max), max: max}
}

// Acquire attempts to reserve a slot, returning false if none are free.
func (gl *GoroutineLimiter) Acquire() bool {
	select {
	case gl.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (gl *GoroutineLimiter) Release() {
	<-gl.sem
}

func (gl *GoroutineLimiter) Current() int {
	return len(gl.sem)
}

func (gl *GoroutineLimiter) Max() int {
	return gl.max
}

// ResourceGuard bounds the SEDP matching work the participant's worker
// pool will accept and periodically samples container CPU usage into
// rtpsmetrics, per SPEC_FULL.md §4.11.
type ResourceGuard struct {
	matchLimiter *GoroutineLimiter
	cpuMonitor   *platform.CPUMonitor
	logger       zerolog.Logger
	currentCPU   atomic.Value // float64
}

// NewResourceGuard creates a guard bounding maxInFlightMatches
// concurrently admitted SEDP matching tasks.
func NewResourceGuard(maxInFlightMatches int, logger zerolog.Logger) *ResourceGuard {
	rg := &ResourceGuard{
		matchLimiter: NewGoroutineLimiter(maxInFlightMatches),
		cpuMonitor:   platform.NewCPUMonitor(logger),
		logger:       logger,
	}
	rg.currentCPU.Store(0.0)
	return rg
}

// AcquireMatch reserves a matching-task slot; callers that fail to
// acquire should drop the task exactly like a saturated worker queue.
func (rg *ResourceGuard) AcquireMatch() bool {
	return rg.matchLimiter.Acquire()
}

func (rg *ResourceGuard) ReleaseMatch() {
	rg.matchLimiter.Release()
}

func (rg *ResourceGuard) InFlightMatches() int {
	return rg.matchLimiter.Current()
}

// CurrentCPUPercent returns the most recently sampled CPU usage as a
// percentage of this process's cgroup allocation.
func (rg *ResourceGuard) CurrentCPUPercent() float64 {
	return rg.currentCPU.Load().(float64)
}

// SampleCPU refreshes the CPU gauge; on error the prior value is kept
// and the failure logged at debug level, since a single failed cgroup
// read is not actionable.
func (rg *ResourceGuard) SampleCPU() {
	percent, err := rg.cpuMonitor.GetPercent()
	if err != nil {
		rg.logger.Debug().Err(err).Msg("cpu sample failed")
		return
	}
	rg.currentCPU.Store(percent)
	rtpsmetrics.SampleRuntime(percent)
}

// StartSampling runs SampleCPU on interval until ctx is done.
func (rg *ResourceGuard) StartSampling(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				rg.SampleCPU()
			case <-ctx.Done():
				return
			}
		}
	}()
}
