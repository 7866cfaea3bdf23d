package participant

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nimbora/rtpscore/internal/limits"
	"github.com/nimbora/rtpscore/internal/logging"
	"github.com/nimbora/rtpscore/internal/rtpsmetrics"
)

// matchTask is a unit of off-mailbox QoS-compatibility work: the result
// is posted back to the actor's mailbox as an ordinary message so that
// state mutation stays FIFO-serialized, per SPEC_FULL.md §5.
type matchTask func()

// workerPool bounds concurrent SEDP matching work, mirroring the
// teacher's WorkerPool: fixed goroutines, a bounded queue, and tasks
// dropped (never queued unbounded) once the queue is full. guard adds a
// second, independent admission cap via its goroutine-limiting
// semaphore, per SPEC_FULL.md §4.11.
type workerPool struct {
	queue        chan matchTask
	wg           sync.WaitGroup
	droppedTasks int64
	logger       zerolog.Logger
	guard        *limits.ResourceGuard
}

func newWorkerPool(queueSize int, guard *limits.ResourceGuard, logger zerolog.Logger) *workerPool {
	return &workerPool{
		queue:  make(chan matchTask, queueSize),
		logger: logger,
		guard:  guard,
	}
}

func (wp *workerPool) start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
}

func (wp *workerPool) worker(ctx context.Context) {
	defer wp.wg.Done()
	for {
		select {
		case task, ok := <-wp.queue:
			if !ok {
				return
			}
			wp.runRecovered(task)
		case <-ctx.Done():
			return
		}
	}
}

func (wp *workerPool) runRecovered(task matchTask) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(wp.logger, r, "sedp matching task panicked, worker continues")
		}
	}()
	defer wp.guard.ReleaseMatch()
	task()
}

// submit enqueues task for asynchronous execution, dropping it (and
// counting the drop) if the resource guard's in-flight cap or the
// queue itself is saturated, rather than spawning an unbounded
// goroutine.
func (wp *workerPool) submit(task matchTask) {
	if !wp.guard.AcquireMatch() {
		atomic.AddInt64(&wp.droppedTasks, 1)
		rtpsmetrics.IncWorkerQueueDropped()
		return
	}
	select {
	case wp.queue <- task:
	default:
		wp.guard.ReleaseMatch()
		atomic.AddInt64(&wp.droppedTasks, 1)
		rtpsmetrics.IncWorkerQueueDropped()
	}
}

func (wp *workerPool) dropped() int64 {
	return atomic.LoadInt64(&wp.droppedTasks)
}

func (wp *workerPool) stop() {
	close(wp.queue)
	wp.wg.Wait()
}
