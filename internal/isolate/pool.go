package isolate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voidmerge/voidmerge/internal/verror"
)

// Pool is the bounded pool of dedicated-OS-thread workers described in
// the isolate-pool design: a single counting semaphore caps the number
// of live workers across every tenant, idle workers sit in per-Setup
// slices (bounded in total by the cap), and a periodic task prunes
// workers idle past a threshold. Grounded on the pool/worker split in
// cryguy/worker's internal/v8engine package, generalized from a
// fixed-size warm pool to the spec's acquire-or-create-under-cap-or-wait
// contract. The pool itself is process-wide and tenant-agnostic; each
// Execute call supplies the Host its Setup's tenant should be bridged
// to, since a shared pool cannot fix one Host at construction time.
type Pool struct {
	cap int64
	sem *semaphore.Weighted

	mu   sync.Mutex
	idle map[Setup][]*idleWorker

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type idleWorker struct {
	w        *worker
	sinceIdle time.Time
}

// NewPool creates a pool with the given concurrency cap (0 means
// runtime.NumCPU()) and starts its idle-prune task.
func NewPool(cap int) *Pool {
	if cap <= 0 {
		cap = runtime.NumCPU()
	}
	p := &Pool{
		cap:  int64(cap),
		sem:  semaphore.NewWeighted(int64(cap)),
		idle: make(map[Setup][]*idleWorker),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.pruneLoop(DefaultIdlePrune)
	return p
}

// Close disposes every idle worker and stops the prune task. In-flight
// executions are not interrupted.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, workers := range p.idle {
		for _, iw := range workers {
			iw.w.shouldTerminate.Store(true)
			close(iw.w.cmdCh)
			p.sem.Release(1)
		}
	}
	p.idle = make(map[Setup][]*idleWorker)
}

// Execute dispatches req to a worker configured for setup, bridged to
// host: an idle worker already matching setup, else any idle worker
// reconfigured (which, per the worker lifecycle, means it
// self-terminates and a fresh one is created under the same permit),
// else a newly created worker under the concurrency cap, else it waits
// for a semaphore permit up to ctx's deadline. host is only consulted
// when a fresh worker must be created — an idle worker already carries
// the host it was built with, which is correct since Setup.ContextID
// determines which tenant (and therefore which host) it serves.
func (p *Pool) Execute(ctx context.Context, setup Setup, host Host, req Request) (Response, error) {
	w, err := p.acquire(ctx, setup, host)
	if err != nil {
		return Response{}, err
	}

	reply := make(chan execResult, 1)
	w.cmdCh <- execCmd{req: req, reply: reply}
	result := <-reply

	if result.err != nil || w.shouldTerminate.Load() {
		close(w.cmdCh)
		p.sem.Release(1)
		return result.res, result.err
	}

	p.release(w)
	return result.res, nil
}

func (p *Pool) acquire(ctx context.Context, setup Setup, host Host) (*worker, error) {
	if w := p.takeIdle(setup); w != nil {
		return w, nil
	}

	// No exact match idle. Try to reconfigure any idle worker by
	// terminating it and creating a fresh one under the same permit, so
	// the cap is never exceeded by a reconfiguration.
	if w := p.takeAnyIdle(); w != nil {
		close(w.cmdCh)
		return newWorker(w.id, setup, host)
	}

	if p.sem.TryAcquire(1) {
		w, err := newWorker(fmt.Sprintf("iso-%d", time.Now().UnixNano()), setup, host)
		if err != nil {
			p.sem.Release(1)
			return nil, verror.Wrap(verror.Internal, "creating isolate worker", err)
		}
		return w, nil
	}

	// At capacity with no reconfigurable idle worker: wait for the
	// semaphore up to the caller's deadline, then create a fresh worker.
	// An idle worker returned while waiting is not taken; a permit frees
	// only when a worker is retired or pruned.
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, verror.Wrap(verror.Timeout, "waiting for isolate worker", err)
	}
	w, err := newWorker(fmt.Sprintf("iso-%d", time.Now().UnixNano()), setup, host)
	if err != nil {
		p.sem.Release(1)
		return nil, verror.Wrap(verror.Internal, "creating isolate worker", err)
	}
	return w, nil
}

func (p *Pool) takeIdle(setup Setup) *worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	workers := p.idle[setup]
	if len(workers) == 0 {
		return nil
	}
	last := len(workers) - 1
	iw := workers[last]
	p.idle[setup] = workers[:last]
	return iw.w
}

func (p *Pool) takeAnyIdle() *worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	for setup, workers := range p.idle {
		if len(workers) == 0 {
			continue
		}
		last := len(workers) - 1
		iw := workers[last]
		p.idle[setup] = workers[:last]
		return iw.w
	}
	return nil
}

func (p *Pool) release(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle[w.setup] = append(p.idle[w.setup], &idleWorker{w: w, sinceIdle: time.Now()})
}

func (p *Pool) pruneLoop(interval time.Duration) {
	defer close(p.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.pruneIdle(interval)
		}
	}
}

func (p *Pool) pruneIdle(olderThan time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	for setup, workers := range p.idle {
		var kept []*idleWorker
		for _, iw := range workers {
			if iw.sinceIdle.Before(cutoff) {
				iw.w.shouldTerminate.Store(true)
				close(iw.w.cmdCh)
				p.sem.Release(1)
				continue
			}
			kept = append(kept, iw)
		}
		if len(kept) == 0 {
			delete(p.idle, setup)
		} else {
			p.idle[setup] = kept
		}
	}
}
