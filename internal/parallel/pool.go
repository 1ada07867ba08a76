// Package parallel provides the worker pool the blur filter uses to
// process image row bands concurrently.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs pixel work items across a fixed set of goroutines.
//
// Each worker owns a queue and steals from its siblings when the queue
// runs dry, so uneven bands (mostly-transparent rows blur faster) do not
// leave workers idle while one band finishes.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	queues []chan func()
	quit   chan struct{}
	wg     sync.WaitGroup
	open   atomic.Bool
}

// NewWorkerPool creates a pool with the given worker count and starts the
// workers immediately. A count of 0 or less means GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// A few slots of slack per worker so submission rarely blocks.
	depth := max(workers*4, 8)

	p := &WorkerPool{
		queues: make([]chan func(), workers),
		quit:   make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.open.Store(true)

	p.wg.Add(workers)
	for i := range p.queues {
		go p.run(i)
	}
	return p
}

// run is the per-worker loop: own queue first, then steal, then block.
func (p *WorkerPool) run(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.quit:
			drain(own)
			return
		case fn := <-own:
			invoke(fn)
		default:
			if fn := p.steal(id); fn != nil {
				fn()
				continue
			}
			select {
			case <-p.quit:
				drain(own)
				return
			case fn := <-own:
				invoke(fn)
			}
		}
	}
}

func invoke(fn func()) {
	if fn != nil {
		fn()
	}
}

// drain runs whatever is still queued so shutdown never drops work.
func drain(queue chan func()) {
	for {
		select {
		case fn := <-queue:
			invoke(fn)
		default:
			return
		}
	}
}

// steal takes one item from some other worker's queue, or returns nil.
func (p *WorkerPool) steal(id int) func() {
	for i, q := range p.queues {
		if i == id {
			continue
		}
		select {
		case fn := <-q:
			return fn
		default:
		}
	}
	return nil
}

// ExecuteAll spreads the work items round-robin across the workers and
// blocks until every item has run. On a closed pool it is a no-op.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 || !p.open.Load() {
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(work))

	for i, fn := range work {
		item := func() {
			defer pending.Done()
			fn()
		}
		select {
		case p.queues[i%len(p.queues)] <- item:
		case <-p.quit:
			pending.Done()
		}
	}

	pending.Wait()
}

// Close stops the workers after letting queued work finish.
// Safe to call more than once.
func (p *WorkerPool) Close() {
	if !p.open.CompareAndSwap(true, false) {
		return
	}
	close(p.quit)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return len(p.queues)
}

// IsRunning reports whether the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.open.Load()
}
