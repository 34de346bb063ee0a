package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

var (
	ErrDispatcherBusy    = errors.New("dispatcher queue full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

type clientQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans jobs out to a bounded worker pool, taking one job per
// client in turn so a chatty client cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // intake for outer jobs

	mu        sync.Mutex
	queues    map[string]*clientQueue
	ready     *list.List // round-robin queue of client ids with pending jobs
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout)

	d := &Dispatcher{
		pool:      pool,
		JobQueue:  make(chan Job, queueSize),
		queues:    make(map[string]*clientQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	if job.Type == "" {
		job.Type = Run
	}
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// SubmitAfter queues job once delay has elapsed. If the job cannot be queued
// at that point, job.OnDrop receives the reason.
func (d *Dispatcher) SubmitAfter(delay time.Duration, job Job) {
	submit := func() {
		if err := d.Submit(job); err != nil {
			debugLog("[dispatcher] drop job for client %s: %v", job.ClientID, err)
			if job.OnDrop != nil {
				job.OnDrop(err)
			}
		}
	}
	if delay <= 0 {
		submit()
		return
	}
	time.AfterFunc(delay, submit)
}

// CancelClient drops every queued job of clientID that has not reached a worker.
func (d *Dispatcher) CancelClient(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, clientID)
	if elem, ok := d.positions[clientID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, clientID)
	}
}

// Stop shuts down the dispatch loop and the worker pool.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the client at the front of the ready queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.ClientID]
	if q == nil {
		q = &clientQueue{}
		d.queues[job.ClientID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.ClientID] = d.ready.PushBack(job.ClientID)
}

// dispatchOne hands the next job of the first ready client to a worker
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	clientID := elem.Value.(string)
	q := d.queues[clientID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, clientID)
		delete(d.queues, clientID)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		if job.OnDrop != nil {
			job.OnDrop(ErrDispatcherStopped)
		}
		return false
	}
	debugLog("[dispatcher] assign job for client %s to worker-%d", clientID, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}
