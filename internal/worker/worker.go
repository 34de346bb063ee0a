package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type JobType string

const (
	Run  JobType = "run"
	Stop JobType = "stop"
)

// Job is one unit of work owned by a client. Jobs of the same client are
// dispatched in submission order.
type Job struct {
	Type     JobType
	ClientID string
	Task     func(ctx context.Context)
	// OnDrop is called when the job never reaches a worker.
	OnDrop func(err error)
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for {
			if !w.pool.Release(w.jobChannel) {
				return
			}
			job := <-w.jobChannel
			if job.Type == Stop {
				debugLog("[worker-%d] stop", w.id)
				return
			}
			w.run(job)
		}
	}()
}

func (w *Worker) run(job Job) {
	if job.Task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("client_id", job.ClientID).Int("worker", w.id).
				Err(fmt.Errorf("%v", r)).Msg("job panicked")
		}
	}()
	job.Task(w.pool.ctx)
}
