package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/docuflow/docuflow/pkg/models"
)

// Job is one dispatch request: the group that evaluated true, its actions and
// the context of the step instance that triggered it.
type Job struct {
	Group   *models.ConditionGroup
	Actions []*models.ConditionalAction
	Context models.ExecutionContext
}

// Pool fans dispatch jobs out across a bounded set of workers. Jobs for
// different step instances run concurrently; within one job actions still run
// sequentially in execution order.
type Pool struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	jobs       chan Job
	reports    chan *ExecutionReport
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func NewPool(dispatcher *Dispatcher, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}

	return &Pool{
		dispatcher: dispatcher,
		logger:     logger.With("module", "dispatch_pool"),
		jobs:       make(chan Job, workers*2),
		reports:    make(chan *ExecutionReport, workers*2),
	}
}

// Start launches the workers. They drain the job queue until Close is called
// or ctx is cancelled.
func (p *Pool) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}

					report := p.dispatcher.Dispatch(ctx, job.Group, job.Actions, job.Context)

					select {
					case p.reports <- report:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
}

// Submit queues a job, blocking while the queue is full. It returns the
// context error if ctx is cancelled before the job is accepted.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reports exposes the completed execution reports in completion order.
func (p *Pool) Reports() <-chan *ExecutionReport {
	return p.reports
}

// Close stops accepting jobs, waits for in-flight dispatches and closes the
// reports channel.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
		close(p.reports)
	})
}
