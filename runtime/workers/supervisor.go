package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRestartInterval = 200 * time.Millisecond
	// maxRestartFactor caps the delay between two restarts of a crash-looping
	// worker at this multiple of the restart interval.
	maxRestartFactor = 30
)

// Supervisor runs the relay's background workers (notification producer,
// redis relay, value log GC, samplers) and restarts the ones that fail.
//
// A worker that keeps failing, typically the redis relay while redis is
// down, waits longer before each new attempt. A run that lasted longer than
// the longest delay resets it. A worker returning nil is finished and is
// never restarted. Cancelling the parent context, or calling Stop, stops
// every worker; Run returns once all of them are gone.
type Supervisor struct {
	Cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

// Run starts every added worker and blocks until all of them returned.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)
	log := s.log.With("worker", name)

	go func() {
		defer s.wg.Done()
		policy := s.restartPolicy()

		for {
			started := time.Now()
			err := runOnce(ctx, worker)
			switch {
			case ctx.Err() != nil:
				log.Info("Worker stopped")
				return
			case err == nil:
				log.Info("Worker finished", "uptime", time.Since(started).Truncate(time.Millisecond).String())
				return
			}

			if time.Since(started) > policy.MaxInterval {
				policy.Reset()
			}
			reason := "error"
			if errors.Is(err, errors.ErrWorkerPanic) {
				reason = "panic"
			}
			observability.WorkerRestarts.WithLabelValues(name, reason).Inc()
			wait := policy.NextBackOff()
			log.Warn("Worker crashed, restarting", "reason", reason, "error", err, "wait", wait.String())

			select {
			case <-ctx.Done():
				log.Info("Worker stopped")
				return
			case <-time.After(wait):
			}
		}
	}()
}

func (s *Supervisor) restartPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.restartInterval
	policy.MaxInterval = s.restartInterval * maxRestartFactor
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// runOnce turns a panic into an ErrWorkerPanic error.
func runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels the supervised context; Run returns once every worker is gone.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
