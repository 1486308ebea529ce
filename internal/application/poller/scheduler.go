package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job es una tarea periódica. Cada job corre en su propia goroutine con su
// propio ticker; un ciclo lento nunca retrasa a los demás.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ejecuta los jobs hasta que se cancela el contexto o se llama a Stop.
type Scheduler struct {
	jobs []Job

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New crea un scheduler con los jobs dados.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Add registra un job. Solo tiene efecto antes de Start.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start lanza una goroutine por job. El primer ciclo se ejecuta inmediatamente.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("poller.Start: already running")
	}
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			return fmt.Errorf("poller.Start: job %q: interval must be positive", j.Name)
		}
		if j.Run == nil {
			return fmt.Errorf("poller.Start: job %q: no run function", j.Name)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			loop(ctx, j)
		}()
	}
	slog.Info("poller started", "jobs", len(s.jobs))
	return nil
}

// Stop cancela todos los jobs y espera a que terminen. Un ciclo en curso
// termina cuando su operación respeta la cancelación.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	slog.Info("poller stopped")
}

// Run arranca los jobs y bloquea hasta que el contexto se cancele.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunOnce ejecuta cada job una vez, en orden. Lo usan los comandos de un solo
// disparo.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	var errs []error
	for _, j := range jobs {
		if err := j.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

// loop ejecuta un job en su intervalo. Los ciclos de un mismo job nunca se
// solapan: si uno tarda más que el intervalo, los ticks perdidos se descartan.
func loop(ctx context.Context, j Job) {
	runCycle(ctx, j)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle(ctx, j)
		}
	}
}

func runCycle(ctx context.Context, j Job) {
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("poll cycle failed", "job", j.Name, "err", err)
		return
	}
	slog.Debug("poll cycle complete", "job", j.Name, "duration", time.Since(start).Round(time.Millisecond))
}
