// Package cron runs named maintenance jobs on fixed intervals and lets an
// operator list and trigger them.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("cron: job not found")

type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
	StatusFulfill JobStatus = "fulfill"
	StatusReject  JobStatus = "reject"
)

type Job struct {
	Name        string
	Description string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
}

type jobState struct {
	Job
	mu        sync.Mutex
	status    JobStatus
	message   string
	lastRunAt *time.Time
	duration  time.Duration
	nextRunAt time.Time
}

// ListItem is the API view of a registered job.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      JobStatus  `json:"status"`
	NextDate    time.Time  `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
}

// TaskResult is the outcome of the most recent run of a job.
type TaskResult struct {
	Status     JobStatus  `json:"status"`
	Message    string     `json:"message,omitempty"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	DurationMs int64      `json:"durationMs"`
}

type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*jobState
	logger *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*jobState),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. The first run happens one interval after Register.
// Registering after Start has no effect on the running loops.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &jobState{
		Job:       job,
		status:    StatusIdle,
		nextRunAt: s.now().Add(job.Interval),
	}
}

// Start runs every registered job in its own goroutine until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, js := range s.jobs {
		if js.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, js)
	}
}

// Wait blocks until every loop started by Start has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	defer s.wg.Done()
	js.mu.Lock()
	wait := js.nextRunAt.Sub(s.now())
	js.mu.Unlock()

	timer := time.NewTimer(max(wait, 0))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.execute(ctx, js)
			js.mu.Lock()
			js.nextRunAt = s.now().Add(js.Interval)
			js.mu.Unlock()
			timer.Reset(js.Interval)
		}
	}
}

// execute runs the job unless a run is already in progress.
func (s *Scheduler) execute(ctx context.Context, js *jobState) {
	js.mu.Lock()
	if js.status == StatusRunning {
		js.mu.Unlock()
		return
	}
	js.status = StatusRunning
	js.mu.Unlock()

	started := s.now()
	err := safeRun(ctx, js.Fn)
	elapsed := s.now().Sub(started)

	js.mu.Lock()
	js.lastRunAt = &started
	js.duration = elapsed
	if err != nil {
		js.status = StatusReject
		js.message = err.Error()
	} else {
		js.status = StatusFulfill
		js.message = ""
	}
	js.mu.Unlock()

	if err != nil {
		s.logger.Warn("cron job failed", zap.String("job", js.Name), zap.Duration("took", elapsed), zap.Error(err))
		return
	}
	s.logger.Debug("cron job done", zap.String("job", js.Name), zap.Duration("took", elapsed))
}

func safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Run triggers a job by name in the background.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	js, err := s.get(name)
	if err != nil {
		return err
	}
	go s.execute(ctx, js)
	return nil
}

func (s *Scheduler) GetTask(name string) (*TaskResult, error) {
	js, err := s.get(name)
	if err != nil {
		return nil, err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return &TaskResult{
		Status:     js.status,
		Message:    js.message,
		LastRunAt:  js.lastRunAt,
		DurationMs: js.duration.Milliseconds(),
	}, nil
}

// List returns every registered job sorted by name.
func (s *Scheduler) List() []ListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ListItem, 0, len(s.jobs))
	for _, js := range s.jobs {
		js.mu.Lock()
		items = append(items, ListItem{
			Name:        js.Name,
			Description: js.Description,
			Status:      js.status,
			NextDate:    js.nextRunAt,
			LastRunAt:   js.lastRunAt,
		})
		js.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func (s *Scheduler) get(name string) (*jobState, error) {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	return js, nil
}
