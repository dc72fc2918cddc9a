package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes one recurring background task.
type TaskConfig struct {
	ID         string
	Name       string
	Cron       string // standard five-field cron expression
	RunOnStart bool   // execute once immediately after Start
	Func       TaskFunc
}

// TaskInfo describes a task's schedule state for API responses.
type TaskInfo struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Cron    string     `json:"cron"`
	LastRun *time.Time `json:"lastRun,omitempty"`
	NextRun *time.Time `json:"nextRun,omitempty"`
	Running bool       `json:"running"`
}

type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	lastRun *time.Time
	running bool
}

// Scheduler runs recurring background tasks on cron schedules.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger
	mu     sync.RWMutex
	tasks  map[string]*taskEntry
}

func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// Register adds a task to the schedule.
func (s *Scheduler) Register(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task %q already registered", config.ID)
	}

	job, err := s.gocron.NewJob(
		gocron.CronJob(config.Cron, false),
		gocron.NewTask(func() { s.run(config.ID) }),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{config: config, job: job}
	s.logger.Info().
		Str("id", config.ID).
		Str("cron", config.Cron).
		Bool("runOnStart", config.RunOnStart).
		Msg("Registered task")
	return nil
}

// Start begins cron execution and fires RunOnStart tasks.
func (s *Scheduler) Start() {
	s.logger.Info().Msg("Starting scheduler")
	s.gocron.Start()

	s.mu.RLock()
	var startup []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			startup = append(startup, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range startup {
		go s.run(id)
	}
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	return s.gocron.Shutdown()
}

// RunNow triggers a task outside its schedule.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	entry, exists := s.tasks[id]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", id)
	}
	if running {
		return fmt.Errorf("task %q is already running", id)
	}
	go s.run(id)
	return nil
}

// List returns schedule state for all tasks.
func (s *Scheduler) List() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		info := TaskInfo{
			ID:      entry.config.ID,
			Name:    entry.config.Name,
			Cron:    entry.config.Cron,
			LastRun: entry.lastRun,
			Running: entry.running,
		}
		if next, err := entry.job.NextRun(); err == nil {
			info.NextRun = &next
		}
		infos = append(infos, info)
	}
	return infos
}

func (s *Scheduler) run(id string) {
	s.mu.Lock()
	entry, exists := s.tasks[id]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Debug().Str("id", id).Msg("Starting task")

	err := entry.config.Func(context.Background())

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &start
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Dur("duration", time.Since(start)).Msg("Task failed")
		return
	}
	s.logger.Info().Str("id", id).Dur("duration", time.Since(start)).Msg("Task completed")
}
