// Package janitor runs scheduled housekeeping against the guestbook database.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const taskTimeout = 2 * time.Minute

// Task is a named unit of housekeeping
type Task struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Manager schedules tasks with cron and runs each one under a timeout
type Manager struct {
	cron    *cron.Cron
	tasks   map[string]cron.EntryID
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates a new janitor
func New() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cron:   cron.New(),
		tasks:  make(map[string]cron.EntryID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules task. Schedules use the standard five-field cron syntax or
// descriptors such as "@every 15m" and "@daily".
func (m *Manager) Add(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %q has no run function", task.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.Name]; exists {
		return fmt.Errorf("task %q already scheduled", task.Name)
	}

	id, err := m.cron.AddFunc(task.Schedule, func() { m.run(task) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}
	m.tasks[task.Name] = id

	log.Debug().Str("task", task.Name).Str("schedule", task.Schedule).Msg("Janitor task scheduled")
	return nil
}

func (m *Manager) run(task Task) {
	ctx, cancel := context.WithTimeout(m.ctx, taskTimeout)
	defer cancel()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		log.Error().Err(err).Str("task", task.Name).Msg("Janitor task failed")
		return
	}
	log.Trace().Str("task", task.Name).Dur("duration", time.Since(start)).Msg("Janitor task finished")
}

// RunNow runs a scheduled task immediately, outside the schedule
func (m *Manager) RunNow(name string) error {
	m.mu.Lock()
	id, ok := m.tasks[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	m.cron.Entry(id).Job.Run()
	return nil
}

// NextRun returns when the named task runs next, or the zero time when the
// manager is stopped or the task is unknown.
func (m *Manager) NextRun(name string) time.Time {
	m.mu.Lock()
	id, ok := m.tasks[name]
	m.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return m.cron.Entry(id).Next
}

// Start starts the scheduler
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.cron.Start()
	m.running = true
	log.Info().Int("tasks", len(m.tasks)).Msg("Janitor started")
}

// Stop stops the scheduler, cancels running tasks and waits for them to return
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.cancel()
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.running = false
	log.Info().Msg("Janitor stopped")
}
