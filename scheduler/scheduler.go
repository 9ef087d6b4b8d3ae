package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"guildbot/events"
	"guildbot/models"
)

// Store persists task definitions so schedules survive restarts.
type Store interface {
	List(ctx context.Context) ([]*models.ScheduledTask, error)
	Upsert(ctx context.Context, task *models.ScheduledTask) error
	UpdateNextFire(ctx context.Context, id string, next *time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
}

// TaskContext carries a task's identity and stored arguments into its
// callable.
type TaskContext struct {
	TaskID string
	Args   map[string]string
	Logger *log.Entry
}

// TaskFunc is the signature every registered callable implements.
type TaskFunc func(ctx context.Context, tc *TaskContext) error

// Scheduler fires persisted tasks at their trigger times. Callables are
// registered by name before Start; a stored task whose callable is
// missing at load time is skipped with an error log rather than deleted,
// so a later deploy that restores the callable picks it up again.
type Scheduler struct {
	store    Store
	bus      *events.Bus
	registry map[string]TaskFunc

	mu    sync.Mutex
	tasks map[string]*models.ScheduledTask

	now     func() time.Time
	tick    time.Duration
	started bool

	stopChan chan struct{}
	doneChan chan struct{}
	running  sync.WaitGroup
}

func New(store Store, bus *events.Bus) *Scheduler {
	return &Scheduler{
		store:    store,
		bus:      bus,
		registry: make(map[string]TaskFunc),
		tasks:    make(map[string]*models.ScheduledTask),
		now:      time.Now,
		tick:     time.Second,
	}
}

// Register makes a callable available under the given name. Must be
// called before Start.
func (s *Scheduler) Register(name string, fn TaskFunc) {
	s.registry[name] = fn
}

// Start loads the stored tasks, applies the misfire policy to any that
// came due while the process was down, and begins the dispatch loop.
// Calling Start on a running scheduler is a no-op with a warning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		log.Warn("Scheduler already started, ignoring")
		return nil
	}
	s.mu.Unlock()

	tasks, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled tasks: %w", err)
	}

	if err := s.restore(ctx, tasks); err != nil {
		return err
	}

	s.mu.Lock()
	s.started = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)

	log.WithField("taskCount", len(tasks)).Info("Scheduler started")
	return nil
}

// restore brings stored tasks into memory. Fire times missed by more
// than the task's grace window are skipped; exhausted one-shot tasks
// are removed from the store.
func (s *Scheduler) restore(ctx context.Context, tasks []*models.ScheduledTask) error {
	now := s.now()

	for _, task := range tasks {
		logger := log.WithFields(log.Fields{
			"taskId":   task.ID,
			"callable": task.Callable,
		})

		if _, ok := s.registry[task.Callable]; !ok {
			logger.Error("Stored task references an unregistered callable, skipping")
			continue
		}

		if task.NextFire == nil {
			next, err := NextFire(task.Trigger, now)
			if err != nil {
				return fmt.Errorf("task %s has an invalid trigger: %w", task.ID, err)
			}
			if next == nil {
				logger.Info("Stored task is exhausted, removing")
				if _, err := s.store.Delete(ctx, task.ID); err != nil {
					return fmt.Errorf("failed to remove exhausted task %s: %w", task.ID, err)
				}
				continue
			}
			task.NextFire = next
			if err := s.store.UpdateNextFire(ctx, task.ID, next); err != nil {
				return fmt.Errorf("failed to store next fire for task %s: %w", task.ID, err)
			}
		}

		overdue := now.Sub(*task.NextFire)
		if overdue > task.MisfireGrace() {
			logger.WithFields(log.Fields{
				"scheduled": *task.NextFire,
				"overdue":   overdue,
			}).Warn("Skipping fire time missed beyond misfire grace")
			s.bus.Emit(ctx, events.TaskMisfiredEvent{
				TaskID:    task.ID,
				Scheduled: *task.NextFire,
				Overdue:   overdue,
			})

			next, err := nextAfterFire(task.Trigger, *task.NextFire, now)
			if err != nil {
				return fmt.Errorf("task %s has an invalid trigger: %w", task.ID, err)
			}
			if next == nil {
				if _, err := s.store.Delete(ctx, task.ID); err != nil {
					return fmt.Errorf("failed to remove exhausted task %s: %w", task.ID, err)
				}
				continue
			}
			task.NextFire = next
			if err := s.store.UpdateNextFire(ctx, task.ID, next); err != nil {
				return fmt.Errorf("failed to store next fire for task %s: %w", task.ID, err)
			}
		}

		// A fire time within the grace window stays due and runs on
		// the first loop pass.
		s.mu.Lock()
		s.tasks[task.ID] = task
		s.mu.Unlock()
	}

	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue fires every task whose fire time has arrived and advances
// or retires its schedule.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*models.ScheduledTask
	for _, task := range s.tasks {
		if task.NextFire != nil && !task.NextFire.After(now) {
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		firedAt := *task.NextFire
		s.run(ctx, task, firedAt)

		next, err := nextAfterFire(task.Trigger, firedAt, now)
		if err != nil {
			log.WithError(err).WithField("taskId", task.ID).Error("Failed to advance task schedule")
			continue
		}

		s.mu.Lock()
		if next == nil {
			delete(s.tasks, task.ID)
		} else {
			task.NextFire = next
		}
		s.mu.Unlock()

		if next == nil {
			if _, err := s.store.Delete(ctx, task.ID); err != nil {
				log.WithError(err).WithField("taskId", task.ID).Error("Failed to remove completed task")
			}
		} else if err := s.store.UpdateNextFire(ctx, task.ID, next); err != nil {
			log.WithError(err).WithField("taskId", task.ID).Error("Failed to store next fire time")
		}
	}
}

// run executes the task's callable in its own goroutine so a slow task
// never delays the dispatch loop. Panics are contained and reported as
// task failures.
func (s *Scheduler) run(ctx context.Context, task *models.ScheduledTask, firedAt time.Time) {
	fn, ok := s.registry[task.Callable]
	if !ok {
		log.WithFields(log.Fields{
			"taskId":   task.ID,
			"callable": task.Callable,
		}).Error("Task callable not registered")
		return
	}

	logger := log.WithFields(log.Fields{
		"taskId":   task.ID,
		"callable": task.Callable,
	})

	s.running.Add(1)
	go func() {
		defer s.running.Done()

		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
					logger.WithFields(log.Fields{
						"panic": r,
						"stack": string(debug.Stack()),
					}).Error("Task callable panicked")
				}
			}()
			err = fn(ctx, &TaskContext{
				TaskID: task.ID,
				Args:   task.Args,
				Logger: logger,
			})
		}()

		if err != nil {
			logger.WithError(err).Error("Task failed")
		} else {
			logger.Debug("Task completed")
		}

		s.bus.Emit(ctx, events.TaskFiredEvent{
			TaskID:   task.ID,
			Callable: task.Callable,
			FiredAt:  firedAt,
			Err:      err,
		})
	}()
}

// AddTask persists a task and schedules it. Re-adding an existing ID
// replaces the stored definition and its schedule.
func (s *Scheduler) AddTask(ctx context.Context, task *models.ScheduledTask) error {
	if task.ID == "" {
		return fmt.Errorf("task requires an ID")
	}
	if _, ok := s.registry[task.Callable]; !ok {
		return fmt.Errorf("callable %q is not registered", task.Callable)
	}
	if err := ValidateTrigger(task.Trigger); err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}

	if task.NextFire == nil {
		next, err := NextFire(task.Trigger, s.now())
		if err != nil {
			return fmt.Errorf("task %s: %w", task.ID, err)
		}
		if next == nil {
			return fmt.Errorf("task %s would never fire", task.ID)
		}
		task.NextFire = next
	}
	if task.MisfireGraceSeconds <= 0 {
		task.MisfireGraceSeconds = models.DefaultMisfireGraceSeconds
	}

	if err := s.store.Upsert(ctx, task); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", task.ID, err)
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"taskId":   task.ID,
		"callable": task.Callable,
		"nextFire": *task.NextFire,
	}).Info("Task scheduled")
	return nil
}

// RemoveTask unschedules and deletes a task. Removing an unknown ID is
// not an error; it is logged and ignored.
func (s *Scheduler) RemoveTask(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()

	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if !found {
		log.WithField("taskId", id).Warn("Removed task was not scheduled")
	}
	return nil
}

// Shutdown stops the dispatch loop. When wait is true it also blocks
// until in-flight task callables return.
func (s *Scheduler) Shutdown(wait bool) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan

	if wait {
		s.running.Wait()
	}
	log.Info("Scheduler stopped")
}
