package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/events"
	"guildbot/models"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[string]*models.ScheduledTask
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*models.ScheduledTask)}
}

func (f *fakeStore) List(ctx context.Context) ([]*models.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.ScheduledTask
	for _, t := range f.tasks {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) Upsert(ctx context.Context, task *models.ScheduledTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateNextFire(ctx context.Context, id string, next *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	task.NextFire = next
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tasks[id]
	delete(f.tasks, id)
	return ok, nil
}

func (f *fakeStore) get(id string) *models.ScheduledTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

func noopTask(ctx context.Context, tc *TaskContext) error { return nil }

func TestAddTaskPersistsAndComputesNextFire(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := New(store, events.NewBus())
	s.Register("noop", noopTask)

	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	task := &models.ScheduledTask{
		ID:       "daily-report",
		Trigger:  models.IntervalTrigger(time.Hour),
		Callable: "noop",
	}
	require.NoError(t, s.AddTask(context.Background(), task))

	stored := store.get("daily-report")
	require.NotNil(t, stored)
	require.NotNil(t, stored.NextFire)
	assert.Equal(t, now.Add(time.Hour), *stored.NextFire)
	assert.Equal(t, models.DefaultMisfireGraceSeconds, stored.MisfireGraceSeconds)

	// Re-adding the same ID replaces the schedule.
	require.NoError(t, s.AddTask(context.Background(), &models.ScheduledTask{
		ID:       "daily-report",
		Trigger:  models.IntervalTrigger(2 * time.Hour),
		Callable: "noop",
	}))
	stored = store.get("daily-report")
	assert.Equal(t, now.Add(2*time.Hour), *stored.NextFire)
}

func TestAddTaskRejectsUnknownCallable(t *testing.T) {
	t.Parallel()

	s := New(newFakeStore(), events.NewBus())
	err := s.AddTask(context.Background(), &models.ScheduledTask{
		ID:       "orphan",
		Trigger:  models.IntervalTrigger(time.Minute),
		Callable: "never-registered",
	})
	assert.ErrorContains(t, err, "not registered")
}

func TestAddTaskRejectsInvalidTrigger(t *testing.T) {
	t.Parallel()

	s := New(newFakeStore(), events.NewBus())
	s.Register("noop", noopTask)

	err := s.AddTask(context.Background(), &models.ScheduledTask{
		ID:       "bad-cron",
		Trigger:  models.CronTrigger("not a cron line", ""),
		Callable: "noop",
	})
	assert.ErrorContains(t, err, "invalid cron expression")
}

func TestDispatchFiresDueTaskWithinGrace(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	bus := events.NewBus()
	s := New(store, bus)

	fired := make(chan *TaskContext, 1)
	s.Register("record", func(ctx context.Context, tc *TaskContext) error {
		fired <- tc
		return nil
	})

	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// Came due one minute ago, well inside the default grace window.
	missed := now.Add(-time.Minute)
	task := &models.ScheduledTask{
		ID:       "reminder-1",
		Trigger:  models.IntervalTrigger(time.Hour),
		Callable: "record",
		Args:     map[string]string{"channel_id": "42"},
		NextFire: &missed,
	}
	require.NoError(t, store.Upsert(context.Background(), task))

	firedEvents := make(chan events.TaskFiredEvent, 1)
	bus.Subscribe(events.EventTypeTaskFired, func(ctx context.Context, e events.Event) {
		firedEvents <- e.(events.TaskFiredEvent)
	})

	require.NoError(t, s.restore(context.Background(), []*models.ScheduledTask{task}))
	s.dispatchDue(context.Background())

	select {
	case tc := <-fired:
		assert.Equal(t, "reminder-1", tc.TaskID)
		assert.Equal(t, "42", tc.Args["channel_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
	s.running.Wait()

	select {
	case ev := <-firedEvents:
		assert.Equal(t, "reminder-1", ev.TaskID)
		assert.Equal(t, missed, ev.FiredAt)
		assert.NoError(t, ev.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no task fired event")
	}

	// The schedule advances from the fired slot, not from dispatch
	// time, so the late fire does not shift the slot sequence.
	stored := store.get("reminder-1")
	require.NotNil(t, stored.NextFire)
	assert.Equal(t, missed.Add(time.Hour), *stored.NextFire)
}

func TestRestoreSkipsFireMissedBeyondGrace(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	bus := events.NewBus()
	s := New(store, bus)

	fired := make(chan struct{}, 1)
	s.Register("record", func(ctx context.Context, tc *TaskContext) error {
		fired <- struct{}{}
		return nil
	})

	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	misfires := make(chan events.TaskMisfiredEvent, 2)
	bus.Subscribe(events.EventTypeTaskMisfired, func(ctx context.Context, e events.Event) {
		misfires <- e.(events.TaskMisfiredEvent)
	})

	// Ten minutes overdue against a five-minute grace window.
	missed := now.Add(-10 * time.Minute)
	interval := &models.ScheduledTask{
		ID:       "hourly-sync",
		Trigger:  models.IntervalTrigger(time.Hour),
		Callable: "record",
		NextFire: &missed,
	}
	oneShot := &models.ScheduledTask{
		ID:       "reminder-stale",
		Trigger:  models.DateTrigger(missed),
		Callable: "record",
		NextFire: &missed,
	}
	require.NoError(t, store.Upsert(context.Background(), interval))
	require.NoError(t, store.Upsert(context.Background(), oneShot))

	require.NoError(t, s.restore(context.Background(), []*models.ScheduledTask{interval, oneShot}))
	s.dispatchDue(context.Background())
	s.running.Wait()

	select {
	case <-fired:
		t.Fatal("missed fire beyond grace must not execute")
	default:
	}

	for i := 0; i < 2; i++ {
		select {
		case ev := <-misfires:
			assert.Equal(t, missed, ev.Scheduled)
			assert.Equal(t, 10*time.Minute, ev.Overdue)
		case <-time.After(2 * time.Second):
			t.Fatal("expected misfire events")
		}
	}

	// The recurring task is rescheduled in the future; the stale
	// one-shot is gone.
	stored := store.get("hourly-sync")
	require.NotNil(t, stored)
	assert.True(t, stored.NextFire.After(now))
	assert.Nil(t, store.get("reminder-stale"))
}

func TestRestoreSkipsUnregisteredCallable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := New(store, events.NewBus())
	s.Register("known", noopTask)

	next := time.Now().Add(time.Hour)
	task := &models.ScheduledTask{
		ID:       "from-old-deploy",
		Trigger:  models.IntervalTrigger(time.Hour),
		Callable: "retired-callable",
		NextFire: &next,
	}
	require.NoError(t, store.Upsert(context.Background(), task))

	require.NoError(t, s.restore(context.Background(), []*models.ScheduledTask{task}))

	// Not scheduled, but still in the store for a future deploy.
	s.mu.Lock()
	_, scheduled := s.tasks["from-old-deploy"]
	s.mu.Unlock()
	assert.False(t, scheduled)
	assert.NotNil(t, store.get("from-old-deploy"))
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(newFakeStore(), events.NewBus())
	s.tick = 5 * time.Millisecond

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	require.NoError(t, s.Start(context.Background()))
}

func TestStartFailsWhenStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.listErr = errors.New("connection refused")

	s := New(store, events.NewBus())
	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "failed to load scheduled tasks")
}

func TestStartFiresThroughDispatchLoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := New(store, events.NewBus())
	s.tick = 5 * time.Millisecond

	fired := make(chan struct{}, 1)
	s.Register("record", func(ctx context.Context, tc *TaskContext) error {
		fired <- struct{}{}
		return nil
	})

	soon := time.Now().Add(20 * time.Millisecond)
	require.NoError(t, store.Upsert(context.Background(), &models.ScheduledTask{
		ID:       "one-shot",
		Trigger:  models.DateTrigger(soon),
		Callable: "record",
		NextFire: &soon,
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not fire through the dispatch loop")
	}

	// One-shot tasks are removed after firing.
	assert.Eventually(t, func() bool {
		return store.get("one-shot") == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoveTaskMissingIsNotError(t *testing.T) {
	t.Parallel()

	s := New(newFakeStore(), events.NewBus())
	assert.NoError(t, s.RemoveTask(context.Background(), "never-existed"))
}
