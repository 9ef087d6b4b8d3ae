package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guildbot/database"
	"guildbot/models"
)

// TaskRepository is the job store: it persists scheduled task definitions
// and their next fire times in the same database as the guild settings, in
// a separate table.
type TaskRepository struct {
	q Queryable
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{q: db.Pool}
}

// Upsert stores the task definition, overwriting trigger, callable,
// arguments, grace and next fire time if the ID already exists.
func (r *TaskRepository) Upsert(ctx context.Context, task *models.ScheduledTask) error {
	triggerJSON, err := json.Marshal(task.Trigger)
	if err != nil {
		return fmt.Errorf("failed to encode trigger for task %q: %w", task.ID, err)
	}
	args := task.Args
	if args == nil {
		args = map[string]string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode args for task %q: %w", task.ID, err)
	}

	query := `
		INSERT INTO scheduled_tasks (id, trigger, callable, args, misfire_grace_seconds, next_fire)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET trigger = EXCLUDED.trigger,
		              callable = EXCLUDED.callable,
		              args = EXCLUDED.args,
		              misfire_grace_seconds = EXCLUDED.misfire_grace_seconds,
		              next_fire = EXCLUDED.next_fire,
		              updated_at = now()
	`

	if _, err := r.q.Exec(ctx, query, task.ID, triggerJSON, task.Callable, argsJSON, task.MisfireGraceSeconds, task.NextFire); err != nil {
		return fmt.Errorf("failed to upsert task %q: %w", task.ID, err)
	}
	return nil
}

// List returns all stored tasks.
func (r *TaskRepository) List(ctx context.Context) ([]*models.ScheduledTask, error) {
	query := `
		SELECT id, trigger, callable, args, misfire_grace_seconds, next_fire
		FROM scheduled_tasks
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ScheduledTask
	for rows.Next() {
		var (
			task        models.ScheduledTask
			triggerJSON []byte
			argsJSON    []byte
		)
		if err := rows.Scan(&task.ID, &triggerJSON, &task.Callable, &argsJSON, &task.MisfireGraceSeconds, &task.NextFire); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled task: %w", err)
		}
		if err := json.Unmarshal(triggerJSON, &task.Trigger); err != nil {
			return nil, fmt.Errorf("failed to decode trigger for task %q: %w", task.ID, err)
		}
		if err := json.Unmarshal(argsJSON, &task.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args for task %q: %w", task.ID, err)
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduled tasks: %w", err)
	}

	return tasks, nil
}

// UpdateNextFire stores the task's next fire time.
func (r *TaskRepository) UpdateNextFire(ctx context.Context, id string, next *time.Time) error {
	query := `UPDATE scheduled_tasks SET next_fire = $2, updated_at = now() WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, next)
	if err != nil {
		return fmt.Errorf("failed to update next fire for task %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %q not found", id)
	}
	return nil
}

// Delete removes the task and reports whether it existed.
func (r *TaskRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM scheduled_tasks WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
