package docstore

import (
	"context"
	"encoding/json"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/internal/infrastructure/docstore"
	"github.com/teamtasks/backend/repository"
)

type taskRepository struct {
	store *docstore.Store
}

// NewTaskRepository returns a document-store-backed TaskRepository.
func NewTaskRepository(store *docstore.Store) repository.TaskRepository {
	return &taskRepository{store: store}
}

func (r *taskRepository) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, found, err := r.store.Get(tasksCollection, taskID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "task store unavailable", err)
	}
	if !found {
		return nil, domain.ErrTaskNotFound
	}
	var task domain.Task
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt task document", err)
	}
	return &task, nil
}

func (r *taskRepository) Put(ctx context.Context, task *domain.Task) error {
	if task == nil || task.TaskID == "" {
		return domain.ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := r.store.Put(tasksCollection, task.TaskID, doc, nil); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "task store unavailable", err)
	}
	return nil
}

func (r *taskRepository) Update(ctx context.Context, taskID string, changes repository.TaskChanges) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, found, err := r.store.Update(tasksCollection, taskID, func(current []byte) ([]byte, error) {
		var task domain.Task
		if err := json.Unmarshal(current, &task); err != nil {
			return nil, err
		}
		applyChanges(&task, changes)
		return json.Marshal(&task)
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "task store unavailable", err)
	}
	if !found {
		return nil, domain.ErrTaskNotFound
	}
	var task domain.Task
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt task document", err)
	}
	return &task, nil
}

func (r *taskRepository) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.Delete(tasksCollection, taskID, nil); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "task store unavailable", err)
	}
	return nil
}

func (r *taskRepository) Scan(ctx context.Context, limit int, cursor string) (*repository.TaskPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, next, err := r.store.Scan(tasksCollection, limit, cursor, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "task store unavailable", err)
	}
	page := &repository.TaskPage{NextCursor: next}
	for _, doc := range docs {
		var task domain.Task
		if err := json.Unmarshal(doc, &task); err != nil {
			continue
		}
		page.Tasks = append(page.Tasks, task)
	}
	return page, nil
}

func applyChanges(task *domain.Task, changes repository.TaskChanges) {
	if changes.Title != nil {
		task.Title = *changes.Title
	}
	if changes.Description != nil {
		task.Description = *changes.Description
	}
	if changes.Status != nil {
		task.Status = *changes.Status
	}
	if changes.Priority != nil {
		task.Priority = *changes.Priority
	}
	if changes.DueDate != nil {
		task.DueDate = changes.DueDate
	}
	if changes.TimeEstimate != nil {
		task.TimeEstimate = changes.TimeEstimate
	}
	if changes.AssignedTo != nil {
		task.AssignedTo = *changes.AssignedTo
	}
	if changes.AssignedUsers != nil {
		task.AssignedUsers = *changes.AssignedUsers
	}
	if changes.UpdatedBy != "" {
		task.UpdatedBy = changes.UpdatedBy
	}
	if !changes.UpdatedAt.IsZero() {
		task.UpdatedAt = changes.UpdatedAt
	}
}
