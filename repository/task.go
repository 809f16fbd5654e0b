package repository

import (
	"context"
	"time"

	"github.com/teamtasks/backend/domain"
)

// TaskChanges is a partial update: nil fields are left untouched. UpdatedBy
// and UpdatedAt are always written.
type TaskChanges struct {
	Title         *string
	Description   *string
	Status        *domain.TaskStatus
	Priority      *domain.TaskPriority
	DueDate       *time.Time
	TimeEstimate  *float64
	AssignedTo    *string
	AssignedUsers *[]domain.AssigneeRef
	UpdatedBy     string
	UpdatedAt     time.Time
}

// Empty reports whether the change set carries no updatable field.
func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil &&
		c.Priority == nil && c.DueDate == nil && c.TimeEstimate == nil &&
		c.AssignedTo == nil && c.AssignedUsers == nil
}

// TaskPage is one page of a scan over the task collection. Cursor is opaque;
// an empty cursor means the scan is exhausted.
type TaskPage struct {
	Tasks      []domain.Task
	NextCursor string
}

type TaskRepository interface {
	// Get returns domain.ErrTaskNotFound when the id is absent.
	Get(ctx context.Context, taskID string) (*domain.Task, error)
	// Put upserts the full task document.
	Put(ctx context.Context, task *domain.Task) error
	// Update applies a partial change set and returns the updated task;
	// domain.ErrTaskNotFound when the id is absent.
	Update(ctx context.Context, taskID string, changes TaskChanges) (*domain.Task, error)
	// Delete removes the task; deleting an absent id is not an error.
	Delete(ctx context.Context, taskID string) error
	// Scan pages through the whole collection in no particular order. The
	// page size is capped lower than indexed queries; scans cost more.
	Scan(ctx context.Context, limit int, cursor string) (*TaskPage, error)
}
