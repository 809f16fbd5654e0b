package repository

import (
	"context"

	"github.com/teamtasks/backend/domain"
)

// AssignmentRepository persists task-user assignment records with two
// secondary access paths: by task and by user.
type AssignmentRepository interface {
	// Get returns domain.ErrAssignmentNotFound when the id is absent.
	Get(ctx context.Context, assignmentID string) (*domain.Assignment, error)
	// PutBatch writes a set of assignment records.
	PutBatch(ctx context.Context, assignments []domain.Assignment) error
	// ListByTask returns every assignment of the given task.
	ListByTask(ctx context.Context, taskID string) ([]domain.Assignment, error)
	// ListByUser returns every assignment held by the given user id.
	ListByUser(ctx context.Context, userID string) ([]domain.Assignment, error)
	// Delete removes a single assignment record; absent ids are not an error.
	Delete(ctx context.Context, assignmentID string) error
}
