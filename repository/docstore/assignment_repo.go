package docstore

import (
	"context"
	"encoding/json"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/internal/infrastructure/docstore"
	"github.com/teamtasks/backend/repository"
)

type assignmentRepository struct {
	store *docstore.Store
}

// NewAssignmentRepository returns a document-store-backed AssignmentRepository.
func NewAssignmentRepository(store *docstore.Store) repository.AssignmentRepository {
	return &assignmentRepository{store: store}
}

func (r *assignmentRepository) Get(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, found, err := r.store.Get(assignmentsCollection, assignmentID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "assignment store unavailable", err)
	}
	if !found {
		return nil, domain.ErrAssignmentNotFound
	}
	var assignment domain.Assignment
	if err := json.Unmarshal(doc, &assignment); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt assignment document", err)
	}
	return &assignment, nil
}

func (r *assignmentRepository) PutBatch(ctx context.Context, assignments []domain.Assignment) error {
	for i := range assignments {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := &assignments[i]
		if a.AssignmentID == "" || a.TaskID == "" || a.UserID == "" {
			return domain.ErrInvalidPayload
		}
		doc, err := json.Marshal(a)
		if err != nil {
			return err
		}
		indexes := map[string]string{
			taskIndex: a.TaskID,
			userIndex: a.UserID,
		}
		if err := r.store.Put(assignmentsCollection, a.AssignmentID, doc, indexes); err != nil {
			return domain.WrapError(domain.ErrCodeUnavailable, "assignment store unavailable", err)
		}
	}
	return nil
}

func (r *assignmentRepository) ListByTask(ctx context.Context, taskID string) ([]domain.Assignment, error) {
	return r.listByIndex(ctx, taskIndex, taskID)
}

func (r *assignmentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Assignment, error) {
	return r.listByIndex(ctx, userIndex, userID)
}

func (r *assignmentRepository) Delete(ctx context.Context, assignmentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// load first so the index entries can be removed alongside the record
	assignment, err := r.Get(ctx, assignmentID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil
		}
		return err
	}
	indexes := map[string]string{
		taskIndex: assignment.TaskID,
		userIndex: assignment.UserID,
	}
	if err := r.store.Delete(assignmentsCollection, assignmentID, indexes); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "assignment store unavailable", err)
	}
	return nil
}

func (r *assignmentRepository) listByIndex(ctx context.Context, index, value string) ([]domain.Assignment, error) {
	var (
		assignments []domain.Assignment
		cursor      string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, next, err := r.store.QueryByIndex(assignmentsCollection, index, value, docstore.QueryLimitCap, cursor)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeUnavailable, "assignment store unavailable", err)
		}
		for _, doc := range docs {
			var a domain.Assignment
			if err := json.Unmarshal(doc, &a); err != nil {
				continue
			}
			assignments = append(assignments, a)
		}
		if next == "" {
			return assignments, nil
		}
		cursor = next
	}
}
