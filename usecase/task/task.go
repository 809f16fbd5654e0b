package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/pkg/sanitize"
	"github.com/teamtasks/backend/repository"
	"github.com/teamtasks/backend/usecase"
	"github.com/teamtasks/backend/usecase/assignment"
)

const (
	titleMaxLen       = 200
	descriptionMaxLen = 2000
)

// CreateInput carries the create request fields after transport decoding.
// AssignedTo is the legacy single-assignee e-mail; AssignedUserIDs is the
// batch path validated like an assign call.
type CreateInput struct {
	Title           string
	Description     string
	Priority        string
	DueDate         *time.Time
	TimeEstimate    *float64
	AssignedTo      string
	AssignedUserIDs []string
}

// UpdateInput is a partial update; nil fields were absent from the request.
type UpdateInput struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	DueDate      *time.Time
	TimeEstimate *float64
	AssignedTo   *string
}

// ListResult is one page of tasks. NextCursor is empty when exhausted.
type ListResult struct {
	Tasks      []domain.Task
	NextCursor string
}

// DeleteResult reports the cascade size of a task deletion.
type DeleteResult struct {
	TaskID             string
	AssignmentsDeleted int
}

type UseCase struct {
	tasks       repository.TaskRepository
	assignments repository.AssignmentRepository
	directory   repository.UserDirectory
	workflow    *assignment.Workflow
	emitter     usecase.EventEmitter
	logger      *zap.Logger
	now         func() time.Time
}

func New(
	tasks repository.TaskRepository,
	assignments repository.AssignmentRepository,
	directory repository.UserDirectory,
	workflow *assignment.Workflow,
	emitter usecase.EventEmitter,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:       tasks,
		assignments: assignments,
		directory:   directory,
		workflow:    workflow,
		emitter:     emitter,
		logger:      logger,
		now:         time.Now,
	}
}

// Create persists a new task. Admin only. When AssignedUserIDs is set every
// candidate is validated before the task is written, so a bad batch creates
// nothing. The legacy AssignedTo path is best effort: resolution failures
// are logged and the task is created unassigned.
func (uc *UseCase) Create(ctx context.Context, in CreateInput, actor *domain.Identity) (*domain.Task, error) {
	if err := domain.RequireAdmin(actor); err != nil {
		return nil, err
	}

	title := sanitize.String(in.Title, titleMaxLen)
	description := sanitize.String(in.Description, descriptionMaxLen)
	if title == "" || description == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "title and description cannot be empty")
	}

	priority := domain.PriorityMedium
	if in.Priority != "" {
		priority = domain.TaskPriority(in.Priority)
		if !domain.ValidPriority(priority) {
			return nil, domain.NewError(domain.ErrCodeInvalid,
				"invalid priority value, must be: low, medium, or high")
		}
	}
	if in.TimeEstimate != nil && *in.TimeEstimate < 0 {
		return nil, domain.NewError(domain.ErrCodeInvalid,
			"invalid time estimate, must be a non-negative number")
	}

	// Batch assignees are validated up front so a rejected batch leaves no
	// task behind. Repeated ids collapse to one assignment.
	var candidates []domain.DirectoryUser
	if len(in.AssignedUserIDs) > 0 {
		if len(in.AssignedUserIDs) > assignment.MaxBatchSize {
			return nil, domain.NewError(domain.ErrCodeInvalid,
				"too many assignees for a single request")
		}
		resolved, err := uc.workflow.ResolveCandidates(ctx, dedupeIDs(in.AssignedUserIDs))
		if err != nil {
			return nil, err
		}
		candidates = resolved
	}

	now := uc.now().UTC()
	task := &domain.Task{
		TaskID:         uuid.NewString(),
		Title:          title,
		Description:    description,
		Priority:       priority,
		Status:         domain.StatusOpen,
		DueDate:        in.DueDate,
		TimeEstimate:   in.TimeEstimate,
		AssignedTo:     in.AssignedTo,
		AssignedUsers:  []domain.AssigneeRef{},
		CreatedBy:      actor.UserID,
		CreatedByEmail: actor.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.tasks.Put(ctx, task); err != nil {
		return nil, err
	}

	switch {
	case len(candidates) > 0:
		uc.attachCandidates(ctx, task, candidates, actor)
	case in.AssignedTo != "":
		uc.attachLegacyAssignee(ctx, task, in.AssignedTo, actor)
	}

	uc.logger.Info("task created",
		zap.String("task_id", task.TaskID),
		zap.String("created_by", actor.UserID))
	return task, nil
}

// attachCandidates records pre-validated assignments for a just-created task
// and folds their addresses into the assignee list. Failures are logged;
// the created task stands either way.
func (uc *UseCase) attachCandidates(ctx context.Context, task *domain.Task, candidates []domain.DirectoryUser, actor *domain.Identity) {
	records, err := uc.workflow.RecordAssignments(ctx, task.TaskID, candidates, actor)
	if err != nil {
		uc.logger.Warn("failed to record assignments on task creation",
			zap.String("task_id", task.TaskID), zap.Error(err))
		return
	}

	refs := make([]domain.AssigneeRef, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate.Email]; ok {
			continue
		}
		seen[candidate.Email] = struct{}{}
		refs = append(refs, domain.AssigneeFromEmail(candidate.Email))
	}
	task.AssignedUsers = refs
	task.UpdatedAt = uc.now().UTC()

	if err := uc.tasks.Put(ctx, task); err != nil {
		uc.logger.Error("assignee list update failed after records were written",
			zap.String("task_id", task.TaskID),
			zap.Int("orphaned_records", len(records)),
			zap.Error(err))
		return
	}

	uc.workflow.EmitAssigned(ctx, records)
}

// attachLegacyAssignee handles the historical single-assignee e-mail field.
func (uc *UseCase) attachLegacyAssignee(ctx context.Context, task *domain.Task, email string, actor *domain.Identity) {
	user, err := uc.directory.GetByEmail(ctx, email)
	if err != nil {
		uc.logger.Warn("assigned user not found by email",
			zap.String("task_id", task.TaskID), zap.Error(err))
		return
	}
	if !user.Assignable() {
		uc.logger.Warn("assigned user is disabled or unconfirmed",
			zap.String("task_id", task.TaskID),
			zap.String("user_id", user.UserID))
		return
	}

	uc.attachCandidates(ctx, task, []domain.DirectoryUser{*user}, actor)
}

// List returns the caller's visible tasks. Admins page through the whole
// collection; members get the union of their indexed assignments and a
// legacy match on the single-assignee field, deduplicated by task id.
func (uc *UseCase) List(ctx context.Context, limit int, cursor string, actor *domain.Identity) (*ListResult, error) {
	if domain.IsAdmin(actor) {
		return uc.listAll(ctx, limit, cursor)
	}
	return uc.listForMember(ctx, actor)
}

func (uc *UseCase) listAll(ctx context.Context, limit int, cursor string) (*ListResult, error) {
	page, err := uc.tasks.Scan(ctx, limit, cursor)
	if err != nil {
		return nil, err
	}
	for i := range page.Tasks {
		uc.annotate(ctx, &page.Tasks[i])
	}
	return &ListResult{Tasks: page.Tasks, NextCursor: page.NextCursor}, nil
}

// listForMember assembles the member's view without pagination: the
// per-user assignment index is small, and the legacy scan drains pages
// internally.
func (uc *UseCase) listForMember(ctx context.Context, actor *domain.Identity) (*ListResult, error) {
	taskIDs := make(map[string]struct{})

	for _, alternateID := range actor.AlternateIDs() {
		records, err := uc.assignments.ListByUser(ctx, alternateID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			taskIDs[record.TaskID] = struct{}{}
		}
	}

	tasks := make([]domain.Task, 0, len(taskIDs))
	seen := make(map[string]struct{}, len(taskIDs))
	for taskID := range taskIDs {
		task, err := uc.tasks.Get(ctx, taskID)
		if err != nil {
			if domain.IsDomainError(err, domain.ErrCodeNotFound) {
				uc.logger.Warn("assignment references missing task",
					zap.String("task_id", taskID))
				continue
			}
			return nil, err
		}
		seen[taskID] = struct{}{}
		tasks = append(tasks, *task)
	}

	// Tasks assigned under the legacy single-assignee field never got
	// assignment records; a filtered scan keeps them visible.
	cursor := ""
	for {
		page, err := uc.tasks.Scan(ctx, 0, cursor)
		if err != nil {
			return nil, err
		}
		for _, task := range page.Tasks {
			if _, ok := seen[task.TaskID]; ok {
				continue
			}
			if task.AssignedTo != "" && actor.Matches(task.AssignedTo) {
				seen[task.TaskID] = struct{}{}
				tasks = append(tasks, task)
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	for i := range tasks {
		uc.annotate(ctx, &tasks[i])
	}
	return &ListResult{Tasks: tasks}, nil
}

// Get loads one task with its assignee details. The access gate runs after
// annotation so legacy single-assignee tasks resolve correctly, and a
// well-formed id the caller may not see yields an access error, not a
// not-found.
func (uc *UseCase) Get(ctx context.Context, taskID string, actor *domain.Identity) (*domain.Task, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	task, err := uc.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	uc.annotate(ctx, task)

	if !domain.CanAccessTask(actor, task) {
		return nil, domain.ErrAccessDenied
	}
	return task, nil
}

// Update applies a partial update. Admins may change any field; a member
// passing anything besides status is rejected even when assigned. A
// persisted status transition emits exactly one change event.
func (uc *UseCase) Update(ctx context.Context, taskID string, in UpdateInput, actor *domain.Identity) (*domain.Task, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	changes, err := uc.buildChanges(in, actor)
	if err != nil {
		return nil, err
	}
	if changes.Empty() {
		return nil, domain.NewError(domain.ErrCodeInvalid, "no fields to update")
	}

	existing, err := uc.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !domain.CanUpdateTask(actor, existing) {
		return nil, domain.ErrAccessDenied
	}
	if !domain.IsAdmin(actor) && !statusOnly(in) {
		return nil, domain.NewError(domain.ErrCodeForbidden, "members may only update status")
	}

	updated, err := uc.tasks.Update(ctx, taskID, changes)
	if err != nil {
		return nil, err
	}

	if changes.Status != nil && *changes.Status != existing.Status {
		uc.emitStatusChanged(ctx, existing.Status, updated)
	}

	uc.logger.Info("task updated",
		zap.String("task_id", taskID),
		zap.String("updated_by", actor.UserID))
	return updated, nil
}

func (uc *UseCase) buildChanges(in UpdateInput, actor *domain.Identity) (repository.TaskChanges, error) {
	changes := repository.TaskChanges{
		UpdatedBy: actor.UserID,
		UpdatedAt: uc.now().UTC(),
	}

	if in.Title != nil {
		title := sanitize.String(*in.Title, titleMaxLen)
		if title == "" {
			return changes, domain.NewError(domain.ErrCodeInvalid, "title cannot be empty")
		}
		changes.Title = &title
	}
	if in.Description != nil {
		description := sanitize.String(*in.Description, descriptionMaxLen)
		if description == "" {
			return changes, domain.NewError(domain.ErrCodeInvalid, "description cannot be empty")
		}
		changes.Description = &description
	}
	if in.Status != nil {
		status := domain.TaskStatus(*in.Status)
		if !domain.ValidStatus(status) {
			return changes, domain.NewError(domain.ErrCodeInvalid,
				"invalid status value, must be: open, in-progress, completed, or closed")
		}
		changes.Status = &status
	}
	if in.Priority != nil {
		priority := domain.TaskPriority(*in.Priority)
		if !domain.ValidPriority(priority) {
			return changes, domain.NewError(domain.ErrCodeInvalid,
				"invalid priority value, must be: low, medium, or high")
		}
		changes.Priority = &priority
	}
	if in.DueDate != nil {
		changes.DueDate = in.DueDate
	}
	if in.TimeEstimate != nil {
		if *in.TimeEstimate < 0 {
			return changes, domain.NewError(domain.ErrCodeInvalid,
				"invalid time estimate, must be a non-negative number")
		}
		changes.TimeEstimate = in.TimeEstimate
	}
	if in.AssignedTo != nil {
		changes.AssignedTo = in.AssignedTo
	}
	return changes, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func statusOnly(in UpdateInput) bool {
	return in.Title == nil && in.Description == nil && in.Priority == nil &&
		in.DueDate == nil && in.TimeEstimate == nil && in.AssignedTo == nil
}

func (uc *UseCase) emitStatusChanged(ctx context.Context, oldStatus domain.TaskStatus, task *domain.Task) {
	if uc.emitter == nil {
		return
	}
	event := &domain.TaskStatusChangedEvent{
		Type:      domain.EventTaskStatusChanged,
		TaskID:    task.TaskID,
		OldStatus: oldStatus,
		NewStatus: task.Status,
		UpdatedBy: task.UpdatedBy,
		UpdatedAt: task.UpdatedAt.Format(time.RFC3339),
	}
	if err := uc.emitter.EmitTaskStatusChanged(ctx, event); err != nil {
		uc.logger.Warn("status change event emission failed",
			zap.String("task_id", task.TaskID), zap.Error(err))
	}
}

// Delete removes a task and cascades over its assignment records. Admin
// only. Record deletes run in parallel and are best effort: failures leave
// orphaned rows, which the log line makes visible to operators.
func (uc *UseCase) Delete(ctx context.Context, taskID string, actor *domain.Identity) (*DeleteResult, error) {
	if err := domain.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	if _, err := uc.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}

	records, err := uc.assignments.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		failed  *multierror.Error
		deleted int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, record := range records {
		g.Go(func() error {
			if err := uc.assignments.Delete(gctx, record.AssignmentID); err != nil {
				mu.Lock()
				failed = multierror.Append(failed, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			deleted++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := failed.ErrorOrNil(); err != nil {
		uc.logger.Warn("some assignment deletes failed, orphaned records remain",
			zap.String("task_id", taskID),
			zap.Int("failed", len(failed.Errors)),
			zap.Error(err))
	}

	if err := uc.tasks.Delete(ctx, taskID); err != nil {
		return nil, err
	}

	uc.logger.Info("task deleted",
		zap.String("task_id", taskID),
		zap.String("deleted_by", actor.UserID),
		zap.Int("assignments_deleted", deleted))
	return &DeleteResult{TaskID: taskID, AssignmentsDeleted: deleted}, nil
}

// Assign delegates to the assignment workflow.
func (uc *UseCase) Assign(ctx context.Context, taskID string, userIDs []string, actor *domain.Identity) (*assignment.Result, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}
	return uc.workflow.Assign(ctx, taskID, userIDs, actor)
}

// annotate replaces the task's denormalized assignee list with the richer
// view from the assignment records, falling back to the legacy field when
// no records exist. Lookup failures leave the stored list untouched.
func (uc *UseCase) annotate(ctx context.Context, task *domain.Task) {
	records, err := uc.assignments.ListByTask(ctx, task.TaskID)
	if err != nil {
		uc.logger.Warn("assignment lookup failed",
			zap.String("task_id", task.TaskID), zap.Error(err))
		return
	}

	if len(records) == 0 {
		if len(task.AssignedUsers) == 0 && task.AssignedTo != "" {
			task.AssignedUsers = []domain.AssigneeRef{domain.AssigneeFromString(task.AssignedTo)}
		}
		return
	}

	refs := make([]domain.AssigneeRef, 0, len(records))
	for _, record := range records {
		email := record.UserEmail
		if email == "" {
			if user, err := uc.directory.GetByID(ctx, record.UserID); err == nil {
				email = user.Email
			}
		}
		assignedAt := record.AssignedAt
		refs = append(refs, domain.AssigneeRef{
			ID:         record.UserID,
			Email:      email,
			Name:       record.UserName,
			AssignedAt: &assignedAt,
		})
	}
	task.AssignedUsers = refs
}

// validateTaskID gates store access on a well-formed UUID.
func validateTaskID(taskID string) error {
	if taskID == "" {
		return domain.NewError(domain.ErrCodeInvalid, "task id is required")
	}
	if _, err := uuid.Parse(taskID); err != nil {
		return domain.NewError(domain.ErrCodeInvalid, "invalid task id format")
	}
	return nil
}
