package assignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/repository"
	"github.com/teamtasks/backend/usecase"
)

// MaxBatchSize caps how many users one assign request may name.
const MaxBatchSize = 25

// Result summarizes a successful assign call.
type Result struct {
	Task               *domain.Task
	NewAssignments     int
	TotalAssignedUsers int
}

// Workflow keeps the three representations of "who is assigned" in
// agreement: Assignment records, the task's denormalized assignee list, and
// the notification stream. It is the only writer of all three.
type Workflow struct {
	tasks       repository.TaskRepository
	assignments repository.AssignmentRepository
	directory   repository.UserDirectory
	emitter     usecase.EventEmitter
	logger      *zap.Logger
	now         func() time.Time
}

func New(
	tasks repository.TaskRepository,
	assignments repository.AssignmentRepository,
	directory repository.UserDirectory,
	emitter usecase.EventEmitter,
	logger *zap.Logger,
) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		tasks:       tasks,
		assignments: assignments,
		directory:   directory,
		emitter:     emitter,
		logger:      logger,
		now:         time.Now,
	}
}

// Assign attaches the named users to the task. Candidates already assigned
// are skipped; if every candidate is already assigned the call fails with a
// CONFLICT error. Validation is all-or-nothing: one disabled, unconfirmed,
// or mail-less candidate rejects the whole batch before anything is written.
func (w *Workflow) Assign(ctx context.Context, taskID string, userIDs []string, actor *domain.Identity) (*Result, error) {
	if err := domain.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, domain.NewError(domain.ErrCodeInvalid, "user ids are required")
	}
	if len(userIDs) > MaxBatchSize {
		return nil, domain.NewError(domain.ErrCodeInvalid,
			fmt.Sprintf("cannot assign more than %d users at once", MaxBatchSize))
	}

	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	existing, err := w.assignments.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	assignedIDs := make(map[string]struct{}, len(existing))
	for _, record := range existing {
		assignedIDs[record.UserID] = struct{}{}
	}

	var newUserIDs []string
	for _, userID := range userIDs {
		if _, ok := assignedIDs[userID]; ok {
			continue
		}
		newUserIDs = append(newUserIDs, userID)
		assignedIDs[userID] = struct{}{}
	}
	if len(newUserIDs) == 0 {
		w.logger.Info("all users already assigned", zap.String("task_id", taskID))
		return nil, domain.NewError(domain.ErrCodeConflict,
			"all specified users are already assigned to this task")
	}

	candidates, err := w.ResolveCandidates(ctx, newUserIDs)
	if err != nil {
		return nil, err
	}

	records, err := w.RecordAssignments(ctx, taskID, candidates, actor)
	if err != nil {
		return nil, err
	}

	// The assignment records and the task document live in separate
	// collections with no transaction spanning both. A crash between the
	// two writes leaves records without a matching assignee list; the log
	// line below is what makes that window observable.
	existingEmails := w.existingEmails(ctx, existing)
	newEmails := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		newEmails = append(newEmails, candidate.Email)
	}
	allEmails := dedupe(append(existingEmails, newEmails...))

	assignedUsers := make([]domain.AssigneeRef, 0, len(allEmails))
	for _, email := range allEmails {
		assignedUsers = append(assignedUsers, domain.AssigneeFromEmail(email))
	}

	now := w.now().UTC()
	task.AssignedUsers = assignedUsers
	task.UpdatedAt = now
	task.UpdatedBy = actor.UserID

	if err := w.tasks.Put(ctx, task); err != nil {
		w.logger.Error("assignee list update failed after records were written",
			zap.String("task_id", taskID),
			zap.Int("orphaned_records", len(records)),
			zap.Error(err))
		return nil, err
	}

	w.emitAssigned(ctx, records)

	w.logger.Info("task assigned",
		zap.String("task_id", taskID),
		zap.Int("new_users", len(records)),
		zap.Int("total_users", len(allEmails)))

	return &Result{
		Task:               task,
		NewAssignments:     len(records),
		TotalAssignedUsers: len(allEmails),
	}, nil
}

// ResolveCandidates looks up every candidate in the directory concurrently
// and validates that each is enabled, confirmed, and reachable by e-mail.
// One bad candidate fails the batch, naming every offending id; partial
// assignment is never allowed. Result order follows the input order.
func (w *Workflow) ResolveCandidates(ctx context.Context, userIDs []string) ([]domain.DirectoryUser, error) {
	users := make([]domain.DirectoryUser, len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, userID := range userIDs {
		g.Go(func() error {
			user, err := w.directory.GetByID(gctx, userID)
			if err != nil {
				if domain.IsDomainError(err, domain.ErrCodeNotFound) {
					// Recorded as unassignable, reported with the batch.
					users[i] = domain.DirectoryUser{UserID: userID, Status: "UNKNOWN"}
					return nil
				}
				return err
			}
			users[i] = *user
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var invalid []string
	for i := range users {
		if !users[i].Assignable() {
			invalid = append(invalid, users[i].UserID)
		}
	}
	if len(invalid) > 0 {
		return nil, domain.NewError(domain.ErrCodeInvalid,
			fmt.Sprintf("cannot assign task to disabled, unconfirmed, or missing users: %s",
				strings.Join(invalid, ", ")))
	}
	return users, nil
}

// RecordAssignments writes one Assignment per candidate and returns the
// created records. Callers are responsible for the task's assignee list.
func (w *Workflow) RecordAssignments(ctx context.Context, taskID string, candidates []domain.DirectoryUser, actor *domain.Identity) ([]domain.Assignment, error) {
	now := w.now().UTC()
	records := make([]domain.Assignment, 0, len(candidates))
	for _, candidate := range candidates {
		records = append(records, domain.Assignment{
			AssignmentID: uuid.NewString(),
			TaskID:       taskID,
			UserID:       candidate.UserID,
			UserEmail:    candidate.Email,
			UserName:     candidate.Name,
			AssignedBy:   actor.UserID,
			AssignedAt:   now,
		})
	}
	if err := w.assignments.PutBatch(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// EmitAssigned publishes one assignment event per record. Emission is best
// effort; the assignment has already succeeded when this runs.
func (w *Workflow) EmitAssigned(ctx context.Context, records []domain.Assignment) {
	w.emitAssigned(ctx, records)
}

func (w *Workflow) emitAssigned(ctx context.Context, records []domain.Assignment) {
	if w.emitter == nil {
		return
	}
	for _, record := range records {
		event := &domain.TaskAssignedEvent{
			Type:            domain.EventTaskAssigned,
			AssignmentID:    record.AssignmentID,
			TaskID:          record.TaskID,
			AssignedToUser:  record.UserID,
			AssignedToEmail: record.UserEmail,
			AssignedToName:  record.UserName,
			AssignedBy:      record.AssignedBy,
			AssignedAt:      record.AssignedAt.Format(time.RFC3339),
		}
		if err := w.emitter.EmitTaskAssigned(ctx, event); err != nil {
			w.logger.Warn("assignment event emission failed",
				zap.String("assignment_id", record.AssignmentID),
				zap.Error(err))
		}
	}
}

// existingEmails resolves the addresses of pre-existing assignments,
// falling back to a directory lookup for records written before the e-mail
// snapshot existed.
func (w *Workflow) existingEmails(ctx context.Context, records []domain.Assignment) []string {
	var emails []string
	for _, record := range records {
		if record.UserEmail != "" {
			emails = append(emails, record.UserEmail)
			continue
		}
		user, err := w.directory.GetByID(ctx, record.UserID)
		if err != nil {
			w.logger.Debug("email lookup failed for existing assignment",
				zap.String("user_id", record.UserID), zap.Error(err))
			continue
		}
		if user.Email != "" {
			emails = append(emails, user.Email)
		}
	}
	return emails
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
